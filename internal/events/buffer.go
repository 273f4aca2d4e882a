package events

import "sync"

const defaultBufferCapacity = 1024

type message struct {
	Kind    string
	Subject string
	Data    []byte
}

// buffer is a bounded FIFO of events waiting for the writer. A full buffer
// drops its oldest event to make room.
type buffer struct {
	mu       sync.Mutex
	items    []*message
	head     int
	count    int
	capacity int
}

func newBuffer(capacity int) *buffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &buffer{items: make([]*message, capacity), capacity: capacity}
}

// push appends msg and returns the event it evicted, if any.
func (b *buffer) push(msg *message) (evicted *message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == b.capacity {
		evicted = b.items[b.head]
		b.items[b.head] = nil
		b.head = (b.head + 1) % b.capacity
		b.count--
	}
	b.items[(b.head+b.count)%b.capacity] = msg
	b.count++
	return evicted
}

func (b *buffer) pop() *message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	msg := b.items[b.head]
	b.items[b.head] = nil
	b.head = (b.head + 1) % b.capacity
	b.count--
	return msg
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
