package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/riverqueue/river"
)

var ErrQueueNotReady = errors.New("queue is not ready")

// DeferredQueue forwards to a queue set after construction. The river client
// needs its workers up front and the workers need a queue, so the service
// layer is handed a DeferredQueue that is pointed at the client once it exists.
type DeferredQueue struct {
	mu    sync.RWMutex
	queue Queue
}

var _ Queue = (*DeferredQueue)(nil)

func NewDeferredQueue() *DeferredQueue {
	return &DeferredQueue{}
}

func (d *DeferredQueue) Set(q Queue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = q
}

func (d *DeferredQueue) Enqueue(ctx context.Context, args ...river.JobArgs) error {
	d.mu.RLock()
	q := d.queue
	d.mu.RUnlock()
	if q == nil {
		return ErrQueueNotReady
	}
	return q.Enqueue(ctx, args...)
}
