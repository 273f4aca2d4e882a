package events

import "time"

type ProducerOptions func(e *EventProducer)

// WithOutputTopic sets the topic every event is written to.
func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		if topic != "" {
			e.topic = topic
		}
	}
}

// WithBufferCapacity bounds the number of events waiting for the writer.
func WithBufferCapacity(capacity int) ProducerOptions {
	return func(e *EventProducer) {
		e.pending = newBuffer(capacity)
	}
}

// WithCloseTimeout bounds how long Close waits for pending events.
func WithCloseTimeout(d time.Duration) ProducerOptions {
	return func(e *EventProducer) {
		e.closeTimeout = d
	}
}
