package events

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/statspub/publisher/pkg/metrics"
)

const (
	StageChangedMessageKind     string = "statspub.publishing.events.stage-changed"
	ReleaseFailedMessageKind    string = "statspub.publishing.events.failed"
	ReleasePublishedMessageKind string = "statspub.publishing.events.published"
	defaultTopic                string = "statspub.publishing.events"
	eventSource                 string = "statspub.release.publisher"
	defaultCloseTimeout                = 5 * time.Second
)

// Writer delivers a single cloudevent to a topic.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer queues lifecycle events and writes them from a single
// goroutine, so a slow broker never holds up a stage transition.
type EventProducer struct {
	pending      *buffer
	wakeCh       chan struct{}
	doneCh       chan struct{}
	stoppedCh    chan struct{}
	closeOnce    sync.Once
	closeErr     error
	closeTimeout time.Duration
	writer       Writer
	topic        string
	source       string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		pending:      newBuffer(defaultBufferCapacity),
		wakeCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
		closeTimeout: defaultCloseTimeout,
		writer:       w,
		topic:        defaultTopic,
		source:       eventSource,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

// Write queues an event of the given kind. subject is the release version
// the event is about. Write never blocks on the writer.
func (ep *EventProducer) Write(kind, subject string, data []byte) {
	if evicted := ep.pending.push(&message{Kind: kind, Subject: subject, Data: data}); evicted != nil {
		metrics.IncreaseEventsDroppedMetric(evicted.Kind)
		zap.S().Named("event_producer").Warnw("event buffer full, dropped oldest event",
			"kind", evicted.Kind, "subject", evicted.Subject)
	}

	select {
	case ep.wakeCh <- struct{}{}:
	default:
	}
}

// Close stops accepting work, writes whatever is still queued and closes the
// writer. Events left when the close timeout expires are dropped.
func (ep *EventProducer) Close() error {
	ep.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ep.closeTimeout)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			close(ep.doneCh)
			select {
			case <-ep.stoppedCh:
			case <-gctx.Done():
				return gctx.Err()
			}
			return ep.writer.Close(gctx)
		})
		if ep.closeErr = g.Wait(); ep.closeErr != nil {
			zap.S().Named("event_producer").Errorw("event producer closed with error",
				"error", ep.closeErr, "pending", ep.pending.len())
			return
		}
		zap.S().Named("event_producer").Info("event producer closed")
	})
	return ep.closeErr
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)
	for {
		msg := ep.pending.pop()
		if msg != nil {
			ep.send(msg)
			continue
		}
		select {
		case <-ep.wakeCh:
		case <-ep.doneCh:
			// drain what was queued before Close
			for msg := ep.pending.pop(); msg != nil; msg = ep.pending.pop() {
				ep.send(msg)
			}
			return
		}
	}
}

func (ep *EventProducer) send(msg *message) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(ep.source)
	e.SetType(msg.Kind)
	e.SetSubject(msg.Subject)
	e.SetTime(time.Now().UTC())
	_ = e.SetData(cloudevents.ApplicationJSON, msg.Data)

	if err := ep.writer.Write(context.Background(), ep.topic, e); err != nil {
		zap.S().Named("event_producer").Errorw("failed to send event",
			"error", err, "kind", msg.Kind, "subject", msg.Subject)
	}
}
