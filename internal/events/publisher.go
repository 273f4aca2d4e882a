package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher emits the release publishing lifecycle events.
type Publisher interface {
	StageChanged(ctx context.Context, e StageChangedEvent)
	Failed(ctx context.Context, e ReleaseFailedEvent)
	Published(ctx context.Context, e ReleasePublishedEvent)
}

// ProducerPublisher encodes lifecycle events and hands them to an EventProducer.
// Emitting never fails the caller. Encoding errors are logged.
type ProducerPublisher struct {
	producer *EventProducer
}

func NewPublisher(producer *EventProducer) *ProducerPublisher {
	return &ProducerPublisher{producer: producer}
}

func (p *ProducerPublisher) StageChanged(ctx context.Context, e StageChangedEvent) {
	p.emit(StageChangedMessageKind, e.ReleaseVersionID, e)
}

func (p *ProducerPublisher) Failed(ctx context.Context, e ReleaseFailedEvent) {
	p.emit(ReleaseFailedMessageKind, e.ReleaseVersionID, e)
}

func (p *ProducerPublisher) Published(ctx context.Context, e ReleasePublishedEvent) {
	p.emit(ReleasePublishedMessageKind, e.ReleaseVersionID, e)
}

func (p *ProducerPublisher) emit(kind string, releaseVersionID uuid.UUID, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.S().Named("event_publisher").Errorw("failed to encode event", "kind", kind, "error", err)
		return
	}
	p.producer.Write(kind, releaseVersionID.String(), data)
}

// Discard drops every event. It is used when no event writer is configured.
type Discard struct{}

func (Discard) StageChanged(context.Context, StageChangedEvent)   {}
func (Discard) Failed(context.Context, ReleaseFailedEvent)        {}
func (Discard) Published(context.Context, ReleasePublishedEvent) {}
