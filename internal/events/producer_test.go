package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes succsessfully", func() {
			w := newTestWriter()
			kp := NewEventProducer(w)
			subject := uuid.NewString()

			kp.Write(StageChangedMessageKind, subject, []byte(`{"n":1}`))
			kp.Write(ReleaseFailedMessageKind, subject, []byte(`{"n":2}`))

			Eventually(w.Len).Should(Equal(2))
			Expect(w.Get(0).Type()).To(Equal(StageChangedMessageKind))
			Expect(w.Get(0).Source()).To(Equal(eventSource))
			Expect(w.Get(0).Subject()).To(Equal(subject))
			Expect(w.Get(1).Data()).To(Equal([]byte(`{"n":2}`)))
			Expect(w.Topic(1)).To(Equal(defaultTopic))

			Expect(kp.Close()).To(Succeed())
			Expect(w.IsClosed()).To(BeTrue())
		})

		It("keeps going when the writer fails", func() {
			w := newTestWriter()
			w.fail = true
			kp := NewEventProducer(w, WithOutputTopic("other"))

			kp.Write(StageChangedMessageKind, uuid.NewString(), []byte("{}"))
			Eventually(w.Attempts).Should(Equal(1))
			Expect(kp.topic).To(Equal("other"))
			Expect(kp.Close()).To(Succeed())
		})

		It("drains queued events on close", func() {
			w := newTestWriter()
			w.block = make(chan struct{})
			kp := NewEventProducer(w, WithBufferCapacity(10))

			for i := 0; i < 5; i++ {
				kp.Write(StageChangedMessageKind, uuid.NewString(), []byte("{}"))
			}
			close(w.block)

			Expect(kp.Close()).To(Succeed())
			Expect(w.Len()).To(Equal(5))
			// closing twice is harmless
			Expect(kp.Close()).To(Succeed())
		})

		It("gives up draining after the close timeout", func() {
			w := newTestWriter()
			w.block = make(chan struct{})
			defer close(w.block)
			kp := NewEventProducer(w, WithCloseTimeout(50*time.Millisecond))

			kp.Write(StageChangedMessageKind, uuid.NewString(), []byte("{}"))
			Expect(kp.Close()).To(MatchError(context.DeadlineExceeded))
		})
	})

	Context("publisher", func() {
		It("encodes lifecycle events", func() {
			w := newTestWriter()
			kp := NewEventProducer(w)
			p := NewPublisher(kp)
			id := uuid.New()

			p.StageChanged(context.TODO(), StageChangedEvent{ReleaseVersionID: id, Stage: "Files", Value: "Complete", OverallStage: "Started"})
			p.Failed(context.TODO(), ReleaseFailedEvent{ReleaseVersionID: id, Stage: "Data", Error: "boom"})
			p.Published(context.TODO(), ReleasePublishedEvent{ReleaseVersionID: id, PublicationSlug: "pupils"})

			Eventually(w.Len).Should(Equal(3))
			Expect(w.Get(0).Type()).To(Equal(StageChangedMessageKind))
			Expect(w.Get(1).Type()).To(Equal(ReleaseFailedMessageKind))
			Expect(w.Get(2).Type()).To(Equal(ReleasePublishedMessageKind))

			var published ReleasePublishedEvent
			Expect(json.Unmarshal(w.Get(2).Data(), &published)).To(Succeed())
			Expect(published.ReleaseVersionID).To(Equal(id))
			Expect(published.PublicationSlug).To(Equal("pupils"))
			Expect(w.Get(2).Subject()).To(Equal(id.String()))

			Expect(kp.Close()).To(Succeed())
		})
	})

	Context("kafka writer", func() {
		It("sends structured cloudevents", func() {
			producer := mocks.NewSyncProducer(GinkgoT(), nil)
			producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
				var e cloudevents.Event
				if err := json.Unmarshal(val, &e); err != nil {
					return err
				}
				if e.Type() != ReleasePublishedMessageKind {
					return errors.New("unexpected event type " + e.Type())
				}
				return nil
			})

			w := NewKafkaWriterFromProducer(producer)
			e := cloudevents.NewEvent()
			e.SetID(uuid.NewString())
			e.SetSource(eventSource)
			e.SetType(ReleasePublishedMessageKind)
			Expect(e.SetData(cloudevents.ApplicationJSON, map[string]string{"a": "b"})).To(Succeed())

			Expect(w.Write(context.TODO(), "topic", e)).To(Succeed())
			Expect(w.Close(context.TODO())).To(Succeed())
		})

		It("returns send errors", func() {
			producer := mocks.NewSyncProducer(GinkgoT(), nil)
			producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

			w := NewKafkaWriterFromProducer(producer)
			e := cloudevents.NewEvent()
			e.SetID(uuid.NewString())
			e.SetSource(eventSource)
			e.SetType(StageChangedMessageKind)

			Expect(w.Write(context.TODO(), "topic", e)).To(MatchError(sarama.ErrOutOfBrokers))
			Expect(w.Close(context.TODO())).To(Succeed())
		})
	})
})

type testwriter struct {
	lock     sync.Mutex
	messages []cloudevents.Event
	topics   []string
	attempts int
	fail     bool
	closed   bool
	block    chan struct{}
}

func newTestWriter() *testwriter {
	return &testwriter{messages: []cloudevents.Event{}}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	if t.block != nil {
		<-t.block
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.attempts++
	if t.fail {
		return errors.New("write failed")
	}
	t.messages = append(t.messages, e)
	t.topics = append(t.topics, topic)
	return nil
}

func (t *testwriter) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.messages)
}

func (t *testwriter) Attempts() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.attempts
}

func (t *testwriter) Get(i int) cloudevents.Event {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.messages[i]
}

func (t *testwriter) Topic(i int) string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.topics[i]
}

func (t *testwriter) IsClosed() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.closed
}

func (t *testwriter) Close(_ context.Context) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.closed = true
	return nil
}
