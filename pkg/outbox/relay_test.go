package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkurbanov/lounge-ops/pkg/tracing"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []Event
	sent    []int64
	failed  []int64
}

func (s *fakeStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

func (s *fakeStore) snapshot() (sent, failed []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.sent...), append([]int64(nil), s.failed...)
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []kafka.Message
	failKeys map[string]bool
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.failKeys[string(m.Key)] {
			return errors.New("broker unavailable")
		}
		p.messages = append(p.messages, m)
	}
	return nil
}

func TestDispatcherMessageShape(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(slog.Default(), producer, "lounge.order.events")

	err := d.Dispatch(context.Background(), Event{
		ID:            7,
		AggregateType: "order",
		AggregateID:   "o-42",
		Type:          "OrderStatusChanged",
		Payload:       []byte(`{"OrderID":"o-42"}`),
		Traceparent:   "00-abc-def-01",
	})
	require.NoError(t, err)
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, "lounge.order.events", msg.Topic)
	assert.Equal(t, []byte("o-42"), msg.Key)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderStatusChanged", headers["event_type"])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
}

func TestDispatcherInjectsOwnTraceWhenEventHasNone(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator()) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	producer := &fakeProducer{}
	d := NewDispatcher(slog.Default(), producer, "lounge.order.events")
	require.NoError(t, d.Dispatch(ctx, Event{ID: 9, AggregateID: "o-9", Type: "OrderCreated"}))

	require.Len(t, producer.messages, 1)
	headers := map[string]string{}
	for _, h := range producer.messages[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Contains(t, headers[tracing.TraceparentHeader], sc.TraceID().String())
}

func TestRelayMarksSentAndFailed(t *testing.T) {
	store := &fakeStore{pending: []Event{
		{ID: 1, AggregateID: "a", Type: "OrderCreated"},
		{ID: 2, AggregateID: "bad", Type: "OrderCreated"},
		{ID: 3, AggregateID: "c", Type: "OrderDeleted"},
	}}
	producer := &fakeProducer{failKeys: map[string]bool{"bad": true}}

	r := NewRelay(slog.Default(), store, NewDispatcher(slog.Default(), producer, "t"), "relay-test")
	r.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = r.Run(ctx); close(done) }()

	assert.Eventually(t, func() bool {
		sent, failed := store.snapshot()
		return len(sent) == 2 && len(failed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	sent, failed := store.snapshot()
	assert.ElementsMatch(t, []int64{1, 3}, sent)
	assert.Equal(t, []int64{2}, failed)
}
