package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"grocer/internal/inventory"
	"grocer/internal/kv"
	"grocer/internal/saga"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
	gate   chan struct{}
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type failingSink struct{ err error }

func (s failingSink) Send(context.Context, string, string, []byte) error { return s.err }

type fakeHub struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (h *fakeHub) Send(ctx context.Context, msg []byte) error {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	return nil
}

func TestPublisher_InventoryUpdateReachesEverySink(t *testing.T) {
	writer := &fakeWriter{}
	hub := &fakeHub{}
	sink := NewKafkaSink(writer, nil, 0)
	p := NewPublisher(nil, sink, NewHubSink(hub), nil)

	err := p.PublishInventoryUpdate(context.Background(), inventory.Update{ItemID: "apple", Quantity: 98})
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	msgs := writer.messages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, TopicInventory, msg.Topic)
	assert.Equal(t, "apple", string(msg.Key))
	assert.JSONEq(t, `{"type":"update-inventory","itemId":"apple","quantity":98}`, string(msg.Value))

	require.Len(t, hub.msgs, 1)
	assert.JSONEq(t, string(msg.Value), string(hub.msgs[0]))
}

func TestPublisher_SinkFailureIsReportedAfterTryingAll(t *testing.T) {
	hub := &fakeHub{}
	p := NewPublisher(nil, failingSink{err: errors.New("broker down")}, NewHubSink(hub))

	err := p.PublishInventoryUpdate(context.Background(), inventory.Update{ItemID: "apple", Quantity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, hub.msgs, 1, "hub still receives the message")
}

func TestPublisher_ObservesSagaRun(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewKafkaSink(writer, nil, 0)
	p := NewPublisher(nil, sink)

	orch := saga.New(kv.NewMemoryStore(), saga.WithObserver(p))
	def := saga.Definition[int]{
		Name: "COUNT",
		Steps: []saga.Step[int]{
			saga.StepFuncs[int]{Label: "one", ExecuteFunc: func(_ context.Context, n int) (int, error) { return n + 1, nil }},
			saga.StepFuncs[int]{Label: "two", ExecuteFunc: func(_ context.Context, n int) (int, error) { return n, errors.New("nope") }},
		},
	}
	_, err := saga.Run(context.Background(), orch, def, 0, saga.WithReference("order-9"))
	require.Error(t, err)
	require.NoError(t, sink.Close())

	var kinds []string
	for _, m := range writer.messages() {
		assert.Equal(t, TopicSaga, m.Topic)
		var ev SagaEvent
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, TypeSaga, ev.Type)
		assert.Equal(t, "COUNT", ev.Saga)
		assert.Equal(t, "order-9", ev.Reference)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{
		string(saga.KindSagaStarted),
		string(saga.KindStepSucceeded),
		string(saga.KindStepFailed),
		string(saga.KindStepCompensated),
		string(saga.KindSagaFailed),
	}, kinds)
}

func TestPublisher_WiredIntoInventoryService(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewKafkaSink(writer, nil, 0)
	p := NewPublisher(nil, sink)
	svc := inventory.NewService(inventory.NewMemoryItemStore(), kv.NewMemoryStore(), p, nil)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, inventory.Item{ID: "pear", Name: "Pear", Quantity: 10})
	require.NoError(t, err)

	ok, err := svc.Reserve(ctx, "order-1", []inventory.Line{{ItemID: "pear", Quantity: 4}})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sink.Close())
	msgs := writer.messages()
	require.NotEmpty(t, msgs)
	var update InventoryUpdated
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Value, &update))
	assert.Equal(t, InventoryUpdated{Type: TypeInventoryUpdate, ItemID: "pear", Quantity: 6}, update)
}

func TestKafkaSink_Close(t *testing.T) {
	writer := &fakeWriter{}
	sink := NewKafkaSink(writer, nil, 0)
	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
	assert.ErrorIs(t, sink.Send(context.Background(), TopicSaga, "k", []byte("{}")), ErrSinkClosed)
	require.NoError(t, sink.Close())
}

func TestKafkaSink_SlowBrokerDoesNotBlockSagas(t *testing.T) {
	writer := &fakeWriter{gate: make(chan struct{})}
	sink := NewKafkaSink(writer, nil, 4)
	p := NewPublisher(nil, sink)
	orch := saga.New(kv.NewMemoryStore(), saga.WithObserver(p))
	def := saga.Definition[int]{
		Name: "COUNT",
		Steps: []saga.Step[int]{
			saga.StepFuncs[int]{Label: "one", ExecuteFunc: func(_ context.Context, n int) (int, error) { return n + 1, nil }},
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := saga.Run(context.Background(), orch, def, 0)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("saga waited on kafka delivery")
	}

	for i := 0; i < 8; i++ {
		_ = sink.Send(context.Background(), TopicSaga, "k", []byte("{}"))
	}
	assert.ErrorIs(t, sink.Send(context.Background(), TopicSaga, "k", []byte("{}")), ErrQueueFull)

	close(writer.gate)
	require.NoError(t, sink.Close())
	assert.NotEmpty(t, writer.messages())
}

func TestNewKafkaWriter_RoutesByMessageTopic(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, 0, nil)
	assert.Empty(t, w.Topic)
	assert.True(t, w.Async)
	assert.NotNil(t, w.Completion)
	assert.Equal(t, "localhost:9092", w.Addr.String())
}

type stalledHub struct{}

func (stalledHub) Send(ctx context.Context, msg []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestHubSink_StalledHubTimesOut(t *testing.T) {
	err := NewHubSink(stalledHub{}).Send(context.Background(), TopicSaga, "k", []byte("{}"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
