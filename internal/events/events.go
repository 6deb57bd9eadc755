// Package events fans inventory and saga activity out to Kafka and to
// WebSocket clients.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"grocer/internal/inventory"
	"grocer/internal/logging"
	"grocer/internal/saga"

	"go.uber.org/zap"
)

const (
	TopicInventory = "inventory_events"
	TopicSaga      = "saga_events"

	TypeInventoryUpdate = "update-inventory"
	TypeSaga            = "saga"
)

// Sink receives encoded event messages.
type Sink interface {
	Send(ctx context.Context, topic, key string, payload []byte) error
}

// InventoryUpdated is published whenever an item's stock level changes or
// the item leaves the catalog.
type InventoryUpdated struct {
	Type     string `json:"type"`
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// SagaEvent mirrors a saga.Notification on the wire.
type SagaEvent struct {
	Type       string    `json:"type"`
	Kind       string    `json:"kind"`
	Saga       string    `json:"saga"`
	SagaID     string    `json:"sagaId"`
	Reference  string    `json:"reference,omitempty"`
	Step       string    `json:"step,omitempty"`
	StepIndex  int       `json:"stepIndex"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher encodes domain events and hands them to every sink. It
// satisfies inventory.Publisher and saga.Observer.
type Publisher struct {
	sinks  []Sink
	logger *zap.Logger
}

var (
	_ inventory.Publisher = (*Publisher)(nil)
	_ saga.Observer       = (*Publisher)(nil)
)

// NewPublisher constructs a Publisher. Nil sinks are skipped.
func NewPublisher(logger *zap.Logger, sinks ...Sink) *Publisher {
	p := &Publisher{logger: logging.OrNop(logger)}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// PublishInventoryUpdate sends an update-inventory message keyed by item.
func (p *Publisher) PublishInventoryUpdate(ctx context.Context, update inventory.Update) error {
	payload, err := json.Marshal(InventoryUpdated{
		Type:     TypeInventoryUpdate,
		ItemID:   update.ItemID,
		Quantity: update.Quantity,
		Deleted:  update.Deleted,
	})
	if err != nil {
		return err
	}
	return p.send(ctx, TopicInventory, update.ItemID, payload)
}

// Observe publishes saga notifications. Failures are logged only. Kafka
// delivery is queued and hub sends are time bounded, so a slow sink holds a
// saga back by at most hubSendTimeout.
func (p *Publisher) Observe(ctx context.Context, n saga.Notification) {
	event := SagaEvent{
		Type:       TypeSaga,
		Kind:       string(n.Kind),
		Saga:       n.Saga,
		SagaID:     n.SagaID,
		Reference:  n.Reference,
		Step:       n.Step,
		StepIndex:  n.Index,
		DurationMs: n.Duration.Milliseconds(),
		At:         n.At,
	}
	if n.Err != nil {
		event.Error = n.Err.Error()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Warn(ctx, p.logger, "encode saga event", zap.Error(err))
		return
	}
	if err := p.send(ctx, TopicSaga, n.SagaID, payload); err != nil {
		logging.Warn(ctx, p.logger, "publish saga event",
			zap.String("saga_id", n.SagaID), zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func (p *Publisher) send(ctx context.Context, topic, key string, payload []byte) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Send(ctx, topic, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
