package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"grocer/internal/kv"
)

// StateKey is where a run's State lives.
func StateKey(name, id string) string {
	return "saga:" + name + ":" + id
}

// StepKey is where step index's result lives.
func StepKey(name, id string, index int) string {
	return StateKey(name, id) + ":step:" + strconv.Itoa(index)
}

// EventsKey is the list holding a run's events.
func EventsKey(name, id string) string {
	return StateKey(name, id) + ":events"
}

// ReferenceKey maps a business key to the most recent run id.
func ReferenceKey(name, reference string) string {
	return "saga:" + name + ":ref:" + reference
}

func encodeEvent[T any](event Event[T]) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	return string(data), nil
}

// LoadState reads the persisted state of run id.
func LoadState[T any](ctx context.Context, store kv.Store, name, id string) (State[T], error) {
	state, err := kv.GetJSON[State[T]](ctx, store, StateKey(name, id))
	if errors.Is(err, kv.ErrNotFound) {
		return state, ErrNotFound
	}
	return state, err
}

// LoadStepResult reads the output recorded for step index of run id.
func LoadStepResult[T any](ctx context.Context, store kv.Store, name, id string, index int) (T, error) {
	result, err := kv.GetJSON[T](ctx, store, StepKey(name, id, index))
	if errors.Is(err, kv.ErrNotFound) {
		return result, ErrNotFound
	}
	return result, err
}

// LoadEvents returns the events of run id in the order they were appended.
func LoadEvents[T any](ctx context.Context, store kv.Store, name, id string) ([]Event[T], error) {
	raw, err := store.List(ctx, EventsKey(name, id))
	if err != nil {
		return nil, err
	}
	events := make([]Event[T], 0, len(raw))
	for _, item := range raw {
		var event Event[T]
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Lookup resolves a reference passed to WithReference into a run id.
func Lookup(ctx context.Context, store kv.Store, name, reference string) (string, error) {
	id, err := store.Get(ctx, ReferenceKey(name, reference))
	if errors.Is(err, kv.ErrNotFound) {
		return "", ErrNotFound
	}
	return id, err
}
