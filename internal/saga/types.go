// Package saga runs ordered steps with compensations and keeps an auditable
// record of every execution in a kv.Store.
package saga

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Status captures the lifecycle of a single saga execution.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// State is the persisted progress of a saga. CurrentStep is -1 once the saga
// failed and was compensated.
type State[T any] struct {
	CurrentStep int    `json:"currentStep"`
	Data        T      `json:"data"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`
}

// EventMetadata identifies where an event came from. Timestamp is in
// milliseconds since the epoch.
type EventMetadata struct {
	SagaID    string `json:"sagaId"`
	StepIndex int    `json:"stepIndex"`
	Timestamp int64  `json:"timestamp"`
}

// Event is one entry of a saga's append-only audit log.
type Event[T any] struct {
	Type     string        `json:"type"`
	Payload  T             `json:"payload"`
	Metadata EventMetadata `json:"metadata"`
}

// EventKind classifies an event type string.
type EventKind string

const (
	EventSucceeded   EventKind = "succeeded"
	EventFailed      EventKind = "failed"
	EventCompensated EventKind = "compensated"
)

// EventType renders the event type string, e.g. ORDER_SAGA_STEP_1_FAILED.
func EventType(sagaName string, index int, kind EventKind) string {
	base := fmt.Sprintf("%s_STEP_%d", sagaName, index)
	switch kind {
	case EventFailed:
		return base + "_FAILED"
	case EventCompensated:
		return base + "_COMPENSATED"
	default:
		return base
	}
}

// ParseEventType is the inverse of EventType.
func ParseEventType(sagaName, eventType string) (int, EventKind, bool) {
	rest, ok := strings.CutPrefix(eventType, sagaName+"_STEP_")
	if !ok {
		return 0, "", false
	}
	kind := EventSucceeded
	if trimmed, ok := strings.CutSuffix(rest, "_FAILED"); ok {
		rest, kind = trimmed, EventFailed
	} else if trimmed, ok := strings.CutSuffix(rest, "_COMPENSATED"); ok {
		rest, kind = trimmed, EventCompensated
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, "", false
	}
	return index, kind, true
}

// Step is one unit of work in a saga. Compensate undoes a successful Execute
// and must tolerate being called for work that was never fully applied.
type Step[T any] interface {
	Name() string
	Execute(ctx context.Context, data T) (T, error)
	Compensate(ctx context.Context, data T) error
}

// StepFuncs adapts plain functions to Step. A nil CompensateFunc is a no-op.
type StepFuncs[T any] struct {
	Label          string
	ExecuteFunc    func(ctx context.Context, data T) (T, error)
	CompensateFunc func(ctx context.Context, data T) error
}

func (s StepFuncs[T]) Name() string { return s.Label }

func (s StepFuncs[T]) Execute(ctx context.Context, data T) (T, error) {
	return s.ExecuteFunc(ctx, data)
}

func (s StepFuncs[T]) Compensate(ctx context.Context, data T) error {
	if s.CompensateFunc == nil {
		return nil
	}
	return s.CompensateFunc(ctx, data)
}

// Definition is a named, ordered list of steps.
type Definition[T any] struct {
	Name  string
	Steps []Step[T]
}
