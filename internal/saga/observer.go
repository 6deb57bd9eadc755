package saga

import (
	"context"
	"time"

	"grocer/internal/logging"

	"go.uber.org/zap"
)

// Kind names a lifecycle notification.
type Kind string

const (
	KindSagaStarted        Kind = "saga_started"
	KindStepSucceeded      Kind = "step_succeeded"
	KindStepFailed         Kind = "step_failed"
	KindStepCompensated    Kind = "step_compensated"
	KindCompensationFailed Kind = "compensation_failed"
	KindSagaCompleted      Kind = "saga_completed"
	KindSagaFailed         Kind = "saga_failed"
)

// Notification describes one lifecycle transition. Step and Index are only
// set for step-level kinds; Err is set for failures.
type Notification struct {
	Kind      Kind
	Saga      string
	SagaID    string
	Reference string
	Step      string
	Index     int
	Err       error
	Duration  time.Duration
	At        time.Time
}

// Observer receives notifications synchronously. A panicking observer does
// not affect the saga; the panic is logged.
type Observer interface {
	Observe(ctx context.Context, n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, n Notification)

func (f ObserverFunc) Observe(ctx context.Context, n Notification) { f(ctx, n) }

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) Observe(context.Context, Notification) {}

// MultiObserver forwards to each observer in order. A panic in one does not
// skip the rest; the first one is raised again once all have run.
type MultiObserver []Observer

func (m MultiObserver) Observe(ctx context.Context, n Notification) {
	var first any
	for _, o := range m {
		if p := observe(ctx, o, n); p != nil && first == nil {
			first = p
		}
	}
	if first != nil {
		panic(first)
	}
}

// LogObserver writes notifications to a zap logger. Failures log at error
// level, compensation failures included, since they leave state behind.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logging.OrNop(logger)}
}

func (l *LogObserver) Observe(ctx context.Context, n Notification) {
	fields := []zap.Field{
		zap.String("saga", n.Saga),
		zap.String("saga_id", n.SagaID),
	}
	if n.Reference != "" {
		fields = append(fields, zap.String("reference", n.Reference))
	}
	if n.Step != "" {
		fields = append(fields, zap.String("step", n.Step), zap.Int("step_index", n.Index))
	}
	if n.Duration > 0 {
		fields = append(fields, zap.Duration("duration", n.Duration))
	}
	if n.Err != nil {
		fields = append(fields, zap.Error(n.Err))
	}

	switch n.Kind {
	case KindStepFailed, KindSagaFailed:
		logging.Warn(ctx, l.logger, string(n.Kind), fields...)
	case KindCompensationFailed:
		logging.Error(ctx, l.logger, string(n.Kind), fields...)
	case KindSagaStarted, KindSagaCompleted:
		logging.Info(ctx, l.logger, string(n.Kind), fields...)
	default:
		logging.Debug(ctx, l.logger, string(n.Kind), fields...)
	}
}

func notify(ctx context.Context, logger *zap.Logger, o Observer, n Notification) {
	if p := observe(ctx, o, n); p != nil {
		logging.Error(ctx, logging.OrNop(logger), "saga observer panicked",
			zap.String("saga", n.Saga),
			zap.String("saga_id", n.SagaID),
			zap.String("kind", string(n.Kind)),
			zap.Any("panic", p))
	}
}

// observe calls o and returns what it panicked with, if anything.
func observe(ctx context.Context, o Observer, n Notification) (recovered any) {
	if o == nil {
		return nil
	}
	defer func() {
		recovered = recover()
	}()
	o.Observe(ctx, n)
	return nil
}
