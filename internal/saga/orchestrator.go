package saga

import (
	"context"
	"fmt"
	"time"

	"grocer/internal/kv"
	"grocer/internal/logging"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultTTL bounds how long saga records stay in the store.
const DefaultTTL = 24 * time.Hour

// Orchestrator holds the collaborators shared by every saga run.
type Orchestrator struct {
	store    kv.Store
	observer Observer
	logger   *zap.Logger
	tracer   trace.Tracer
	newID    func() string
	now      func() time.Time
	ttl      time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithObserver(o Observer) Option {
	return func(orch *Orchestrator) {
		if o != nil {
			orch.observer = o
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(orch *Orchestrator) {
		orch.logger = logging.OrNop(logger)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(orch *Orchestrator) {
		if tracer != nil {
			orch.tracer = tracer
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(orch *Orchestrator) {
		if newID != nil {
			orch.newID = newID
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(orch *Orchestrator) {
		if now != nil {
			orch.now = now
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(orch *Orchestrator) {
		if ttl > 0 {
			orch.ttl = ttl
		}
	}
}

// New constructs an Orchestrator backed by store.
func New(store kv.Store, opts ...Option) *Orchestrator {
	orch := &Orchestrator{
		store:    store,
		observer: NopObserver{},
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("grocer/saga"),
		newID:    uuid.NewString,
		now:      time.Now,
		ttl:      DefaultTTL,
	}
	for _, opt := range opts {
		opt(orch)
	}
	return orch
}

// Store returns the backing store, for use with the readers.
func (o *Orchestrator) Store() kv.Store {
	return o.store
}

type runConfig struct {
	reference string
}

// RunOption configures a single Run.
type RunOption func(*runConfig)

// WithReference indexes the run under a business key so Lookup can find it.
func WithReference(ref string) RunOption {
	return func(c *runConfig) {
		c.reference = ref
	}
}

// Run executes def's steps in order against data. On the first failure the
// already completed steps are compensated in reverse order, the saga is
// recorded as FAILED and a *StepError wrapping the step's error is returned.
// Compensation errors are reported to the observer and never stop the
// remaining compensations.
func Run[T any](ctx context.Context, o *Orchestrator, def Definition[T], data T, opts ...RunOption) (T, error) {
	if len(def.Steps) == 0 {
		return data, ErrNoSteps
	}
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &run[T]{orch: o, def: def, id: o.newID(), reference: cfg.reference}

	ctx, span := o.tracer.Start(ctx, "saga "+def.Name, trace.WithAttributes(
		attribute.String("saga.name", def.Name),
		attribute.String("saga.id", r.id),
	))
	defer span.End()

	if err := r.saveState(ctx, State[T]{CurrentStep: 0, Data: data, Status: StatusRunning}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return data, fmt.Errorf("saga %s: persist initial state: %w", def.Name, err)
	}
	if r.reference != "" {
		if err := o.store.Set(ctx, ReferenceKey(def.Name, r.reference), r.id, o.ttl); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return data, fmt.Errorf("saga %s: index reference: %w", def.Name, err)
		}
	}
	r.notify(ctx, Notification{Kind: KindSagaStarted})
	started := o.now()

	current := data
	for i, step := range def.Steps {
		stepCtx, stepSpan := o.tracer.Start(ctx, "saga.step "+step.Name(), trace.WithAttributes(
			attribute.Int("saga.step_index", i),
		))
		stepStart := o.now()

		next, err := step.Execute(stepCtx, current)
		if err != nil {
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			return data, r.fail(ctx, span, i, i-1, current, data, err)
		}

		if err := r.recordStep(stepCtx, i, next, i == len(def.Steps)-1); err != nil {
			// The step's effects landed but were not recorded; undo it too.
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()
			return data, r.fail(ctx, span, i, i, next, data, err)
		}
		stepSpan.End()

		r.notify(ctx, Notification{
			Kind:     KindStepSucceeded,
			Step:     step.Name(),
			Index:    i,
			Duration: o.now().Sub(stepStart),
		})
		current = next
	}

	r.notify(ctx, Notification{Kind: KindSagaCompleted, Duration: o.now().Sub(started)})
	return current, nil
}

type run[T any] struct {
	orch      *Orchestrator
	def       Definition[T]
	id        string
	reference string
}

func (r *run[T]) recordStep(ctx context.Context, index int, data T, last bool) error {
	o := r.orch
	if err := kv.SetJSON(ctx, o.store, StepKey(r.def.Name, r.id, index), data, o.ttl); err != nil {
		return fmt.Errorf("persist step result: %w", err)
	}
	status := StatusRunning
	if last {
		status = StatusCompleted
	}
	if err := r.saveState(ctx, State[T]{CurrentStep: index + 1, Data: data, Status: status}); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	if err := r.appendEvent(ctx, index, EventSucceeded, data); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// fail compensates steps from..0, records the terminal state and builds the
// error returned to the caller.
func (r *run[T]) fail(ctx context.Context, span trace.Span, index, from int, current, original T, cause error) error {
	o := r.orch
	step := r.def.Steps[index]
	span.SetStatus(codes.Error, cause.Error())

	// Compensation and bookkeeping must run even if the caller gave up.
	ctx = context.WithoutCancel(ctx)

	if err := r.appendEvent(ctx, index, EventFailed, current); err != nil {
		logging.Warn(ctx, o.logger, "saga event append failed",
			zap.String("saga", r.def.Name), zap.String("saga_id", r.id), zap.Error(err))
	}
	r.notify(ctx, Notification{Kind: KindStepFailed, Step: step.Name(), Index: index, Err: cause})

	for j := from; j >= 0; j-- {
		comp := r.def.Steps[j]
		if err := comp.Compensate(ctx, current); err != nil {
			logging.Error(ctx, o.logger, "saga compensation failed",
				zap.String("saga", r.def.Name), zap.String("saga_id", r.id),
				zap.String("step", comp.Name()), zap.Int("step_index", j), zap.Error(err))
			r.notify(ctx, Notification{Kind: KindCompensationFailed, Step: comp.Name(), Index: j, Err: err})
			continue
		}
		if err := r.appendEvent(ctx, j, EventCompensated, current); err != nil {
			logging.Warn(ctx, o.logger, "saga event append failed",
				zap.String("saga", r.def.Name), zap.String("saga_id", r.id), zap.Error(err))
		}
		r.notify(ctx, Notification{Kind: KindStepCompensated, Step: comp.Name(), Index: j})
	}

	if err := r.saveState(ctx, State[T]{CurrentStep: -1, Data: original, Status: StatusFailed, Error: cause.Error()}); err != nil {
		logging.Error(ctx, o.logger, "saga failed state not persisted",
			zap.String("saga", r.def.Name), zap.String("saga_id", r.id), zap.Error(err))
	}

	r.notify(ctx, Notification{Kind: KindSagaFailed, Step: step.Name(), Index: index, Err: cause})
	return &StepError{Saga: r.def.Name, ID: r.id, Step: step.Name(), Index: index, Err: cause}
}

func (r *run[T]) saveState(ctx context.Context, state State[T]) error {
	return kv.SetJSON(ctx, r.orch.store, StateKey(r.def.Name, r.id), state, r.orch.ttl)
}

func (r *run[T]) appendEvent(ctx context.Context, index int, kind EventKind, payload T) error {
	o := r.orch
	event := Event[T]{
		Type:    EventType(r.def.Name, index, kind),
		Payload: payload,
		Metadata: EventMetadata{
			SagaID:    r.id,
			StepIndex: index,
			Timestamp: o.now().UnixMilli(),
		},
	}
	key := EventsKey(r.def.Name, r.id)
	encoded, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := o.store.Append(ctx, key, encoded); err != nil {
		return err
	}
	return o.store.Expire(ctx, key, o.ttl)
}

func (r *run[T]) notify(ctx context.Context, n Notification) {
	n.Saga = r.def.Name
	n.SagaID = r.id
	n.Reference = r.reference
	n.At = r.orch.now()
	notify(ctx, r.orch.logger, r.orch.observer, n)
}
