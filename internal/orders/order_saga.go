package orders

import (
	"context"
	"errors"
	"fmt"

	"grocer/internal/saga"
)

// SagaName names the order saga in the state store and in event types.
const SagaName = "ORDER_SAGA"

// OrderSaga reserves inventory and then takes payment for an order.
type OrderSaga struct {
	orch      *saga.Orchestrator
	inventory InventoryClient
	payments  PaymentClient
}

// NewOrderSaga constructs an OrderSaga.
func NewOrderSaga(orch *saga.Orchestrator, inventory InventoryClient, payments PaymentClient) *OrderSaga {
	return &OrderSaga{orch: orch, inventory: inventory, payments: payments}
}

// Definition returns the two steps of the order saga.
func (s *OrderSaga) Definition() saga.Definition[SagaData] {
	return saga.Definition[SagaData]{
		Name: SagaName,
		Steps: []saga.Step[SagaData]{
			saga.StepFuncs[SagaData]{
				Label:          "reserve-inventory",
				ExecuteFunc:    s.reserve,
				CompensateFunc: s.release,
			},
			saga.StepFuncs[SagaData]{
				Label:          "process-payment",
				ExecuteFunc:    s.charge,
				CompensateFunc: s.refund,
			},
		},
	}
}

// Start runs the saga for data and returns the final data.
func (s *OrderSaga) Start(ctx context.Context, data SagaData) (SagaData, error) {
	return saga.Run(ctx, s.orch, s.Definition(), data, saga.WithReference(data.OrderID))
}

// State returns the last recorded state of the saga run for orderID, or
// nil when no saga ran for it.
func (s *OrderSaga) State(ctx context.Context, orderID string) (*saga.State[SagaData], error) {
	store := s.orch.Store()
	id, err := saga.Lookup(ctx, store, SagaName, orderID)
	if errors.Is(err, saga.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state, err := saga.LoadState[SagaData](ctx, store, SagaName, id)
	if errors.Is(err, saga.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *OrderSaga) reserve(ctx context.Context, data SagaData) (SagaData, error) {
	ok, err := s.inventory.Reserve(ctx, data.OrderID, data.Lines())
	if err != nil {
		return data, fmt.Errorf("%w: %w", ErrInventoryReservation, err)
	}
	if !ok {
		return data, ErrInventoryReservation
	}
	return data, nil
}

func (s *OrderSaga) release(ctx context.Context, data SagaData) error {
	return s.inventory.Release(ctx, data.OrderID, data.Lines())
}

func (s *OrderSaga) charge(ctx context.Context, data SagaData) (SagaData, error) {
	paymentID, err := s.payments.Charge(ctx, data.OrderID, data.TotalAmount)
	if err != nil {
		return data, fmt.Errorf("payment: %w", err)
	}
	data.PaymentID = paymentID
	data.Status = StatusCompleted
	return data, nil
}

func (s *OrderSaga) refund(ctx context.Context, data SagaData) error {
	if data.PaymentID == "" {
		return nil
	}
	return s.payments.Refund(ctx, data.OrderID, data.PaymentID, data.TotalAmount)
}
