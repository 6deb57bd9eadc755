package orders

import (
	"context"
	"errors"
	"fmt"

	"grocer/internal/idempotency"
	"grocer/internal/logging"
	"grocer/internal/saga"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService runs the create-order workflow: idempotency check, pending
// record, saga, final status.
type OrderService struct {
	orders   Store
	guard    *idempotency.Guard
	saga     *OrderSaga
	validate *validator.Validate
	newID    func() string
	logger   *zap.Logger
}

// ServiceOption configures an OrderService.
type ServiceOption func(*OrderService)

// WithIDGenerator overrides the order id generator.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *OrderService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewOrderService constructs an OrderService.
func NewOrderService(orders Store, guard *idempotency.Guard, orderSaga *OrderSaga, logger *zap.Logger, opts ...ServiceOption) *OrderService {
	s := &OrderService{
		orders:   orders,
		guard:    guard,
		saga:     orderSaga,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		newID:    uuid.NewString,
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder creates an order once per idempotency key and runs the order
// saga for it. A repeated key returns the order created the first time,
// whatever its status.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (Order, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrInvalidOrder, err)
	}

	existingID, found, err := s.guard.Begin(ctx, idempotencyKey)
	if err != nil {
		return Order{}, err
	}
	if found {
		order, err := s.orders.Get(ctx, existingID)
		if errors.Is(err, ErrNotFound) {
			logging.Error(ctx, s.logger, "idempotency key points at missing order",
				zap.String("idempotency_key", idempotencyKey), zap.String("order_id", existingID))
			return Order{}, ErrInconsistentIdempotency
		}
		if err != nil {
			return Order{}, err
		}
		logging.Info(ctx, s.logger, "duplicate order request", zap.String("order_id", order.ID))
		return order, nil
	}

	orderID := s.newID()
	order := Order{
		ID:          orderID,
		UserID:      req.UserID,
		TotalAmount: req.TotalAmount,
		Status:      StatusPending,
	}
	for _, line := range req.Items {
		order.Items = append(order.Items, Item{
			ID:            s.newID(),
			OrderID:       orderID,
			GroceryItemID: line.GroceryItemID,
			Quantity:      line.Quantity,
			Price:         line.Price,
		})
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}

	if err := s.guard.Commit(ctx, idempotencyKey, created.ID); err != nil {
		s.markFailed(ctx, created.ID)
		return Order{}, err
	}

	result, err := s.saga.Start(ctx, sagaDataFor(created, idempotencyKey))
	if err != nil {
		s.markFailed(ctx, created.ID)
		return Order{}, fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	completed, err := s.orders.UpdateStatus(ctx, created.ID, result.Status, result.PaymentID)
	if err != nil {
		return Order{}, fmt.Errorf("record order outcome: %w", err)
	}
	logging.Info(ctx, s.logger, "order completed",
		zap.String("order_id", completed.ID), zap.String("payment_id", completed.PaymentID))
	return completed, nil
}

// GetOrder returns an order by id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (Order, error) {
	return s.orders.Get(ctx, id)
}

// ListOrders returns a user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidOrder)
	}
	return s.orders.ListByUser(ctx, userID)
}

// UpdateOrderStatus overwrites an order's status.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status Status) (Order, error) {
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.orders.UpdateStatus(ctx, id, status, "")
}

// SagaState returns the recorded saga state for an order, or nil.
func (s *OrderService) SagaState(ctx context.Context, orderID string) (*saga.State[SagaData], error) {
	return s.saga.State(ctx, orderID)
}

func (s *OrderService) markFailed(ctx context.Context, orderID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.orders.UpdateStatus(ctx, orderID, StatusFailed, ""); err != nil {
		logging.Error(ctx, s.logger, "order failure not recorded", zap.String("order_id", orderID), zap.Error(err))
	}
}
