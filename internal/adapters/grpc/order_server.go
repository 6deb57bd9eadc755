package grpc

import (
	"context"
	"encoding/json"

	grocerv1 "grocer/api/grocerv1"
	"grocer/internal/orders"
	"grocer/internal/saga"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OrderService defines the behavior needed by the order adapter.
type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest, idempotencyKey string) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	SagaState(ctx context.Context, orderID string) (*saga.State[orders.SagaData], error)
	ListOrders(ctx context.Context, userID string) ([]orders.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status orders.Status) (orders.Order, error)
}

// OrderServer adapts OrderService to gRPC.
type OrderServer struct {
	service OrderService
}

// NewOrderServer constructs an OrderServer.
func NewOrderServer(svc OrderService) *OrderServer {
	return &OrderServer{service: svc}
}

// Create handles the gRPC request and maps domain errors to gRPC status codes.
func (s *OrderServer) Create(ctx context.Context, req *grocerv1.CreateOrderRequest) (*grocerv1.Order, error) {
	in := orders.CreateOrderRequest{
		UserID:      req.UserID,
		TotalAmount: req.TotalAmount,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, orders.ItemRequest{
			GroceryItemID: item.GroceryItemID,
			Quantity:      int(item.Quantity),
			Price:         item.Price,
		})
	}

	order, err := s.service.CreateOrder(ctx, in, req.IdempotencyKey)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return orderToWire(order), nil
}

func (s *OrderServer) Get(ctx context.Context, req *grocerv1.GetOrderRequest) (*grocerv1.Order, error) {
	order, err := s.service.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	return orderToWire(order), nil
}

func (s *OrderServer) List(ctx context.Context, req *grocerv1.ListOrdersRequest) (*grocerv1.ListOrdersResponse, error) {
	list, err := s.service.ListOrders(ctx, req.UserID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	out := &grocerv1.ListOrdersResponse{Orders: make([]grocerv1.Order, 0, len(list))}
	for _, order := range list {
		out.Orders = append(out.Orders, *orderToWire(order))
	}
	return out, nil
}

func (s *OrderServer) UpdateStatus(ctx context.Context, req *grocerv1.UpdateStatusRequest) (*grocerv1.Order, error) {
	order, err := s.service.UpdateOrderStatus(ctx, req.OrderID, orders.Status(req.Status))
	if err != nil {
		return nil, mapOrderError(err)
	}
	return orderToWire(order), nil
}

func (s *OrderServer) SagaState(ctx context.Context, req *grocerv1.SagaStateRequest) (*grocerv1.SagaStateResponse, error) {
	state, err := s.service.SagaState(ctx, req.OrderID)
	if err != nil {
		return nil, mapOrderError(err)
	}
	if state == nil {
		return &grocerv1.SagaStateResponse{Found: false}, nil
	}
	data, err := json.Marshal(state.Data)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode saga data: %v", err)
	}
	return &grocerv1.SagaStateResponse{
		Found:       true,
		CurrentStep: int32(state.CurrentStep),
		Status:      string(state.Status),
		Error:       state.Error,
		Data:        data,
	}, nil
}

func orderToWire(order orders.Order) *grocerv1.Order {
	out := &grocerv1.Order{
		ID:          order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		PaymentID:   order.PaymentID,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, grocerv1.OrderItem{
			ID:            item.ID,
			GroceryItemID: item.GroceryItemID,
			Quantity:      int64(item.Quantity),
			Price:         item.Price,
		})
	}
	return out
}
