package grocerv1

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
)

type OrderItem struct {
	ID            string  `json:"id,omitempty"`
	GroceryItemID string  `json:"groceryItemId"`
	Quantity      int64   `json:"quantity"`
	Price         float64 `json:"price"`
}

type CreateOrderRequest struct {
	IdempotencyKey string      `json:"idempotencyKey"`
	UserID         string      `json:"userId"`
	Items          []OrderItem `json:"items"`
	TotalAmount    float64     `json:"totalAmount"`
}

type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Items       []OrderItem `json:"items"`
	TotalAmount float64     `json:"totalAmount"`
	Status      string      `json:"status"`
	PaymentID   string      `json:"paymentId,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type GetOrderRequest struct {
	OrderID string `json:"orderId"`
}

type ListOrdersRequest struct {
	UserID string `json:"userId"`
}

type ListOrdersResponse struct {
	Orders []Order `json:"orders"`
}

type UpdateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type SagaStateRequest struct {
	OrderID string `json:"orderId"`
}

// SagaStateResponse carries the saga record for an order. Found is false
// when no saga ran for it.
type SagaStateResponse struct {
	Found       bool            `json:"found"`
	CurrentStep int32           `json:"currentStep"`
	Status      string          `json:"status,omitempty"`
	Error       string          `json:"error,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// OrdersServer is the server API for the Orders service.
type OrdersServer interface {
	Create(context.Context, *CreateOrderRequest) (*Order, error)
	Get(context.Context, *GetOrderRequest) (*Order, error)
	SagaState(context.Context, *SagaStateRequest) (*SagaStateResponse, error)
	List(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateStatus(context.Context, *UpdateStatusRequest) (*Order, error)
}

const ordersServiceName = "grocer.order.v1.Orders"

// RegisterOrdersServer registers srv with s.
func RegisterOrdersServer(s grpc.ServiceRegistrar, srv OrdersServer) {
	s.RegisterService(&Orders_ServiceDesc, srv)
}

// Orders_ServiceDesc describes the Orders service.
var Orders_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ordersServiceName,
	HandlerType: (*OrdersServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Create",
			Handler: unaryHandler(ordersServiceName, "Create", func(srv any, ctx context.Context, req *CreateOrderRequest) (any, error) {
				return srv.(OrdersServer).Create(ctx, req)
			}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler(ordersServiceName, "Get", func(srv any, ctx context.Context, req *GetOrderRequest) (any, error) {
				return srv.(OrdersServer).Get(ctx, req)
			}),
		},
		{
			MethodName: "SagaState",
			Handler: unaryHandler(ordersServiceName, "SagaState", func(srv any, ctx context.Context, req *SagaStateRequest) (any, error) {
				return srv.(OrdersServer).SagaState(ctx, req)
			}),
		},
		{
			MethodName: "List",
			Handler: unaryHandler(ordersServiceName, "List", func(srv any, ctx context.Context, req *ListOrdersRequest) (any, error) {
				return srv.(OrdersServer).List(ctx, req)
			}),
		},
		{
			MethodName: "UpdateStatus",
			Handler: unaryHandler(ordersServiceName, "UpdateStatus", func(srv any, ctx context.Context, req *UpdateStatusRequest) (any, error) {
				return srv.(OrdersServer).UpdateStatus(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grocer/order/v1",
}

// OrdersClient is the client API for the Orders service.
type OrdersClient struct {
	cc grpc.ClientConnInterface
}

// NewOrdersClient constructs an Orders client on cc.
func NewOrdersClient(cc grpc.ClientConnInterface) *OrdersClient {
	return &OrdersClient{cc: cc}
}

func (c *OrdersClient) Create(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	out := new(Order)
	if err := invoke(ctx, c.cc, ordersServiceName, "Create", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrdersClient) Get(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*Order, error) {
	out := new(Order)
	if err := invoke(ctx, c.cc, ordersServiceName, "Get", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrdersClient) SagaState(ctx context.Context, in *SagaStateRequest, opts ...grpc.CallOption) (*SagaStateResponse, error) {
	out := new(SagaStateResponse)
	if err := invoke(ctx, c.cc, ordersServiceName, "SagaState", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrdersClient) List(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := invoke(ctx, c.cc, ordersServiceName, "List", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrdersClient) UpdateStatus(ctx context.Context, in *UpdateStatusRequest, opts ...grpc.CallOption) (*Order, error) {
	out := new(Order)
	if err := invoke(ctx, c.cc, ordersServiceName, "UpdateStatus", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
