package grocerv1

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// Line asks for Quantity units of one item.
type Line struct {
	ItemID   string `json:"itemId"`
	Quantity int64  `json:"quantity"`
}

type ReserveRequest struct {
	OrderID string `json:"orderId"`
	Items   []Line `json:"items"`
}

type ReserveResponse struct {
	Success bool `json:"success"`
}

type ReleaseRequest struct {
	OrderID string `json:"orderId"`
	Items   []Line `json:"items"`
}

type CheckRequest struct {
	ItemID string `json:"itemId"`
}

type CheckResponse struct {
	Available bool  `json:"available"`
	Quantity  int64 `json:"quantity"`
}

type UpdateRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int64  `json:"quantity"`
}

// Empty is the reply of fire-and-forget operations.
type Empty struct{}

// Item is a catalog entry.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Quantity    int64     `json:"quantity"`
	Unit        string    `json:"unit,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreateItemRequest struct {
	Item Item `json:"item"`
}

type ListItemsRequest struct{}

type ListItemsResponse struct {
	Items []Item `json:"items"`
}

// UpdateItemRequest changes the fields that are set. A null Categories
// keeps them; an empty list clears them.
type UpdateItemRequest struct {
	ItemID      string   `json:"itemId"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Quantity    *int64   `json:"quantity,omitempty"`
	Unit        *string  `json:"unit,omitempty"`
	Categories  []string `json:"categories"`
}

type DeleteItemRequest struct {
	ItemID string `json:"itemId"`
}

// InventoryServer is the server API for the Inventory service.
type InventoryServer interface {
	Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error)
	Release(context.Context, *ReleaseRequest) (*Empty, error)
	Check(context.Context, *CheckRequest) (*CheckResponse, error)
	Update(context.Context, *UpdateRequest) (*Empty, error)
	CreateItem(context.Context, *CreateItemRequest) (*Item, error)
	ListItems(context.Context, *ListItemsRequest) (*ListItemsResponse, error)
	UpdateItem(context.Context, *UpdateItemRequest) (*Item, error)
	DeleteItem(context.Context, *DeleteItemRequest) (*Empty, error)
}

const inventoryServiceName = "grocer.inventory.v1.Inventory"

// RegisterInventoryServer registers srv with s.
func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&Inventory_ServiceDesc, srv)
}

// Inventory_ServiceDesc describes the Inventory service.
var Inventory_ServiceDesc = grpc.ServiceDesc{
	ServiceName: inventoryServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reserve",
			Handler: unaryHandler(inventoryServiceName, "Reserve", func(srv any, ctx context.Context, req *ReserveRequest) (any, error) {
				return srv.(InventoryServer).Reserve(ctx, req)
			}),
		},
		{
			MethodName: "Release",
			Handler: unaryHandler(inventoryServiceName, "Release", func(srv any, ctx context.Context, req *ReleaseRequest) (any, error) {
				return srv.(InventoryServer).Release(ctx, req)
			}),
		},
		{
			MethodName: "Check",
			Handler: unaryHandler(inventoryServiceName, "Check", func(srv any, ctx context.Context, req *CheckRequest) (any, error) {
				return srv.(InventoryServer).Check(ctx, req)
			}),
		},
		{
			MethodName: "Update",
			Handler: unaryHandler(inventoryServiceName, "Update", func(srv any, ctx context.Context, req *UpdateRequest) (any, error) {
				return srv.(InventoryServer).Update(ctx, req)
			}),
		},
		{
			MethodName: "CreateItem",
			Handler: unaryHandler(inventoryServiceName, "CreateItem", func(srv any, ctx context.Context, req *CreateItemRequest) (any, error) {
				return srv.(InventoryServer).CreateItem(ctx, req)
			}),
		},
		{
			MethodName: "ListItems",
			Handler: unaryHandler(inventoryServiceName, "ListItems", func(srv any, ctx context.Context, req *ListItemsRequest) (any, error) {
				return srv.(InventoryServer).ListItems(ctx, req)
			}),
		},
		{
			MethodName: "UpdateItem",
			Handler: unaryHandler(inventoryServiceName, "UpdateItem", func(srv any, ctx context.Context, req *UpdateItemRequest) (any, error) {
				return srv.(InventoryServer).UpdateItem(ctx, req)
			}),
		},
		{
			MethodName: "DeleteItem",
			Handler: unaryHandler(inventoryServiceName, "DeleteItem", func(srv any, ctx context.Context, req *DeleteItemRequest) (any, error) {
				return srv.(InventoryServer).DeleteItem(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grocer/inventory/v1",
}

// InventoryClient is the client API for the Inventory service.
type InventoryClient struct {
	cc grpc.ClientConnInterface
}

// NewInventoryClient constructs an Inventory client on cc.
func NewInventoryClient(cc grpc.ClientConnInterface) *InventoryClient {
	return &InventoryClient{cc: cc}
}

func (c *InventoryClient) Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*ReserveResponse, error) {
	out := new(ReserveResponse)
	if err := invoke(ctx, c.cc, inventoryServiceName, "Reserve", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := invoke(ctx, c.cc, inventoryServiceName, "Release", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) Check(ctx context.Context, in *CheckRequest, opts ...grpc.CallOption) (*CheckResponse, error) {
	out := new(CheckResponse)
	if err := invoke(ctx, c.cc, inventoryServiceName, "Check", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := invoke(ctx, c.cc, inventoryServiceName, "Update", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) CreateItem(ctx context.Context, in *CreateItemRequest, opts ...grpc.CallOption) (*Item, error) {
	out := new(Item)
	if err := invoke(ctx, c.cc, inventoryServiceName, "CreateItem", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) ListItems(ctx context.Context, in *ListItemsRequest, opts ...grpc.CallOption) (*ListItemsResponse, error) {
	out := new(ListItemsResponse)
	if err := invoke(ctx, c.cc, inventoryServiceName, "ListItems", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) UpdateItem(ctx context.Context, in *UpdateItemRequest, opts ...grpc.CallOption) (*Item, error) {
	out := new(Item)
	if err := invoke(ctx, c.cc, inventoryServiceName, "UpdateItem", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *InventoryClient) DeleteItem(ctx context.Context, in *DeleteItemRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := invoke(ctx, c.cc, inventoryServiceName, "DeleteItem", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
