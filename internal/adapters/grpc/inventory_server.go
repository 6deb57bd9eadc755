package grpc

import (
	"context"

	grocerv1 "grocer/api/grocerv1"
	"grocer/internal/inventory"
)

// InventoryService defines the behavior needed by the inventory adapter.
type InventoryService interface {
	Reserve(ctx context.Context, orderID string, lines []inventory.Line) (bool, error)
	Release(ctx context.Context, orderID string, lines []inventory.Line) error
	CheckAvailability(ctx context.Context, itemID string) (inventory.Availability, error)
	UpdateLevel(ctx context.Context, itemID string, quantity int) (inventory.Item, error)
	CreateItem(ctx context.Context, item inventory.Item) (inventory.Item, error)
	ListItems(ctx context.Context) ([]inventory.Item, error)
	UpdateItem(ctx context.Context, itemID string, patch inventory.ItemPatch) (inventory.Item, error)
	DeleteItem(ctx context.Context, itemID string) error
}

// InventoryServer adapts InventoryService to gRPC.
type InventoryServer struct {
	service InventoryService
}

// NewInventoryServer constructs an InventoryServer.
func NewInventoryServer(svc InventoryService) *InventoryServer {
	return &InventoryServer{service: svc}
}

func (s *InventoryServer) Reserve(ctx context.Context, req *grocerv1.ReserveRequest) (*grocerv1.ReserveResponse, error) {
	ok, err := s.service.Reserve(ctx, req.OrderID, linesFromWire(req.Items))
	if err != nil {
		return nil, mapInventoryError(err)
	}
	return &grocerv1.ReserveResponse{Success: ok}, nil
}

func (s *InventoryServer) Release(ctx context.Context, req *grocerv1.ReleaseRequest) (*grocerv1.Empty, error) {
	if err := s.service.Release(ctx, req.OrderID, linesFromWire(req.Items)); err != nil {
		return nil, mapInventoryError(err)
	}
	return &grocerv1.Empty{}, nil
}

func (s *InventoryServer) Check(ctx context.Context, req *grocerv1.CheckRequest) (*grocerv1.CheckResponse, error) {
	avail, err := s.service.CheckAvailability(ctx, req.ItemID)
	if err != nil {
		return nil, mapInventoryError(err)
	}
	return &grocerv1.CheckResponse{Available: avail.Available, Quantity: int64(avail.Quantity)}, nil
}

func (s *InventoryServer) Update(ctx context.Context, req *grocerv1.UpdateRequest) (*grocerv1.Empty, error) {
	if _, err := s.service.UpdateLevel(ctx, req.ItemID, int(req.Quantity)); err != nil {
		return nil, mapInventoryError(err)
	}
	return &grocerv1.Empty{}, nil
}

func (s *InventoryServer) CreateItem(ctx context.Context, req *grocerv1.CreateItemRequest) (*grocerv1.Item, error) {
	in := req.Item
	created, err := s.service.CreateItem(ctx, inventory.Item{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Quantity:    int(in.Quantity),
		Unit:        in.Unit,
		Categories:  in.Categories,
	})
	if err != nil {
		return nil, mapInventoryError(err)
	}
	return itemToWire(created), nil
}

func (s *InventoryServer) ListItems(ctx context.Context, _ *grocerv1.ListItemsRequest) (*grocerv1.ListItemsResponse, error) {
	items, err := s.service.ListItems(ctx)
	if err != nil {
		return nil, mapInventoryError(err)
	}
	out := &grocerv1.ListItemsResponse{Items: make([]grocerv1.Item, 0, len(items))}
	for _, item := range items {
		out.Items = append(out.Items, *itemToWire(item))
	}
	return out, nil
}

func (s *InventoryServer) UpdateItem(ctx context.Context, req *grocerv1.UpdateItemRequest) (*grocerv1.Item, error) {
	patch := inventory.ItemPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Unit:        req.Unit,
		Categories:  req.Categories,
	}
	if req.Quantity != nil {
		qty := int(*req.Quantity)
		patch.Quantity = &qty
	}
	updated, err := s.service.UpdateItem(ctx, req.ItemID, patch)
	if err != nil {
		return nil, mapInventoryError(err)
	}
	return itemToWire(updated), nil
}

func (s *InventoryServer) DeleteItem(ctx context.Context, req *grocerv1.DeleteItemRequest) (*grocerv1.Empty, error) {
	if err := s.service.DeleteItem(ctx, req.ItemID); err != nil {
		return nil, mapInventoryError(err)
	}
	return &grocerv1.Empty{}, nil
}

func itemToWire(item inventory.Item) *grocerv1.Item {
	return &grocerv1.Item{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Price:       item.Price,
		Quantity:    int64(item.Quantity),
		Unit:        item.Unit,
		Categories:  item.Categories,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

func linesFromWire(in []grocerv1.Line) []inventory.Line {
	out := make([]inventory.Line, 0, len(in))
	for _, l := range in {
		out = append(out, inventory.Line{ItemID: l.ItemID, Quantity: int(l.Quantity)})
	}
	return out
}

func linesToWire(in []inventory.Line) []grocerv1.Line {
	out := make([]grocerv1.Line, 0, len(in))
	for _, l := range in {
		out = append(out, grocerv1.Line{ItemID: l.ItemID, Quantity: int64(l.Quantity)})
	}
	return out
}
