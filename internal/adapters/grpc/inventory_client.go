package grpc

import (
	"context"
	"time"

	grocerv1 "grocer/api/grocerv1"
	"grocer/internal/inventory"

	grpcpkg "google.golang.org/grpc"
)

// InventoryClient reaches a remote inventory service. It satisfies the
// order saga's inventory port.
type InventoryClient struct {
	client  *grocerv1.InventoryClient
	timeout time.Duration
}

// NewInventoryClient constructs an InventoryClient on conn. A positive
// timeout bounds every call.
func NewInventoryClient(conn grpcpkg.ClientConnInterface, timeout time.Duration) *InventoryClient {
	return &InventoryClient{client: grocerv1.NewInventoryClient(conn), timeout: timeout}
}

func (c *InventoryClient) Reserve(ctx context.Context, orderID string, lines []inventory.Line) (bool, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.client.Reserve(ctx, &grocerv1.ReserveRequest{OrderID: orderID, Items: linesToWire(lines)})
	if err != nil {
		return false, statusToInventoryError(err)
	}
	return resp.Success, nil
}

func (c *InventoryClient) Release(ctx context.Context, orderID string, lines []inventory.Line) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	if _, err := c.client.Release(ctx, &grocerv1.ReleaseRequest{OrderID: orderID, Items: linesToWire(lines)}); err != nil {
		return statusToInventoryError(err)
	}
	return nil
}

// Check reports an item's stock level.
func (c *InventoryClient) Check(ctx context.Context, itemID string) (inventory.Availability, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	resp, err := c.client.Check(ctx, &grocerv1.CheckRequest{ItemID: itemID})
	if err != nil {
		return inventory.Availability{}, statusToInventoryError(err)
	}
	return inventory.Availability{Available: resp.Available, Quantity: int(resp.Quantity)}, nil
}

// Update overwrites an item's stock level.
func (c *InventoryClient) Update(ctx context.Context, itemID string, quantity int) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	if _, err := c.client.Update(ctx, &grocerv1.UpdateRequest{ItemID: itemID, Quantity: int64(quantity)}); err != nil {
		return statusToInventoryError(err)
	}
	return nil
}

func (c *InventoryClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
