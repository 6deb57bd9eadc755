package orders

import (
	"context"
	"errors"
	"sync"

	"grocer/internal/inventory"
)

// InventoryClient reserves and releases stock for an order. Both the
// in-process inventory.Service and the gRPC client satisfy it.
type InventoryClient interface {
	Reserve(ctx context.Context, orderID string, lines []inventory.Line) (bool, error)
	Release(ctx context.Context, orderID string, lines []inventory.Line) error
}

// PaymentClient charges an order and returns the payment id.
type PaymentClient interface {
	Charge(ctx context.Context, orderID string, amount float64) (string, error)
	Refund(ctx context.Context, orderID, paymentID string, amount float64) error
}

// PaymentIDFor is the id the stub payment processor assigns to an order.
func PaymentIDFor(orderID string) string {
	return "dummy-payment-" + orderID
}

// NewStubPaymentClient constructs a payment client that always succeeds.
func NewStubPaymentClient() *StubPaymentClient {
	return &StubPaymentClient{
		charges:  make(map[string]float64),
		refunded: make(map[string]bool),
	}
}

// StubPaymentClient approves every charge and remembers it.
type StubPaymentClient struct {
	mu       sync.Mutex
	charges  map[string]float64
	refunded map[string]bool
}

func (c *StubPaymentClient) Charge(ctx context.Context, orderID string, amount float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.charges[orderID] = amount
	return PaymentIDFor(orderID), nil
}

func (c *StubPaymentClient) Refund(ctx context.Context, orderID, paymentID string, amount float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.charges[orderID]; !ok {
		return errors.New("refund without charge")
	}
	c.refunded[orderID] = true
	return nil
}

// WasCharged reports whether an order was charged (for testing/inspection).
func (c *StubPaymentClient) WasCharged(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.charges[orderID]
	return ok
}

// WasRefunded reports whether an order was refunded (for testing/inspection).
func (c *StubPaymentClient) WasRefunded(orderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refunded[orderID]
}

// Charges returns how many orders were charged.
func (c *StubPaymentClient) Charges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.charges)
}
