package orders

import (
	"errors"
	"fmt"
	"time"

	"grocer/internal/idempotency"
	"grocer/internal/inventory"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

var (
	ErrNotFound               = errors.New("order not found")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrInvalidStatus          = errors.New("invalid order status")
	ErrInventoryReservation   = errors.New("inventory reservation failed")
	ErrProcessingFailed       = errors.New("order processing failed")
	ErrIdempotencyKeyRequired = idempotency.ErrKeyRequired
	// ErrInconsistentIdempotency means a committed idempotency key points at
	// an order the record store no longer has. It is not repaired.
	ErrInconsistentIdempotency = fmt.Errorf("idempotency key refers to a missing order: %w", ErrNotFound)
)

// Item is one line of an order.
type Item struct {
	ID            string  `json:"id"`
	OrderID       string  `json:"orderId"`
	GroceryItemID string  `json:"groceryItemId"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
}

// Order is a customer order and its lines.
type Order struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Items       []Item    `json:"items"`
	TotalAmount float64   `json:"totalAmount"`
	Status      Status    `json:"status"`
	PaymentID   string    `json:"paymentId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ItemRequest is one requested line.
type ItemRequest struct {
	GroceryItemID string  `json:"groceryItemId" validate:"required"`
	Quantity      int     `json:"quantity" validate:"gte=1"`
	Price         float64 `json:"price" validate:"gte=0"`
}

// CreateOrderRequest is the input to CreateOrder.
type CreateOrderRequest struct {
	UserID      string        `json:"userId" validate:"required"`
	Items       []ItemRequest `json:"items" validate:"required,min=1,dive"`
	TotalAmount float64       `json:"totalAmount" validate:"gte=0"`
}

// SagaItem is an order line as carried through the order saga.
type SagaItem struct {
	ItemID   string  `json:"itemId"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// SagaData is the state threaded through the order saga's steps.
type SagaData struct {
	OrderID        string     `json:"orderId"`
	UserID         string     `json:"userId"`
	Items          []SagaItem `json:"items"`
	Status         Status     `json:"status"`
	IdempotencyKey string     `json:"idempotencyKey"`
	TotalAmount    float64    `json:"totalAmount"`
	PaymentID      string     `json:"paymentId,omitempty"`
}

// Lines converts the saga items to inventory reservation lines.
func (d SagaData) Lines() []inventory.Line {
	lines := make([]inventory.Line, 0, len(d.Items))
	for _, item := range d.Items {
		lines = append(lines, inventory.Line{ItemID: item.ItemID, Quantity: item.Quantity})
	}
	return lines
}

func sagaDataFor(order Order, key string) SagaData {
	items := make([]SagaItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, SagaItem{ItemID: item.GroceryItemID, Quantity: item.Quantity, Price: item.Price})
	}
	return SagaData{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Items:          items,
		Status:         order.Status,
		IdempotencyKey: key,
		TotalAmount:    order.TotalAmount,
	}
}
