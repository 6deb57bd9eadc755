package orders

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists orders and their items.
type Store interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser returns a user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, paymentID string) (Order, error)
}

// MemoryStore keeps orders in memory.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
	now    func() time.Time
}

// NewMemoryStore constructs an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]Order),
		now:    time.Now,
	}
}

func (m *MemoryStore) Create(ctx context.Context, order Order) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	order.CreatedAt, order.UpdatedAt = now, now
	m.orders[order.ID] = cloneOrder(order)
	return cloneOrder(order), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, order := range m.orders {
		if order.UserID == userID {
			out = append(out, cloneOrder(order))
		}
	}
	slices.SortFunc(out, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status, paymentID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	order.Status = status
	if paymentID != "" {
		order.PaymentID = paymentID
	}
	order.UpdatedAt = m.now()
	m.orders[id] = order
	return cloneOrder(order), nil
}

// Delete removes an order. Used to simulate record loss in tests.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	delete(m.orders, id)
	m.mu.Unlock()
}

func cloneOrder(order Order) Order {
	order.Items = append([]Item(nil), order.Items...)
	return order
}
