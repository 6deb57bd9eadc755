package orders_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"grocer/internal/idempotency"
	"grocer/internal/inventory"
	"grocer/internal/kv"
	"grocer/internal/orders"
	"grocer/internal/saga"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	mr       *miniredis.Miniredis
	items    *inventory.MemoryItemStore
	stock    *inventory.Service
	payments *orders.StubPaymentClient
	service  *orders.OrderService
}

func newStack(t *testing.T, seed ...inventory.Item) stack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := kv.NewRedisStore(client)

	items := inventory.NewMemoryItemStore()
	stock := inventory.NewService(items, store, nil, nil)
	for _, item := range seed {
		_, err := stock.CreateItem(context.Background(), item)
		require.NoError(t, err)
	}

	payments := orders.NewStubPaymentClient()
	orderSaga := orders.NewOrderSaga(saga.New(store), stock, payments)
	service := orders.NewOrderService(orders.NewMemoryStore(), idempotency.NewGuard(store, 0), orderSaga, nil)
	return stack{mr: mr, items: items, stock: stock, payments: payments, service: service}
}

func order(itemID string, qty int) orders.CreateOrderRequest {
	return orders.CreateOrderRequest{
		UserID:      "user-1",
		Items:       []orders.ItemRequest{{GroceryItemID: itemID, Quantity: qty, Price: 1}},
		TotalAmount: float64(qty),
	}
}

func quantity(t *testing.T, s stack, itemID string) int {
	t.Helper()
	avail, err := s.stock.CheckAvailability(context.Background(), itemID)
	require.NoError(t, err)
	return avail.Quantity
}

func TestOrderFlow_ReservesAndCompletes(t *testing.T) {
	s := newStack(t, inventory.Item{ID: "milk", Name: "Milk", Price: 1.5, Quantity: 10, Unit: "l"})
	ctx := context.Background()

	created, err := s.service.CreateOrder(ctx, order("milk", 3), "flow-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, created.Status)
	assert.Equal(t, orders.PaymentIDFor(created.ID), created.PaymentID)
	assert.Equal(t, 7, quantity(t, s, "milk"))
	assert.True(t, s.mr.Exists("reservation:"+created.ID))
	assert.True(t, s.mr.Exists("order:flow-1"))

	held, ok := s.items.Held(created.ID)
	require.True(t, ok)
	assert.Equal(t, []inventory.Line{{ItemID: "milk", Quantity: 3}}, held)

	repeat, err := s.service.CreateOrder(ctx, order("milk", 3), "flow-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, repeat.ID)
	assert.Equal(t, 7, quantity(t, s, "milk"), "duplicate request must not reserve twice")
}

func TestOrderFlow_InsufficientStockLeavesInventoryUntouched(t *testing.T) {
	s := newStack(t, inventory.Item{ID: "eggs", Name: "Eggs", Quantity: 2})
	ctx := context.Background()

	_, err := s.service.CreateOrder(ctx, order("eggs", 5), "flow-short")
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrProcessingFailed)
	assert.ErrorIs(t, err, orders.ErrInventoryReservation)
	assert.Equal(t, 2, quantity(t, s, "eggs"))
	assert.Zero(t, s.payments.Charges())

	failed, err := s.service.CreateOrder(ctx, order("eggs", 5), "flow-short")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailed, failed.Status)
}

func TestOrderFlow_CompetingOrdersNeverOversell(t *testing.T) {
	s := newStack(t, inventory.Item{ID: "flour", Name: "Flour", Quantity: 50})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.service.CreateOrder(ctx, order("flour", 30), fmt.Sprintf("race-%d", i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, orders.ErrInventoryReservation), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 20, quantity(t, s, "flour"))
}

func TestOrderFlow_UnknownItemFails(t *testing.T) {
	s := newStack(t)

	_, err := s.service.CreateOrder(context.Background(), order("ghost", 1), "flow-ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
	assert.Zero(t, s.payments.Charges())
}
