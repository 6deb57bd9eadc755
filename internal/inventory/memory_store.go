package inventory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryItemStore keeps items and reservations in process. One mutex covers
// both, which makes Reserve and Release atomic.
type MemoryItemStore struct {
	mu           sync.Mutex
	items        map[string]Item
	reservations map[string][]Line
	now          func() time.Time
}

// NewMemoryItemStore constructs an empty store.
func NewMemoryItemStore() *MemoryItemStore {
	return &MemoryItemStore{
		items:        make(map[string]Item),
		reservations: make(map[string][]Line),
		now:          time.Now,
	}
}

func (s *MemoryItemStore) Get(ctx context.Context, id string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (s *MemoryItemStore) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, cloneItem(item))
	}
	slices.SortFunc(out, func(a, b Item) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryItemStore) Create(ctx context.Context, item Item) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if item.Quantity < 0 {
		return Item{}, ErrNegativeQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.items[item.ID]; taken {
		return Item{}, ErrItemExists
	}
	now := s.now()
	item.CreatedAt, item.UpdatedAt = now, now
	s.items[item.ID] = cloneItem(item)
	return cloneItem(item), nil
}

func (s *MemoryItemStore) Update(ctx context.Context, id string, patch ItemPatch) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if err := patch.Validate(); err != nil {
		return Item{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	item = patch.apply(item)
	item.UpdatedAt = s.now()
	s.items[id] = item
	return cloneItem(item), nil
}

func (s *MemoryItemStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrItemNotFound
	}
	for _, lines := range s.reservations {
		for _, line := range lines {
			if line.ItemID == id {
				return ErrItemReserved
			}
		}
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryItemStore) SetQuantity(ctx context.Context, id string, quantity int) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if quantity < 0 {
		return Item{}, ErrNegativeQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	item.Quantity = quantity
	item.UpdatedAt = s.now()
	s.items[id] = item
	return cloneItem(item), nil
}

func (s *MemoryItemStore) Reserve(ctx context.Context, orderID string, lines []Line) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.reservations[orderID]; held {
		return nil, ErrAlreadyReserved
	}
	for _, line := range lines {
		item, ok := s.items[line.ItemID]
		if !ok {
			return nil, ErrItemNotFound
		}
		if item.Quantity < line.Quantity {
			return nil, ErrInsufficientStock
		}
	}

	now := s.now()
	updated := make([]Item, 0, len(lines))
	for _, line := range lines {
		item := s.items[line.ItemID]
		item.Quantity -= line.Quantity
		item.UpdatedAt = now
		s.items[line.ItemID] = item
		updated = append(updated, cloneItem(item))
	}
	s.reservations[orderID] = append([]Line(nil), lines...)
	return updated, nil
}

func (s *MemoryItemStore) Release(ctx context.Context, orderID string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, held := s.reservations[orderID]
	if !held {
		return nil, ErrNoReservation
	}
	now := s.now()
	restored := make([]Item, 0, len(lines))
	for _, line := range lines {
		item, ok := s.items[line.ItemID]
		if !ok {
			continue
		}
		item.Quantity += line.Quantity
		item.UpdatedAt = now
		s.items[line.ItemID] = item
		restored = append(restored, cloneItem(item))
	}
	delete(s.reservations, orderID)
	return restored, nil
}

// Held returns the lines reserved for orderID, if any.
func (s *MemoryItemStore) Held(orderID string) ([]Line, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.reservations[orderID]
	return append([]Line(nil), lines...), ok
}

func cloneItem(item Item) Item {
	item.Categories = append([]string(nil), item.Categories...)
	return item
}
