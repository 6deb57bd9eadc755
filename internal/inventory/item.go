package inventory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrItemNotFound      = errors.New("grocery item not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyReserved   = errors.New("order already holds a reservation")
	ErrNoReservation     = errors.New("no reservation for order")
	ErrNegativeQuantity  = errors.New("quantity must be >= 0")
	ErrInvalidLine       = errors.New("reservation line needs an item id and a positive quantity")
	ErrOrderIDRequired   = errors.New("order id is required")
	ErrInvalidItem       = errors.New("item needs a name and a non-negative price")
	ErrItemExists        = errors.New("grocery item already exists")
	ErrItemReserved      = errors.New("grocery item is held by an open reservation")
)

// Item is a grocery item and its stock level. Quantity never drops below zero.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Quantity    int       `json:"quantity"`
	Unit        string    `json:"unit"`
	Categories  []string  `json:"categories"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Line asks for Quantity units of one item.
type Line struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// Availability is the answer to a stock check.
type Availability struct {
	Available bool `json:"available"`
	Quantity  int  `json:"quantity"`
}

// ItemPatch names the catalog fields to change. Nil fields keep their
// value; an empty non-nil Categories clears them.
type ItemPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Quantity    *int
	Unit        *string
	Categories  []string
}

// Validate rejects a blank name, a negative price or a negative quantity.
func (p ItemPatch) Validate() error {
	if p.Name != nil && *p.Name == "" {
		return ErrInvalidItem
	}
	if p.Price != nil && *p.Price < 0 {
		return ErrInvalidItem
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

func (p ItemPatch) apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		item.Unit = *p.Unit
	}
	if p.Categories != nil {
		item.Categories = append([]string{}, p.Categories...)
	}
	return item
}

// Update is emitted whenever an item's stock level changes or the item is
// removed from the catalog.
type Update struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// ItemStore is the durable home of grocery items and held reservations.
// Reserve and Release are each one atomic unit: all lines apply or none do.
type ItemStore interface {
	Get(ctx context.Context, id string) (Item, error)
	// List returns every item ordered by id.
	List(ctx context.Context) ([]Item, error)
	// Create returns ErrItemExists when the id is taken.
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, id string, patch ItemPatch) (Item, error)
	// Delete returns ErrItemReserved while any order holds the item.
	Delete(ctx context.Context, id string) error
	SetQuantity(ctx context.Context, id string, quantity int) (Item, error)
	// Reserve records the order's lines and decrements each item only if
	// enough stock remains. Returns ErrAlreadyReserved if the order already
	// holds lines and ErrInsufficientStock if any line falls short.
	Reserve(ctx context.Context, orderID string, lines []Line) ([]Item, error)
	// Release returns the order's held lines to stock and forgets them.
	// Returns ErrNoReservation when nothing is held.
	Release(ctx context.Context, orderID string) ([]Item, error)
}

// Publisher is told about stock level changes.
type Publisher interface {
	PublishInventoryUpdate(ctx context.Context, update Update) error
}

type nopPublisher struct{}

func (nopPublisher) PublishInventoryUpdate(context.Context, Update) error { return nil }

// SortedLines returns a copy of lines ordered by item id. Stores touch rows
// in this order so concurrent reservations lock them consistently.
func SortedLines(lines []Line) []Line {
	out := slices.Clone(lines)
	slices.SortStableFunc(out, func(a, b Line) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return out
}

// normalizeLines validates lines, merges repeated items and sorts by item id.
func normalizeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidLine
	}
	merged := make([]Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.ItemID == "" || line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %+v", ErrInvalidLine, line)
		}
		if i, ok := index[line.ItemID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return SortedLines(merged), nil
}
