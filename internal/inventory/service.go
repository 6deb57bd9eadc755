package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocer/internal/kv"
	"grocer/internal/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMarkerTTL bounds how long a reservation marker survives.
const DefaultMarkerTTL = 24 * time.Hour

// Service checks, reserves and releases stock. Reservations are recorded
// by the ItemStore; the kv marker only short-circuits repeat requests.
type Service struct {
	items     ItemStore
	kv        kv.Store
	cache     *itemCache
	publisher Publisher
	logger    *zap.Logger
	markerTTL time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cache.ttl = ttl
		}
	}
}

// WithMarkerTTL overrides DefaultMarkerTTL.
func WithMarkerTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.markerTTL = ttl
		}
	}
}

// NewService constructs a Service. A nil publisher discards updates.
func NewService(items ItemStore, store kv.Store, publisher Publisher, logger *zap.Logger, opts ...ServiceOption) *Service {
	logger = logging.OrNop(logger)
	if publisher == nil {
		publisher = nopPublisher{}
	}
	s := &Service{
		items:     items,
		kv:        store,
		cache:     &itemCache{store: store, ttl: DefaultCacheTTL, logger: logger},
		publisher: publisher,
		logger:    logger,
		markerTTL: DefaultMarkerTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func markerKey(orderID string) string {
	return "reservation:" + orderID
}

// CheckAvailability reports the current stock of an item, serving from the
// cache when possible.
func (s *Service) CheckAvailability(ctx context.Context, itemID string) (Availability, error) {
	item, err := s.Item(ctx, itemID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Available: item.Quantity > 0, Quantity: item.Quantity}, nil
}

// Item returns an item through the read-through cache.
func (s *Service) Item(ctx context.Context, itemID string) (Item, error) {
	if item, ok := s.cache.get(ctx, itemID); ok {
		return item, nil
	}
	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	s.cache.put(ctx, item)
	return item, nil
}

// CreateItem stores a new grocery item and announces its stock level. A
// blank id is filled with a fresh uuid.
func (s *Service) CreateItem(ctx context.Context, item Item) (Item, error) {
	if item.Quantity < 0 {
		return Item{}, ErrNegativeQuantity
	}
	if item.Name == "" || item.Price < 0 {
		return Item{}, ErrInvalidItem
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	created, err := s.items.Create(ctx, item)
	if err != nil {
		return Item{}, err
	}
	s.changed(ctx, []Item{created})
	logging.Info(ctx, s.logger, "grocery item created", zap.String("item_id", created.ID))
	return created, nil
}

// ListItems returns the whole catalog ordered by id.
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.items.List(ctx)
}

// UpdateItem changes an item's catalog fields.
func (s *Service) UpdateItem(ctx context.Context, itemID string, patch ItemPatch) (Item, error) {
	updated, err := s.items.Update(ctx, itemID, patch)
	if err != nil {
		return Item{}, err
	}
	s.changed(ctx, []Item{updated})
	return updated, nil
}

// DeleteItem removes an item from the catalog. Items held by an open
// reservation cannot be removed.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	if err := s.items.Delete(ctx, itemID); err != nil {
		return err
	}
	s.cache.invalidate(ctx, itemID)
	if err := s.publisher.PublishInventoryUpdate(ctx, Update{ItemID: itemID, Deleted: true}); err != nil {
		logging.Warn(ctx, s.logger, "inventory update not published", zap.String("item_id", itemID), zap.Error(err))
	}
	logging.Info(ctx, s.logger, "grocery item deleted", zap.String("item_id", itemID))
	return nil
}

// Reserve holds stock for every line of an order. It returns false, with no
// stock touched, when any line cannot be covered. Repeating a reservation
// for the same order is a no-op that returns true.
func (s *Service) Reserve(ctx context.Context, orderID string, lines []Line) (bool, error) {
	if orderID == "" {
		return false, ErrOrderIDRequired
	}
	lines, err := normalizeLines(lines)
	if err != nil {
		return false, err
	}

	held, err := s.kv.Exists(ctx, markerKey(orderID))
	if err != nil {
		logging.Warn(ctx, s.logger, "reservation marker lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if held {
		logging.Debug(ctx, s.logger, "reservation already held", zap.String("order_id", orderID))
		return true, nil
	}

	for _, line := range lines {
		availability, err := s.CheckAvailability(ctx, line.ItemID)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", line.ItemID, err)
		}
		if availability.Quantity < line.Quantity {
			logging.Info(ctx, s.logger, "insufficient stock",
				zap.String("order_id", orderID),
				zap.String("item_id", line.ItemID),
				zap.Int("requested", line.Quantity),
				zap.Int("available", availability.Quantity))
			return false, nil
		}
	}

	updated, err := s.items.Reserve(ctx, orderID, lines)
	switch {
	case errors.Is(err, ErrAlreadyReserved):
		s.setMarker(ctx, orderID)
		return true, nil
	case errors.Is(err, ErrInsufficientStock):
		logging.Info(ctx, s.logger, "insufficient stock at commit", zap.String("order_id", orderID))
		return false, nil
	case err != nil:
		return false, fmt.Errorf("reserve order %s: %w", orderID, err)
	}

	s.changed(ctx, updated)
	s.setMarker(ctx, orderID)
	logging.Info(ctx, s.logger, "inventory reserved", zap.String("order_id", orderID), zap.Int("lines", len(lines)))
	return true, nil
}

// Release returns an order's reserved stock. Releasing an order that holds
// nothing is a no-op. lines is checked against what was actually held.
func (s *Service) Release(ctx context.Context, orderID string, lines []Line) error {
	if orderID == "" {
		return ErrOrderIDRequired
	}

	restored, err := s.items.Release(ctx, orderID)
	if errors.Is(err, ErrNoReservation) {
		logging.Debug(ctx, s.logger, "nothing to release", zap.String("order_id", orderID))
		s.clearMarker(ctx, orderID)
		return nil
	}
	if err != nil {
		logging.Error(ctx, s.logger, "inventory release failed", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("release order %s: %w", orderID, err)
	}

	if requested, err := normalizeLines(lines); err == nil && len(requested) != len(restored) {
		logging.Warn(ctx, s.logger, "release lines differ from held reservation",
			zap.String("order_id", orderID),
			zap.Int("requested_lines", len(requested)),
			zap.Int("held_lines", len(restored)))
	}

	s.changed(ctx, restored)
	s.clearMarker(ctx, orderID)
	logging.Info(ctx, s.logger, "inventory released", zap.String("order_id", orderID))
	return nil
}

// UpdateLevel overwrites an item's stock level.
func (s *Service) UpdateLevel(ctx context.Context, itemID string, quantity int) (Item, error) {
	if quantity < 0 {
		return Item{}, ErrNegativeQuantity
	}
	item, err := s.items.SetQuantity(ctx, itemID, quantity)
	if err != nil {
		return Item{}, err
	}
	s.changed(ctx, []Item{item})
	return item, nil
}

// changed refreshes the cache and announces the new level of each item.
func (s *Service) changed(ctx context.Context, items []Item) {
	for _, item := range items {
		s.cache.refresh(ctx, item)
		update := Update{ItemID: item.ID, Quantity: item.Quantity}
		if err := s.publisher.PublishInventoryUpdate(ctx, update); err != nil {
			logging.Warn(ctx, s.logger, "inventory update not published", zap.String("item_id", item.ID), zap.Error(err))
		}
	}
}

func (s *Service) setMarker(ctx context.Context, orderID string) {
	if err := s.kv.Set(ctx, markerKey(orderID), "true", s.markerTTL); err != nil {
		logging.Warn(ctx, s.logger, "reservation marker not written", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) clearMarker(ctx context.Context, orderID string) {
	if err := s.kv.Del(ctx, markerKey(orderID)); err != nil {
		logging.Warn(ctx, s.logger, "reservation marker not cleared", zap.String("order_id", orderID), zap.Error(err))
	}
}
