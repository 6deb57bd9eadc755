// Package idempotency maps client idempotency keys to the order they created.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"grocer/internal/kv"
)

// DefaultTTL is how long a key keeps pointing at its order.
const DefaultTTL = 24 * time.Hour

// ErrKeyRequired is returned for a blank idempotency key.
var ErrKeyRequired = errors.New("idempotency key is required")

// Guard records which order an idempotency key produced. The check and the
// commit are separate calls; two racing first requests can both pass Begin.
type Guard struct {
	store kv.Store
	ttl   time.Duration
}

// NewGuard constructs a Guard. A non-positive ttl uses DefaultTTL.
func NewGuard(store kv.Store, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl}
}

func recordKey(key string) string {
	return "order:" + key
}

// Begin reports the order already created under key, if any.
func (g *Guard) Begin(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, ErrKeyRequired
	}
	orderID, err := g.store.Get(ctx, recordKey(key))
	if errors.Is(err, kv.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return orderID, true, nil
}

// Commit binds key to orderID.
func (g *Guard) Commit(ctx context.Context, key, orderID string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyRequired
	}
	if err := g.store.Set(ctx, recordKey(key), orderID, g.ttl); err != nil {
		return fmt.Errorf("idempotency commit: %w", err)
	}
	return nil
}
