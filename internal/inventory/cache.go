package inventory

import (
	"context"
	"errors"
	"time"

	"grocer/internal/kv"
	"grocer/internal/logging"

	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a cached item may be served.
const DefaultCacheTTL = time.Hour

// itemCache is a read-through cache of items in the kv store. Cache errors
// are logged and treated as misses; the item store stays authoritative.
type itemCache struct {
	store  kv.Store
	ttl    time.Duration
	logger *zap.Logger
}

func itemKey(id string) string {
	return "item:" + id
}

func (c *itemCache) get(ctx context.Context, id string) (Item, bool) {
	item, err := kv.GetJSON[Item](ctx, c.store, itemKey(id))
	if err == nil {
		return item, true
	}
	if !errors.Is(err, kv.ErrNotFound) {
		logging.Warn(ctx, c.logger, "item cache read failed", zap.String("item_id", id), zap.Error(err))
	}
	return Item{}, false
}

func (c *itemCache) put(ctx context.Context, item Item) {
	if err := kv.SetJSON(ctx, c.store, itemKey(item.ID), item, c.ttl); err != nil {
		logging.Warn(ctx, c.logger, "item cache write failed", zap.String("item_id", item.ID), zap.Error(err))
	}
}

// refresh drops the cached copy and stores the new one.
func (c *itemCache) refresh(ctx context.Context, item Item) {
	c.invalidate(ctx, item.ID)
	c.put(ctx, item)
}

func (c *itemCache) invalidate(ctx context.Context, id string) {
	if err := c.store.Del(ctx, itemKey(id)); err != nil {
		logging.Warn(ctx, c.logger, "item cache invalidation failed", zap.String("item_id", id), zap.Error(err))
	}
}
