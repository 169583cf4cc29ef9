package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps the per-tenant low-stock listing in Redis for a short TTL.
// A nil *Cache is a no-op, so the service runs without Redis in tests and
// degraded deployments.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache. TTL values <= 0 fall back to 30 seconds.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

func lowStockKey(teamID string) string {
	return fmt.Sprintf("ledger:lowstock:%s", teamID)
}

// Get returns the cached listing and whether it was present.
func (c *Cache) Get(ctx context.Context, teamID string) ([]StockItem, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, lowStockKey(teamID)).Bytes()
	if err != nil {
		return nil, false
	}
	var items []StockItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, false
	}
	return items, true
}

// Set stores the listing. Failures are ignored; the cache is advisory.
func (c *Cache) Set(ctx context.Context, teamID string, items []StockItem) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, lowStockKey(teamID), payload, c.ttl).Err()
}

// Invalidate drops the tenant's cached listing after a mutation.
func (c *Cache) Invalidate(ctx context.Context, teamID string) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, lowStockKey(teamID)).Err()
}
