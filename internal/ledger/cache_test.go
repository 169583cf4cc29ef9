package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "team-1")
	require.False(t, ok)

	items := []StockItem{{ID: "item-1", TeamID: "team-1", Name: "Butter", Unit: "kg", ReorderPoint: 2}}
	cache.Set(ctx, "team-1", items)

	got, ok := cache.Get(ctx, "team-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, "item-1", got[0].ID)

	// Listings are per tenant.
	_, ok = cache.Get(ctx, "team-2")
	require.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "team-1", []StockItem{{ID: "item-1"}})
	cache.Invalidate(ctx, "team-1")

	_, ok := cache.Get(ctx, "team-1")
	require.False(t, ok)
}

func TestNilCacheIsNoOp(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	cache.Set(ctx, "team-1", []StockItem{{ID: "item-1"}})
	_, ok := cache.Get(ctx, "team-1")
	require.False(t, ok)
	cache.Invalidate(ctx, "team-1")
}
