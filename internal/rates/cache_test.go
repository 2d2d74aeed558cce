package rates

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(5 * time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "BTC", "USD", decimal.NewFromInt(60000))
	c.Set(context.Background(), "BTC", "EUR", decimal.NewFromInt(55000))

	v, ok := c.Get(context.Background(), "BTC", "EUR")
	require.True(t, ok)
	assert.True(t, v.Equal(decimal.NewFromInt(55000)))

	_, ok = c.Get(context.Background(), "BTC", "KES")
	assert.False(t, ok)

	now = now.Add(5 * time.Minute)
	_, ok = c.Get(context.Background(), "BTC", "USD")
	assert.False(t, ok)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, time.Minute, nil)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, ok := c.Get(ctx, "ETH", "USD")
	assert.False(t, ok)

	c.Set(ctx, "ETH", "USD", decimal.RequireFromString("3000.25"))
	v, ok := c.Get(ctx, "ETH", "USD")
	require.True(t, ok)
	assert.Equal(t, "3000.25", v.String())

	ttl := mr.TTL(redisPriceNamespace + ":ETH")
	assert.Equal(t, time.Minute, ttl)

	now = now.Add(time.Minute)
	_, ok = c.Get(ctx, "ETH", "USD")
	assert.False(t, ok, "entry older than ttl is a miss")
}

func TestRedisCache_ServerDownIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, time.Minute, nil)

	mr.Close()
	c.Set(context.Background(), "BTC", "USD", decimal.NewFromInt(1))
	_, ok := c.Get(context.Background(), "BTC", "USD")
	assert.False(t, ok)
}
