package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/invoice-anomaly-backend/internal/infrastructure/config"
	"github.com/davidleathers/invoice-anomaly-backend/internal/testutil/fixtures"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	cfg := &config.RedisConfig{
		URL:          mr.Addr(),
		DB:           0,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	client, err := NewClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		client, _ := setupTestRedis(t)
		assert.NotNil(t, client)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil, zaptest.NewLogger(t))
		assert.Error(t, err)
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewClient(&config.RedisConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		cfg := &config.RedisConfig{
			URL:         "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
		}
		_, err := NewClient(cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestHistoryCache(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	logger := zaptest.NewLogger(t)

	hc := NewHistoryCache(client, 5*time.Minute, logger)

	history := fixtures.VendorHistory(t, "Acme Supplies Ltd", 3, func(b *fixtures.InvoiceBuilder) {
		b.WithItem("Widget", 10, 150.00)
	})

	t.Run("miss before set", func(t *testing.T) {
		_, err := hc.GetHistory(ctx, "Acme Supplies Ltd")
		assert.ErrorIs(t, err, ErrHistoryMiss)
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, hc.SetHistory(ctx, "Acme Supplies Ltd", history))

		got, err := hc.GetHistory(ctx, "Acme Supplies Ltd")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, history[0].ID, got[0].ID)
		assert.Equal(t, history[0].VendorName, got[0].VendorName)
		assert.True(t, history[0].TotalAmount.Equal(got[0].TotalAmount))
		require.Len(t, got[0].Items, 1)
		assert.Equal(t, "Widget", got[0].Items[0].Name)
	})

	t.Run("vendor name is normalized", func(t *testing.T) {
		got, err := hc.GetHistory(ctx, "  ACME Supplies Ltd  ")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("invalidate drops the snapshot", func(t *testing.T) {
		require.NoError(t, hc.Invalidate(ctx, "acme supplies ltd"))

		_, err := hc.GetHistory(ctx, "Acme Supplies Ltd")
		assert.ErrorIs(t, err, ErrHistoryMiss)
	})

	t.Run("empty history is cached, not a miss", func(t *testing.T) {
		require.NoError(t, hc.SetHistory(ctx, "New Vendor", nil))

		got, err := hc.GetHistory(ctx, "New Vendor")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("entry expires after TTL", func(t *testing.T) {
		require.NoError(t, hc.SetHistory(ctx, "Acme Supplies Ltd", history))
		mr.FastForward(6 * time.Minute)

		_, err := hc.GetHistory(ctx, "Acme Supplies Ltd")
		assert.ErrorIs(t, err, ErrHistoryMiss)
	})

	t.Run("corrupt entry reads as miss", func(t *testing.T) {
		require.NoError(t, mr.Set(historyKey("Broken Vendor"), "{not json"))

		_, err := hc.GetHistory(ctx, "Broken Vendor")
		assert.ErrorIs(t, err, ErrHistoryMiss)
	})
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	logger := zaptest.NewLogger(t)

	rl := NewRedisRateLimiter(client, logger)

	t.Run("allows up to the limit", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			allowed, err := rl.Allow(ctx, "client-a", 5, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d should be allowed", i+1)
		}

		allowed, err := rl.Allow(ctx, "client-a", 5, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		allowed, err := rl.Allow(ctx, "client-b", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("window slides", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := rl.Allow(ctx, "client-c", 3, time.Minute)
			require.NoError(t, err)
		}
		allowed, err := rl.Allow(ctx, "client-c", 3, time.Minute)
		require.NoError(t, err)
		require.False(t, allowed)

		mr.FastForward(2 * time.Minute)

		allowed, err = rl.Allow(ctx, "client-c", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}
