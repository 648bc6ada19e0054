package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/invoice-anomaly-backend/internal/domain/invoice"
)

// ErrHistoryMiss is returned when no cached snapshot exists for a vendor.
var ErrHistoryMiss = errors.New("vendor history not cached")

// HistoryCache stores vendor history snapshots so repeated analyses of the
// same vendor skip the database. Entries are invalidated whenever an invoice
// for the vendor is written or deleted; the TTL bounds staleness either way.
type HistoryCache interface {
	GetHistory(ctx context.Context, vendorName string) ([]*invoice.Invoice, error)
	SetHistory(ctx context.Context, vendorName string, history []*invoice.Invoice) error
	Invalidate(ctx context.Context, vendorName string) error
}

type historyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewHistoryCache creates a Redis-backed vendor history cache
func NewHistoryCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) HistoryCache {
	return &historyCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func historyKey(vendorName string) string {
	return HistoryPrefix + invoice.NormalizeVendorName(vendorName)
}

// GetHistory returns the cached snapshot for a vendor, or ErrHistoryMiss
func (c *historyCache) GetHistory(ctx context.Context, vendorName string) ([]*invoice.Invoice, error) {
	data, err := c.client.Get(ctx, historyKey(vendorName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrHistoryMiss
		}
		c.logger.Error("history cache get failed",
			zap.String("vendor", vendorName),
			zap.Error(err))
		return nil, fmt.Errorf("history cache get failed: %w", err)
	}

	var history []*invoice.Invoice
	if err := json.Unmarshal(data, &history); err != nil {
		// A corrupt entry is treated as a miss so the caller falls back
		// to the database and the next Set overwrites it.
		c.logger.Warn("history cache entry corrupt, dropping",
			zap.String("vendor", vendorName),
			zap.Error(err))
		_ = c.client.Del(ctx, historyKey(vendorName)).Err()
		return nil, ErrHistoryMiss
	}

	return history, nil
}

// SetHistory stores the vendor's history snapshot with the configured TTL
func (c *historyCache) SetHistory(ctx context.Context, vendorName string, history []*invoice.Invoice) error {
	if history == nil {
		history = []*invoice.Invoice{}
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history snapshot: %w", err)
	}

	if err := c.client.Set(ctx, historyKey(vendorName), data, c.ttl).Err(); err != nil {
		c.logger.Error("history cache set failed",
			zap.String("vendor", vendorName),
			zap.Int("invoices", len(history)),
			zap.Error(err))
		return fmt.Errorf("history cache set failed: %w", err)
	}

	return nil
}

// Invalidate drops the cached snapshot for a vendor
func (c *historyCache) Invalidate(ctx context.Context, vendorName string) error {
	if err := c.client.Del(ctx, historyKey(vendorName)).Err(); err != nil {
		c.logger.Error("history cache invalidate failed",
			zap.String("vendor", vendorName),
			zap.Error(err))
		return fmt.Errorf("history cache invalidate failed: %w", err)
	}
	return nil
}
