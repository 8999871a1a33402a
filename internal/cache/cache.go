// Package cache provides the region-keyed resource-availability cache.
//
// Read-through with single-flight population: concurrent misses for the same
// region share one upstream fetch. An entry is valid until the earlier of its
// sliding deadline (reset on each access) and its absolute deadline (fixed at
// creation). Upstream failures propagate to callers and are never cached.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/pkg/clock"
	"firewatch.io/firewatch/internal/pkg/logger"
)

// Fetcher is the upstream region-availability lookup (external collaborator).
type Fetcher interface {
	Fetch(ctx context.Context, region string) (domain.ResourceAvailability, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, region string) (domain.ResourceAvailability, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, region string) (domain.ResourceAvailability, error) {
	return f(ctx, region)
}

// Config holds the cache validity windows.
type Config struct {
	// Sliding is the maximum idle time since the last access.
	Sliding time.Duration

	// Absolute is the maximum lifetime since entry creation.
	Absolute time.Duration
}

type entry struct {
	value      domain.ResourceAvailability
	createdAt  time.Time
	lastAccess time.Time
}

// Cache is the read-through resource-availability cache.
type Cache struct {
	fetcher Fetcher
	clk     clock.Clock
	cfg     Config

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
}

// New creates a Cache fronting the given upstream fetcher.
func New(fetcher Fetcher, clk clock.Clock, cfg Config) *Cache {
	return &Cache{
		fetcher: fetcher,
		clk:     clk,
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Get returns the availability snapshot for a region, populating the cache on
// miss. Concurrent callers during a miss wait on the same in-flight fetch.
func (c *Cache) Get(ctx context.Context, region string) (domain.ResourceAvailability, error) {
	if value, ok := c.lookup(region); ok {
		return value, nil
	}

	result, err, shared := c.group.Do(region, func() (interface{}, error) {
		// Another flight may have populated the entry while this caller
		// was waiting on the singleflight lock.
		if value, ok := c.lookup(region); ok {
			return value, nil
		}

		value, err := c.fetcher.Fetch(ctx, region)
		if err != nil {
			// No negative caching: the entry stays absent.
			return domain.ResourceAvailability{}, fmt.Errorf("fetch availability for region %q: %w", region, err)
		}

		now := c.clk.Now()
		c.mu.Lock()
		c.entries[region] = &entry{value: value, createdAt: now, lastAccess: now}
		c.mu.Unlock()

		logger.Debug("availability cache populated",
			zap.String("region", region),
		)
		return value, nil
	})
	if err != nil {
		return domain.ResourceAvailability{}, err
	}
	if shared {
		logger.Debug("availability fetch coalesced", zap.String("region", region))
	}
	return result.(domain.ResourceAvailability), nil
}

// Invalidate drops the entry for a region. Administrative operation.
func (c *Cache) Invalidate(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, region)
}

// lookup returns a valid entry and refreshes its sliding deadline. Expired
// entries are removed.
func (c *Cache) lookup(region string) (domain.ResourceAvailability, bool) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[region]
	if !ok {
		return domain.ResourceAvailability{}, false
	}
	if now.Sub(e.lastAccess) >= c.cfg.Sliding || now.Sub(e.createdAt) >= c.cfg.Absolute {
		delete(c.entries, region)
		return domain.ResourceAvailability{}, false
	}
	e.lastAccess = now
	return e.value, true
}
