// Package cache is the adaptive read-through product cache. Entries live for a
// short base TTL; barcodes read often enough are promoted to a longer one.
package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/xelth-com/colocacion/internal/clock"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/kv"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/metrics"
	"github.com/xelth-com/colocacion/internal/models"
)

const (
	statHits   = "hits"
	statMisses = "misses"
)

// Entry is the cached product snapshot
type Entry struct {
	Product  models.Product `json:"product"`
	CachedAt time.Time      `json:"cachedAt"`
	Frequent bool           `json:"frequent"`
}

// Stats are the global hit/miss counters
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Total   int64   `json:"total"`
	HitRate float64 `json:"hitRate"`
}

type Cache struct {
	kv      *kv.Store
	cfg     config.CacheConfig
	clock   clock.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func New(store *kv.Store, cfg config.CacheConfig, clk clock.Clock, m *metrics.Metrics) *Cache {
	return &Cache{
		kv:      store,
		cfg:     cfg,
		clock:   clk,
		metrics: m,
		log:     logger.Component("cache"),
	}
}

// Get looks up a barcode. Any store failure is reported as a miss.
func (c *Cache) Get(ctx context.Context, barcode string) (*models.Product, bool) {
	entry, err := kv.Get[Entry](ctx, c.kv, kv.CacheProductKey(barcode))
	if err != nil {
		c.miss(ctx, barcode, err)
		return nil, false
	}

	c.hit(ctx, barcode)
	p := entry.Product
	return &p, true
}

func (c *Cache) hit(ctx context.Context, barcode string) {
	c.metrics.CacheResult("hit")
	if err := c.kv.HIncr(ctx, kv.CacheStatsKey, statHits, 1); err != nil {
		c.log.Warn().Err(err).Msg("failed to count cache hit")
	}

	freq, err := c.kv.Incr(ctx, kv.CacheFrequentKey(barcode), c.cfg.FrequencyWindow)
	if err != nil {
		c.log.Warn().Err(err).Str("barcode", barcode).Msg("failed to bump frequency counter")
		return
	}
	if freq < c.cfg.FrequencyThreshold {
		return
	}

	if _, err := c.kv.Expire(ctx, kv.CacheProductKey(barcode), c.cfg.FrequentTTL); err != nil {
		c.log.Warn().Err(err).Str("barcode", barcode).Msg("failed to promote cache entry")
		return
	}
	if freq == c.cfg.FrequencyThreshold {
		c.metrics.CachePromoted()
		c.log.Debug().Str("barcode", barcode).Int64("frequency", freq).Msg("cache entry promoted")
	}
}

func (c *Cache) miss(ctx context.Context, barcode string, cause error) {
	c.metrics.CacheResult("miss")
	if err := c.kv.HIncr(ctx, kv.CacheStatsKey, statMisses, 1); err != nil {
		c.log.Warn().Err(err).Msg("failed to count cache miss")
	}
	c.log.Debug().Err(cause).Str("barcode", barcode).Msg("cache miss")
}

// Put caches a product. Frequent barcodes (by hint or by counter) get the long TTL.
func (c *Cache) Put(ctx context.Context, p models.Product, frequentHint bool) {
	frequent := frequentHint
	if !frequent {
		n, err := c.kv.Counter(ctx, kv.CacheFrequentKey(p.Barcode))
		if err == nil && n >= c.cfg.FrequencyThreshold {
			frequent = true
		}
	}

	ttl := c.cfg.BaseTTL
	if frequent {
		ttl = c.cfg.FrequentTTL
	}

	entry := Entry{Product: p, CachedAt: c.clock.Now(), Frequent: frequent}
	if err := c.kv.Put(ctx, kv.CacheProductKey(p.Barcode), entry, ttl); err != nil {
		c.metrics.CacheResult("error")
		c.log.Warn().Err(err).Str("barcode", p.Barcode).Msg("failed to cache product")
	}
}

// Invalidate drops the entry for barcode; the frequency counter survives
func (c *Cache) Invalidate(ctx context.Context, barcode string) {
	if _, err := c.kv.Delete(ctx, kv.CacheProductKey(barcode)); err != nil {
		c.log.Warn().Err(err).Str("barcode", barcode).Msg("failed to invalidate cache entry")
	}
}

// Clear removes every entry, frequency counter and the hit/miss statistics
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	var removed int64
	for _, pattern := range []string{kv.CacheProductGlob, kv.CacheFrequentGlob} {
		keys, err := c.kv.Scan(ctx, pattern)
		if err != nil {
			return removed, err
		}
		n, err := c.kv.Delete(ctx, keys...)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if _, err := c.kv.Delete(ctx, kv.CacheStatsKey); err != nil {
		return removed, err
	}

	c.log.Info().Int64("removed", removed).Msg("🧹 product cache cleared")
	return removed, nil
}

// Stats reads the global counters
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	counters, err := c.kv.HCounters(ctx, kv.CacheStatsKey)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Hits: counters[statHits], Misses: counters[statMisses]}
	s.Total = s.Hits + s.Misses
	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s, nil
}
