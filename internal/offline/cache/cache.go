// Package cache is the local mirror of server records.
//
// Every method is best-effort: a persistence failure is logged and the
// caller gets an empty read or a skipped write, never an error. A failed
// write costs a slightly stale read later, not a failed user action.
//
// Full writes (ReplaceItems, ReplaceGenerations, ReplaceDaySummaries) are
// followed by an eviction pass over records older than the retention
// window. Local items and items referenced by a queued operation are never
// evicted.
package cache

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/daycast/syncengine/internal/offline/db"
	"github.com/daycast/syncengine/internal/offline/schema"
)

// Config holds cache configuration.
type Config struct {
	// RetentionDays is the eviction window in days (default: 20)
	RetentionDays int

	// Logger for persistence failures
	Logger *log.Logger

	// Now overrides the clock (optional, for tests)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 20,
		Logger:        log.Default().WithPrefix("cache"),
		Now:           time.Now,
	}
}

// Cache wraps the store with best-effort record access.
type Cache struct {
	store  *db.DB
	config *Config
	logger *log.Logger
}

// New creates a cache over store with default configuration.
func New(store *db.DB) *Cache {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates a cache with custom configuration.
func NewWithConfig(store *db.DB, config *Config) *Cache {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = defaults.RetentionDays
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	return &Cache{store: store, config: config, logger: config.Logger}
}

// Store returns the underlying store.
func (c *Cache) Store() *db.DB {
	return c.store
}

// update runs fn as a serialized write and logs a failure.
func (c *Cache) update(ctx context.Context, what string, fn func(tx *db.Tx) error) bool {
	if err := c.store.Update(ctx, fn); err != nil {
		c.logger.Warn("cache write failed", "op", what, "err", err)
		return false
	}
	return true
}

func (c *Cache) readFailed(what string, err error) {
	c.logger.Warn("cache read failed", "op", what, "err", err)
}

// EvictOlderThan removes items, generations and day summaries dated before
// now minus days.
func (c *Cache) EvictOlderThan(ctx context.Context, days int) db.EvictStats {
	cutoff := schema.DateCutoff(c.config.Now(), days)

	var stats db.EvictStats
	c.update(ctx, "evict", func(tx *db.Tx) error {
		var err error
		stats, err = tx.EvictBefore(ctx, cutoff)
		return err
	})
	if stats.Total() > 0 {
		c.logger.Debug("evicted old records", "cutoff", cutoff,
			"items", stats.Items, "generations", stats.Generations, "summaries", stats.Summaries)
	}
	return stats
}

// evict applies the configured retention window after a full write.
func (c *Cache) evict(ctx context.Context) {
	c.EvictOlderThan(ctx, c.config.RetentionDays)
}
