// Package guildconfig implements the Config Cache (spec §4.G): a
// TTL-backed, per-guild GuildConfig cache that falls back to
// environment-derived defaults whenever the backing store is unreachable,
// and never fails the calling path.
package guildconfig

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/domain"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/rs/zerolog"
)

// TTL is how long a cached entry is served before a fresh store load is
// attempted.
const TTL = 10 * time.Minute

// Store is the backing persistence layer for guild configuration. A real
// deployment backs this with whatever datastore holds guild settings;
// tests and defaults use an in-memory Store.
type Store interface {
	Load(ctx context.Context, guild platform.GuildID) (domain.GuildConfig, error)
	Save(ctx context.Context, guild platform.GuildID, cfg domain.GuildConfig) error
}

type entry struct {
	cfg       domain.GuildConfig
	cachedAt  time.Time
}

// Cache is the process-wide GuildId -> GuildConfig cache (spec §3, §4.G).
type Cache struct {
	store    Store
	defaults domain.GuildConfig
	logger   zerolog.Logger

	mu   sync.RWMutex
	rows map[platform.GuildID]entry
}

// New returns a Cache backed by store, falling back to defaults whenever
// store is unreachable or a guild has no stored config yet.
func New(store Store, defaults domain.GuildConfig, logger zerolog.Logger) *Cache {
	return &Cache{
		store:    store,
		defaults: defaults,
		logger:   logger.With().Str("component", "guildconfig").Logger(),
		rows:     make(map[platform.GuildID]entry),
	}
}

// Get returns guild's config, loading from the store on a cache miss or
// expired TTL. On store error it logs and returns the stale cached value if
// one exists, otherwise the environment-derived defaults (spec invariant:
// "must never fail the calling path").
func (c *Cache) Get(ctx context.Context, guild platform.GuildID) domain.GuildConfig {
	c.mu.RLock()
	e, ok := c.rows[guild]
	c.mu.RUnlock()
	if ok && time.Since(e.cachedAt) < TTL {
		return e.cfg
	}

	cfg, err := c.store.Load(ctx, guild)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.mu.Lock()
			c.rows[guild] = entry{cfg: c.defaults, cachedAt: time.Now()}
			c.mu.Unlock()
			return c.defaults
		}

		c.logger.Warn().Err(err).Uint64("guild", uint64(guild)).Msg("config store unreachable, using defaults")
		if ok {
			// Serve the stale cached value over the hardcoded defaults
			// when we have one; it is more likely to reflect reality
			// than the process-wide fallback.
			return e.cfg
		}
		return c.defaults
	}

	c.mu.Lock()
	c.rows[guild] = entry{cfg: cfg, cachedAt: time.Now()}
	c.mu.Unlock()
	return cfg
}

// Invalidate drops guild's cached entry. Callers must invoke this
// synchronously before a config write path returns success (spec
// invariant: "a store write invalidates the cache entry synchronously").
func (c *Cache) Invalidate(guild platform.GuildID) {
	c.mu.Lock()
	delete(c.rows, guild)
	c.mu.Unlock()
}

// Save writes cfg through to the store and invalidates the cache entry
// before returning, regardless of the write's outcome.
func (c *Cache) Save(ctx context.Context, guild platform.GuildID, cfg domain.GuildConfig) error {
	err := c.store.Save(ctx, guild, cfg)
	c.Invalidate(guild)
	return err
}
