// Package cache is an in-memory cache whose entries carry tags, so whole groups
// of derived data can be dropped when their source changes.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"
	"github.com/BogdanTretyakov/sc-statistic-backend/internal/constants"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type entry struct {
	value    any
	tags     []string
	lastUsed time.Time
}

type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Keys      int   `json:"keys"`
}

// Cache expires entries that were not read for ttl. Reads extend the lifetime.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	byTag   map[string]map[string]struct{}
	ttl     time.Duration
	clock   clockwork.Clock
	logger  zerolog.Logger
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(ttl time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		byTag:   make(map[string]map[string]struct{}),
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go c.cleanupLoop(constants.CacheCleanupInterval)

	return c
}

func NewFromConfig(cfg *config.Config, clock clockwork.Clock, logger zerolog.Logger) *Cache {
	return New(cfg.CacheTTL, clock, logger)
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	now := c.clock.Now()
	if now.Sub(e.lastUsed) > c.ttl {
		c.deleteLocked(key)
		c.stats.Misses++
		c.stats.Evictions++
		return nil, false
	}

	e.lastUsed = now
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, replacing its previous tags.
func (c *Cache) Set(key string, value any, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteLocked(key)

	c.entries[key] = &entry{
		value:    value,
		tags:     tags,
		lastUsed: c.clock.Now(),
	}
	for _, tag := range tags {
		keys, ok := c.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteLocked(key)
}

// Invalidate drops every entry carrying any of tags.
func (c *Cache) Invalidate(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for _, tag := range tags {
		for key := range c.byTag[tag] {
			c.deleteLocked(key)
			dropped++
		}
		delete(c.byTag, tag)
	}

	if dropped > 0 {
		c.logger.Debug().Strs("tags", tags).Int("entries", dropped).Msg("cache invalidated")
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Keys = len(c.entries)
	return s
}

func (c *Cache) deleteLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, tag := range e.tags {
		keys := c.byTag[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byTag, tag)
		}
	}
}

func (c *Cache) cleanupLoop(every time.Duration) {
	defer close(c.done)

	ticker := c.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.Chan():
			c.cleanup()
		}
	}
}

func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, e := range c.entries {
		if now.Sub(e.lastUsed) > c.ttl {
			c.deleteLocked(key)
			c.stats.Evictions++
			c.logger.Debug().Str("key", key).Msg("removed expired cache key")
		}
	}
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Wrap returns the cached value of key or computes, stores and returns it.
// Errors are not cached.
func Wrap[T any](ctx context.Context, c *Cache, key string, tags []string, fn func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	value, err := fn(ctx)
	if err != nil {
		return value, err
	}

	c.Set(key, value, tags...)
	return value, nil
}
