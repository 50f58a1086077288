// Package cache provides the TTL response cache used by the feed and topic
// read paths. Absence is a normal outcome and backend failures degrade to
// misses; a cache problem must never fail the calling read or write path.
package cache

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// Store is the backing key-value store. The default store is an in-process
// expirable LRU and never errors; remote backends surface their failures
// here and the cache degrades around them.
type Store interface {
	Get(key string) (entry, bool, error)
	Add(key string, e entry) error
	Keys() ([]string, error)
	Remove(key string) error
}

type lruStore struct {
	lru *expirable.LRU[string, entry]
}

func (s *lruStore) Get(key string) (entry, bool, error) {
	e, ok := s.lru.Get(key)
	return e, ok, nil
}

func (s *lruStore) Add(key string, e entry) error {
	s.lru.Add(key, e)
	return nil
}

func (s *lruStore) Keys() ([]string, error) {
	return s.lru.Keys(), nil
}

func (s *lruStore) Remove(key string) error {
	s.lru.Remove(key)
	return nil
}

// ResponseCache is a keyed cache with per-entry TTL and prefix-based bulk
// invalidation.
type ResponseCache struct {
	store      Store
	defaultTTL time.Duration
	logger     *slog.Logger
}

// New creates a ResponseCache backed by an expirable LRU. size bounds the
// entry count; defaultTTL applies when Set is called with ttl <= 0. The
// LRU itself runs without time-based eviction because per-entry TTLs may
// exceed the default; expiry is enforced by the expiresAt check in Get.
func New(size int, defaultTTL time.Duration, logger *slog.Logger) *ResponseCache {
	return &ResponseCache{
		store:      &lruStore{lru: expirable.NewLRU[string, entry](size, nil, 0)},
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// NewWithStore creates a ResponseCache over a custom backing store.
func NewWithStore(store Store, defaultTTL time.Duration, logger *slog.Logger) *ResponseCache {
	return &ResponseCache{store: store, defaultTTL: defaultTTL, logger: logger}
}

// Get returns the cached value for key. A miss is reported via the bool,
// never as an error; backend failures are logged and reported as misses.
func (c *ResponseCache) Get(key string) (any, bool) {
	e, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		// Entry-level TTL elapsed before the LRU evicted it.
		_ = c.store.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. Overwrites silently. Backend failures are
// logged and caching is skipped.
func (c *ResponseCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := entry{value: value, expiresAt: time.Now().Add(ttl)}
	if err := c.store.Add(key, e); err != nil {
		c.logger.Warn("cache write failed, skipping", "key", key, "error", err)
	}
}

// InvalidatePrefix removes every entry whose key starts with prefix. Used
// when new content is ingested or a feed entry is created so stale reads
// are bounded by the last invalidating event, not only by TTL.
func (c *ResponseCache) InvalidatePrefix(prefix string) {
	keys, err := c.store.Keys()
	if err != nil {
		c.logger.Warn("cache invalidation failed", "prefix", prefix, "error", err)
		return
	}
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			_ = c.store.Remove(k)
		}
	}
}
