// Package cache is the process-wide key-value cache used for cache-aside
// lookups of upstream metadata. Keys are colon-delimited; the first segment is
// the prefix and the unit of bulk invalidation.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/metrics"
)

// Store kinds accepted by Open.
const (
	KindMemory     = "memory"
	KindFilesystem = "filesystem"
)

// Options configures a Cache.
type Options struct {
	// Timeout is the default expiry of every entry; zero never expires.
	Timeout time.Duration
}

// OpenOptions selects and sizes the backing store.
type OpenOptions struct {
	Kind      string
	Dir       string
	Timeout   time.Duration
	Threshold int
}

// Cache wraps a Store with a default expiry and a prefix index.
type Cache struct {
	store   Store
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	prefixes map[string]map[string]struct{}
}

// Open creates the configured store and wraps it in a Cache.
func Open(opts OpenOptions) (*Cache, error) {
	var store Store
	switch opts.Kind {
	case KindMemory:
		store = NewMemoryStore(opts.Threshold)
	case KindFilesystem, "":
		s, err := NewBoltStore(opts.Dir, opts.Threshold)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("cache: unknown store kind %q", opts.Kind)
	}
	c, err := New(store, Options{Timeout: opts.Timeout})
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// New wraps store. The prefix index is seeded from the keys already stored so
// that entries persisted by an earlier process remain clearable.
func New(store Store, opts Options) (*Cache, error) {
	c := &Cache{
		store:    store,
		timeout:  opts.Timeout,
		log:      log.WithComponent("cache"),
		prefixes: make(map[string]map[string]struct{}),
	}
	keys, err := store.Keys()
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		c.track(k)
	}
	return c, nil
}

// Prefix returns the invalidation prefix of key.
func Prefix(key string) string {
	return strings.SplitN(key, ":", 2)[0]
}

// Key joins parts with ':' into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func (c *Cache) track(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackLocked(key)
}

func (c *Cache) trackLocked(key string) {
	p := Prefix(key)
	set, ok := c.prefixes[p]
	if !ok {
		set = make(map[string]struct{})
		c.prefixes[p] = set
	}
	set[key] = struct{}{}
}

// prune rebuilds the prefix index from the store once the index has grown
// past the stored entry count, so keys the store evicted or expired stop
// being tracked.
func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.store.Len()
	if err != nil {
		return
	}
	tracked := 0
	for _, set := range c.prefixes {
		tracked += len(set)
	}
	if tracked <= n {
		return
	}
	keys, err := c.store.Keys()
	if err != nil {
		c.log.Warn().Err(err).Msg("cache index prune failed")
		return
	}
	c.prefixes = make(map[string]map[string]struct{})
	for _, k := range keys {
		c.trackLocked(k)
	}
}

// Get returns the stored value for key. Store errors are logged and reported
// as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	v, ok, err := c.store.Get(key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		ok = false
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	metrics.CacheRequestsTotal.WithLabelValues(Prefix(key), result).Inc()
	return v, ok
}

// Set stores value under key with the default expiry.
func (c *Cache) Set(key string, value []byte) error {
	if err := c.store.Set(key, value, c.timeout); err != nil {
		return err
	}
	c.track(key)
	c.prune()
	return nil
}

// GetOrSet returns the cached value for key, or invokes produce once, stores
// its result and returns it. Producer errors are returned and nothing is
// stored. Concurrent misses may each run produce; the last write wins.
func (c *Cache) GetOrSet(key string, produce func() ([]byte, error)) ([]byte, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := produce()
	if err != nil {
		return nil, err
	}
	if err := c.Set(key, v); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}

// Fetch is the typed cache-aside helper. Values are stored as JSON; a stored
// value that no longer decodes into T is treated as a miss. A nil Cache
// always calls produce.
func Fetch[T any](c *Cache, key string, produce func() (T, error)) (T, error) {
	if c == nil {
		return produce()
	}
	if data, ok := c.Get(key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		c.log.Debug().Str("key", key).Msg("discarding undecodable cache entry")
	}
	v, err := produce()
	if err != nil {
		return v, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return v, nil
	}
	if err := c.Set(key, data); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}

// Delete removes a single key.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	if set, ok := c.prefixes[Prefix(key)]; ok {
		delete(set, key)
	}
	c.mu.Unlock()
	_, err := c.store.Delete(key)
	return err
}

// ClearPrefix deletes every tracked key under prefix and returns how many
// stored entries were removed.
func (c *Cache) ClearPrefix(prefix string) (int, error) {
	c.mu.Lock()
	set := c.prefixes[prefix]
	delete(c.prefixes, prefix)
	c.mu.Unlock()

	removed := 0
	for key := range set {
		ok, err := c.store.Delete(key)
		if err != nil {
			return removed, fmt.Errorf("cache: clear %s: %w", prefix, err)
		}
		if ok {
			removed++
		}
	}
	metrics.CacheClearsTotal.WithLabelValues(prefix).Add(float64(removed))
	c.log.Info().Str("prefix", prefix).Int("removed", removed).Msg("cache prefix cleared")
	return removed, nil
}

// Clear removes every tracked prefix.
func (c *Cache) Clear() (int, error) {
	total := 0
	for _, p := range c.Prefixes() {
		n, err := c.ClearPrefix(p)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Prefixes returns the tracked prefixes in sorted order.
func (c *Cache) Prefixes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.prefixes))
	for p := range c.prefixes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// PurgeExpired drops expired entries from the store.
func (c *Cache) PurgeExpired() (int, error) {
	n, err := c.store.PurgeExpired()
	if err != nil {
		return n, err
	}
	c.prune()
	if n > 0 {
		c.log.Debug().Int("removed", n).Msg("expired cache entries purged")
	}
	return n, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	return c.store.Len()
}

// Close closes the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}
