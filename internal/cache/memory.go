package cache

import (
	"sync"
	"time"

	"github.com/zulandar/liteflow/internal/metrics"
)

// MemoryStore is a mutex-guarded in-process Store.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]entry
	threshold int
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore holding at most threshold entries.
// A threshold of zero is unbounded.
func NewMemoryStore(threshold int) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]entry),
		threshold: threshold,
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (s *MemoryStore) Set(key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if _, exists := s.entries[key]; !exists && s.threshold > 0 && len(s.entries) >= s.threshold {
		s.purgeLocked(now)
		for len(s.entries) >= s.threshold {
			s.evictOldestLocked()
		}
	}
	s.entries[key] = newEntry(value, ttl, now)
	return nil
}

func (s *MemoryStore) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemoryStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *MemoryStore) PurgeExpired() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.now()), nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) purgeLocked(now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

func (s *MemoryStore) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range s.entries {
		if !found || e.SetAt.Before(oldest) {
			oldestKey, oldest, found = k, e.SetAt, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
		metrics.CacheEvictionsTotal.Inc()
	}
}
