package cache

import (
	"time"
)

// Store is the backing key-value store of a Cache. Implementations enforce
// per-entry expiry and the capacity bound, and must be safe for concurrent use.
type Store interface {
	// Get returns the live value for key.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key. A ttl of zero never expires.
	Set(key string, value []byte, ttl time.Duration) error
	// Delete removes key and reports whether it was present.
	Delete(key string) (bool, error)
	// Keys lists every stored key, expired or not.
	Keys() ([]string, error)
	// Len returns the number of stored entries.
	Len() (int, error)
	// PurgeExpired removes expired entries and returns how many were removed.
	PurgeExpired() (int, error)
	Close() error
}

// entry is the stored envelope around a value.
type entry struct {
	Value     []byte    `json:"value"`
	SetAt     time.Time `json:"set_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func newEntry(value []byte, ttl time.Duration, now time.Time) entry {
	e := entry{Value: value, SetAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

func (e entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
