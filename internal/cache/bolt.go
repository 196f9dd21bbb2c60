package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/zulandar/liteflow/internal/metrics"
)

var bucketEntries = []byte("entries")

// ErrLocked is returned when another process holds the cache file open.
var ErrLocked = errors.New("cache: store is locked by another process")

// BoltStore is a file-backed Store kept under the cache directory, so cached
// upstream metadata survives restarts.
type BoltStore struct {
	db        *bolt.DB
	threshold int
	now       func() time.Time
}

// NewBoltStore opens (or creates) dir/cache.db holding at most threshold
// entries. A threshold of zero is unbounded.
func NewBoltStore(dir string, threshold int) (*BoltStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "cache.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEntries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}
	return &BoltStore{db: db, threshold: threshold, now: time.Now}, nil
}

func (s *BoltStore) Get(key string) ([]byte, bool, error) {
	var (
		e     entry
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEntries).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if !found || e.expired(s.now()) {
		return nil, false, nil
	}
	return e.Value, true, nil
}

func (s *BoltStore) Set(key string, value []byte, ttl time.Duration) error {
	now := s.now()
	data, err := json.Marshal(newEntry(value, ttl, now))
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b.Get([]byte(key)) == nil && s.threshold > 0 {
			if err := s.makeRoom(b, now); err != nil {
				return err
			}
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// makeRoom purges expired entries and then evicts the oldest until one more
// entry fits under the threshold.
func (s *BoltStore) makeRoom(b *bolt.Bucket, now time.Time) error {
	if countKeys(b) < s.threshold {
		return nil
	}
	type stamped struct {
		key   []byte
		setAt time.Time
	}
	var live []stamped
	var expired [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var e entry
		if err := json.Unmarshal(v, &e); err != nil || e.expired(now) {
			expired = append(expired, append([]byte(nil), k...))
			return nil
		}
		live = append(live, stamped{key: append([]byte(nil), k...), setAt: e.SetAt})
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range expired {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	for len(live) >= s.threshold {
		oldest := 0
		for i := range live {
			if live[i].setAt.Before(live[oldest].setAt) {
				oldest = i
			}
		}
		if err := b.Delete(live[oldest].key); err != nil {
			return err
		}
		metrics.CacheEvictionsTotal.Inc()
		live = append(live[:oldest], live[oldest+1:]...)
	}
	return nil
}

func countKeys(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func (s *BoltStore) Delete(key string) (bool, error) {
	var found bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		found = b.Get([]byte(key)) != nil
		return b.Delete([]byte(key))
	})
	if err != nil {
		return false, fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return found, nil
}

func (s *BoltStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cache: list keys: %w", err)
	}
	return keys, nil
}

func (s *BoltStore) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = countKeys(tx.Bucket(bucketEntries))
		return nil
	})
	return n, err
}

func (s *BoltStore) PurgeExpired() (int, error) {
	now := s.now()
	var n int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil || e.expired(now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	return n, nil
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
