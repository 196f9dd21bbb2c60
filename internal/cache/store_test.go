package cache

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clockStore is a Store whose clock can be set by tests.
type clockStore interface {
	Store
	setNow(func() time.Time)
}

func (s *MemoryStore) setNow(f func() time.Time) {
	s.mu.Lock()
	s.now = f
	s.mu.Unlock()
}

func (s *BoltStore) setNow(f func() time.Time) { s.now = f }

func storeFactories() map[string]func(t *testing.T, threshold int) clockStore {
	return map[string]func(t *testing.T, threshold int) clockStore{
		"memory": func(t *testing.T, threshold int) clockStore {
			return NewMemoryStore(threshold)
		},
		"bolt": func(t *testing.T, threshold int) clockStore {
			s, err := NewBoltStore(t.TempDir(), threshold)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, 10)
			require.NoError(t, s.Set("a:1", []byte("one"), time.Hour))

			v, ok, err := s.Get("a:1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "one", string(v))

			found, err := s.Delete("a:1")
			require.NoError(t, err)
			assert.True(t, found)

			found, err = s.Delete("a:1")
			require.NoError(t, err)
			assert.False(t, found)

			_, ok, err = s.Get("a:1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_Expiry(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, 10)
			now := time.Now()
			s.setNow(func() time.Time { return now })
			require.NoError(t, s.Set("a:1", []byte("x"), time.Minute))
			require.NoError(t, s.Set("a:2", []byte("y"), 0))

			s.setNow(func() time.Time { return now.Add(time.Hour) })
			_, ok, err := s.Get("a:1")
			require.NoError(t, err)
			assert.False(t, ok)

			n, err := s.PurgeExpired()
			require.NoError(t, err)
			assert.LessOrEqual(t, n, 1)

			keys, err := s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{"a:2"}, keys)
		})
	}
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, 3)
			base := time.Now()
			for i := 0; i < 3; i++ {
				at := base.Add(time.Duration(i) * time.Second)
				s.setNow(func() time.Time { return at })
				require.NoError(t, s.Set(fmt.Sprintf("k:%d", i), []byte("v"), time.Hour))
			}
			at := base.Add(10 * time.Second)
			s.setNow(func() time.Time { return at })
			require.NoError(t, s.Set("k:new", []byte("v"), time.Hour))

			keys, err := s.Keys()
			require.NoError(t, err)
			sort.Strings(keys)
			assert.Equal(t, []string{"k:1", "k:2", "k:new"}, keys)
		})
	}
}

func TestStore_PurgesExpiredBeforeEvicting(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, 2)
			base := time.Now()
			s.setNow(func() time.Time { return base })
			require.NoError(t, s.Set("k:old", []byte("v"), time.Hour))
			require.NoError(t, s.Set("k:short", []byte("v"), time.Second))

			later := base.Add(time.Minute)
			s.setNow(func() time.Time { return later })
			require.NoError(t, s.Set("k:new", []byte("v"), time.Hour))

			keys, err := s.Keys()
			require.NoError(t, err)
			sort.Strings(keys)
			assert.Equal(t, []string{"k:new", "k:old"}, keys)
		})
	}
}

func TestStore_OverwriteDoesNotEvict(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := factory(t, 2)
			require.NoError(t, s.Set("k:a", []byte("1"), time.Hour))
			require.NoError(t, s.Set("k:b", []byte("1"), time.Hour))
			require.NoError(t, s.Set("k:a", []byte("2"), time.Hour))

			n, err := s.Len()
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			v, ok, err := s.Get("k:a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "2", string(v))
		})
	}
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewBoltStore(dir, 10)
	require.NoError(t, err)
	require.NoError(t, s.Set("github:refs:a:b", []byte("persisted"), time.Hour))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(dir, 10)
	require.NoError(t, err)
	defer s.Close()

	c, err := New(s, Options{Timeout: time.Hour})
	require.NoError(t, err)
	v, ok := c.Get("github:refs:a:b")
	require.True(t, ok)
	assert.Equal(t, "persisted", string(v))

	n, err := c.ClearPrefix("github")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
