package storage

import (
	"fmt"

	"github.com/zulandar/liteflow/internal/cache"
)

// Summary is the public description of a backend.
type Summary struct {
	Name        string `json:"name"`
	Type        Kind   `json:"type"`
	Description string `json:"description"`
}

// Manager holds the configured backends in declaration order.
type Manager struct {
	order    []string
	backends map[string]Backend
}

// NewManager builds a backend for each declaration. S3 listings are cached
// in c, which may be nil.
func NewManager(decls []Declaration, c *cache.Cache) (*Manager, error) {
	m := &Manager{backends: make(map[string]Backend, len(decls))}
	for _, d := range decls {
		if _, dup := m.backends[d.Name]; dup {
			return nil, fmt.Errorf("storage: backend %q declared twice", d.Name)
		}
		var (
			b   Backend
			err error
		)
		switch d.Type {
		case KindLocal:
			b, err = NewLocal(d.Name, d.Root, d.Description)
		case KindS3:
			b, err = NewS3(S3Options{
				Name:           d.Name,
				Description:    d.Description,
				Region:         d.Region,
				Endpoint:       d.Endpoint,
				BucketPatterns: d.BucketPatterns,
				Cache:          c,
			})
		default:
			err = fmt.Errorf("storage: backend %q has unsupported type %q", d.Name, d.Type)
		}
		if err != nil {
			return nil, err
		}
		m.Add(b)
	}
	return m, nil
}

// Add registers b, replacing any backend with the same name.
func (m *Manager) Add(b Backend) {
	if _, ok := m.backends[b.Name()]; !ok {
		m.order = append(m.order, b.Name())
	}
	m.backends[b.Name()] = b
}

// Get returns the named backend.
func (m *Manager) Get(name string) (Backend, error) {
	b, ok := m.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Backends returns all backends in declaration order.
func (m *Manager) Backends() []Backend {
	out := make([]Backend, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.backends[name])
	}
	return out
}

// Summaries describes all backends in declaration order.
func (m *Manager) Summaries() []Summary {
	out := make([]Summary, 0, len(m.order))
	for _, b := range m.Backends() {
		out = append(out, Summary{Name: b.Name(), Type: b.Kind(), Description: b.Description()})
	}
	return out
}
