// Package storage exposes uniform list, download and metadata operations
// over declared storage backends. Two kinds exist: a local directory subtree
// and an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/zulandar/liteflow/internal/metrics"
)

// Kind is a storage backend type.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
)

// Entry types.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// DownloadEndpoint streams local files and redirects for remote backends.
const DownloadEndpoint = "/api/storage/download"

var (
	ErrUnknownBackend = errors.New("storage: unknown backend")
	ErrInvalidPath    = errors.New("storage: invalid path")
	ErrNotFound       = errors.New("storage: file not found")
)

// Entry is one item of a listing. Times and size are nil when the backend
// does not know them.
type Entry struct {
	Name     string     `json:"name"`
	URI      string     `json:"uri"`
	Type     string     `json:"type"`
	Created  *time.Time `json:"created"`
	Modified *time.Time `json:"modified"`
	Size     *int64     `json:"size"`
}

// Metadata describes a single file.
type Metadata struct {
	Created  *time.Time `json:"created"`
	Modified *time.Time `json:"modified"`
	Size     *int64     `json:"size"`
}

// Backend is implemented by every storage kind.
type Backend interface {
	Name() string
	Kind() Kind
	Description() string
	URI(path string) string
	List(ctx context.Context, path string) ([]Entry, error)
	DownloadURL(ctx context.Context, path string) (string, error)
	Metadata(ctx context.Context, path string) (*Metadata, error)
}

// DownloadPath returns the internal download URL for path on backend.
func DownloadPath(backend, path string) string {
	q := url.Values{}
	q.Set("storage", backend)
	q.Set("path", path)
	return DownloadEndpoint + "?" + q.Encode()
}

func observe(kind Kind, op string, err error) {
	metrics.StorageRequestsTotal.WithLabelValues(string(kind), op, metrics.Outcome(err)).Inc()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func sizePtr(n int64) *int64 { return &n }
