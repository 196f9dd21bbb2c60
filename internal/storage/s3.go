package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/zulandar/liteflow/internal/cache"
)

// CachePrefix is the cache key prefix for S3 listings.
const CachePrefix = "s3"

// PresignExpiry is how long presigned download URLs stay valid.
const PresignExpiry = time.Hour

const defaultEndpoint = "s3.amazonaws.com"

// objectAPI is the subset of *minio.Client the S3 backend uses.
type objectAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucket, object string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// S3Options configures an S3 backend.
type S3Options struct {
	Name           string
	Description    string
	Region         string
	Endpoint       string
	BucketPatterns []string
	Cache          *cache.Cache
}

// S3 serves buckets from an S3-compatible object store.
type S3 struct {
	name        string
	description string
	patterns    []*regexp.Regexp
	api         objectAPI
	cache       *cache.Cache
}

// NewS3 creates an S3 backend. Credentials come from the AWS environment
// variables, the shared credentials file or the instance role, in that order.
func NewS3(opts S3Options) (*S3, error) {
	endpoint, secure, err := parseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", opts.Name, err)
	}
	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
		&credentials.IAM{Client: &http.Client{Timeout: 10 * time.Second}},
	})
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %s: create client: %w", opts.Name, err)
	}
	return newS3(opts, client)
}

func newS3(opts S3Options, api objectAPI) (*S3, error) {
	s := &S3{name: opts.Name, description: opts.Description, api: api, cache: opts.Cache}
	for _, p := range opts.BucketPatterns {
		// Patterns only need to match at the start of the bucket name.
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("storage: %s: bucket pattern %q: %w", opts.Name, p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func parseEndpoint(raw string) (host string, secure bool, err error) {
	if raw == "" {
		return defaultEndpoint, true, nil
	}
	if !strings.Contains(raw, "://") {
		return raw, true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func (s *S3) Name() string        { return s.name }
func (s *S3) Kind() Kind          { return KindS3 }
func (s *S3) Description() string { return s.description }

// URI returns an s3:// URI for "bucket/key".
func (s *S3) URI(p string) string { return "s3://" + p }

func splitPath(p string) (bucket, key string) {
	bucket, key, _ = strings.Cut(strings.TrimLeft(p, "/"), "/")
	return bucket, key
}

func (s *S3) allowed(bucket string) bool {
	for _, re := range s.patterns {
		if re.MatchString(bucket) {
			return true
		}
	}
	return false
}

// List returns the allowed buckets for an empty path. Otherwise path is
// "bucket[/prefix]" and the listing holds the prefixes (as directories) and
// objects one level below it. Listings are cached.
func (s *S3) List(ctx context.Context, p string) ([]Entry, error) {
	p = strings.TrimLeft(p, "/")
	key := cache.Key(CachePrefix, "list", s.name, p)
	return cache.Fetch(s.cache, key, func() (entries []Entry, err error) {
		defer func() { observe(KindS3, "list", err) }()
		if p == "" {
			return s.listBuckets(ctx)
		}
		return s.listObjects(ctx, p)
	})
}

func (s *S3) listBuckets(ctx context.Context) ([]Entry, error) {
	buckets, err := s.api.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: list buckets: %w", s.name, err)
	}
	entries := []Entry{}
	for _, b := range buckets {
		if !s.allowed(b.Name) {
			continue
		}
		entries = append(entries, Entry{
			Name:     b.Name,
			URI:      s.URI(b.Name),
			Type:     TypeDirectory,
			Created:  timePtr(b.CreationDate),
			Modified: timePtr(b.CreationDate),
		})
	}
	return entries, nil
}

func (s *S3) listObjects(ctx context.Context, p string) ([]Entry, error) {
	bucket, prefix := splitPath(p)
	if !s.allowed(bucket) {
		return nil, fmt.Errorf("%w: bucket %q is not exposed by %s", ErrInvalidPath, bucket, s.name)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	entries := []Entry{}
	for obj := range s.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("storage: %s: list %s: %w", s.name, p, obj.Err)
		}
		if obj.Key == prefix {
			continue // folder marker
		}
		if strings.HasSuffix(obj.Key, "/") {
			name := strings.TrimSuffix(obj.Key, "/")
			entries = append(entries, Entry{
				Name: name[strings.LastIndex(name, "/")+1:],
				URI:  s.URI(bucket + "/" + obj.Key),
				Type: TypeDirectory,
			})
			continue
		}
		entries = append(entries, Entry{
			Name:     obj.Key[strings.LastIndex(obj.Key, "/")+1:],
			URI:      s.URI(bucket + "/" + obj.Key),
			Type:     TypeFile,
			Modified: timePtr(obj.LastModified),
			Size:     sizePtr(obj.Size),
		})
	}
	return entries, nil
}

// DownloadURL presigns a GET for "bucket/key". When presigning fails the
// internal download URL is returned instead.
func (s *S3) DownloadURL(ctx context.Context, p string) (string, error) {
	bucket, key := splitPath(p)
	if bucket == "" || key == "" {
		return "", fmt.Errorf("%w: %q does not name an object", ErrInvalidPath, p)
	}
	if !s.allowed(bucket) {
		return "", fmt.Errorf("%w: bucket %q is not exposed by %s", ErrInvalidPath, bucket, s.name)
	}
	u, err := s.api.PresignedGetObject(ctx, bucket, key, PresignExpiry, nil)
	observe(KindS3, "presign", err)
	if err != nil {
		return DownloadPath(s.name, strings.TrimLeft(p, "/")), nil
	}
	return u.String(), nil
}

// Metadata stats "bucket/key".
func (s *S3) Metadata(ctx context.Context, p string) (*Metadata, error) {
	bucket, key := splitPath(p)
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: %q does not name an object", ErrInvalidPath, p)
	}
	if !s.allowed(bucket) {
		return nil, fmt.Errorf("%w: bucket %q is not exposed by %s", ErrInvalidPath, bucket, s.name)
	}
	info, err := s.api.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	observe(KindS3, "metadata", err)
	if err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("storage: %s: stat %s: %w", s.name, p, err)
	}
	return &Metadata{Modified: timePtr(info.LastModified), Size: sizePtr(info.Size)}, nil
}
