package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/liteflow/internal/cache"
)

// fakeObjects is an in-memory objectAPI.
type fakeObjects struct {
	mu         sync.Mutex
	buckets    []minio.BucketInfo
	objects    map[string][]minio.ObjectInfo
	presignErr error
	listCalls  int
}

func (f *fakeObjects) ListBuckets(context.Context) ([]minio.BucketInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.buckets, nil
}

// ListObjects mimics a delimited listing: keys directly under the prefix
// and one common prefix per sub-directory.
func (f *fakeObjects) ListObjects(_ context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.mu.Lock()
	f.listCalls++
	objs := f.objects[bucket]
	f.mu.Unlock()

	ch := make(chan minio.ObjectInfo, len(objs)+1)
	seen := map[string]bool{}
	for _, o := range objs {
		if !strings.HasPrefix(o.Key, opts.Prefix) {
			continue
		}
		rest := strings.TrimPrefix(o.Key, opts.Prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			p := opts.Prefix + rest[:i+1]
			if !seen[p] {
				seen[p] = true
				ch <- minio.ObjectInfo{Key: p}
			}
			continue
		}
		ch <- o
	}
	close(ch)
	return ch
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, object string, expires time.Duration, _ url.Values) (*url.URL, error) {
	if f.presignErr != nil {
		return nil, f.presignErr
	}
	return url.Parse("https://" + bucket + ".s3.example.com/" + object + "?X-Amz-Expires=" + expires.String())
}

func (f *fakeObjects) StatObject(_ context.Context, bucket, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	for _, o := range f.objects[bucket] {
		if o.Key == object {
			return o, nil
		}
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{StatusCode: 404, Code: "NoSuchKey"}
}

var created = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newFake() *fakeObjects {
	return &fakeObjects{
		buckets: []minio.BucketInfo{
			{Name: "lab-raw", CreationDate: created},
			{Name: "lab-results", CreationDate: created},
			{Name: "private", CreationDate: created},
		},
		objects: map[string][]minio.ObjectInfo{
			"lab-raw": {
				{Key: "runs/", Size: 0},
				{Key: "runs/a.fastq.gz", Size: 10, LastModified: created},
				{Key: "runs/b/c.fastq.gz", Size: 20, LastModified: created},
				{Key: "top.txt", Size: 3, LastModified: created},
			},
		},
	}
}

func newTestS3(t *testing.T, api objectAPI, c *cache.Cache, patterns ...string) *S3 {
	t.Helper()
	s, err := newS3(S3Options{Name: "aws_data", BucketPatterns: patterns, Cache: c}, api)
	require.NoError(t, err)
	return s
}

func names(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestS3_ListAllBuckets(t *testing.T) {
	s := newTestS3(t, newFake(), nil, ".*")
	entries, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"lab-raw", "lab-results", "private"}, names(entries))
	assert.Equal(t, TypeDirectory, entries[0].Type)
	assert.Equal(t, "s3://lab-raw", entries[0].URI)
	require.NotNil(t, entries[0].Created)
	assert.True(t, entries[0].Created.Equal(created))
}

func TestS3_BucketPatternsMatchAtStart(t *testing.T) {
	s := newTestS3(t, newFake(), nil, "lab-")
	entries, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"lab-raw", "lab-results"}, names(entries))

	s = newTestS3(t, newFake(), nil, "raw")
	entries, err = s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestS3_ListObjects(t *testing.T) {
	s := newTestS3(t, newFake(), nil, ".*")
	ctx := context.Background()

	entries, err := s.List(ctx, "lab-raw")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs", "top.txt"}, names(entries))
	assert.Equal(t, TypeDirectory, entries[0].Type)
	assert.Equal(t, "s3://lab-raw/runs/", entries[0].URI)
	assert.Equal(t, TypeFile, entries[1].Type)
	require.NotNil(t, entries[1].Size)
	assert.EqualValues(t, 3, *entries[1].Size)

	entries, err = s.List(ctx, "lab-raw/runs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.fastq.gz", "b"}, names(entries))
}

func TestS3_ListRejectsHiddenBucket(t *testing.T) {
	s := newTestS3(t, newFake(), nil, "lab-")
	_, err := s.List(context.Background(), "private")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestS3_ListingIsCached(t *testing.T) {
	c, err := cache.New(cache.NewMemoryStore(100), cache.Options{Timeout: time.Hour})
	require.NoError(t, err)
	fake := newFake()
	s := newTestS3(t, fake, c, ".*")
	ctx := context.Background()

	_, err = s.List(ctx, "lab-raw")
	require.NoError(t, err)
	_, err = s.List(ctx, "lab-raw")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.listCalls)

	n, err := c.ClearPrefix(CachePrefix)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.List(ctx, "lab-raw")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.listCalls)
}

func TestS3_DownloadURL(t *testing.T) {
	fake := newFake()
	s := newTestS3(t, fake, nil, ".*")
	ctx := context.Background()

	u, err := s.DownloadURL(ctx, "lab-raw/top.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://lab-raw.s3.example.com/top.txt?X-Amz-Expires=1h0m0s", u)

	fake.presignErr = errors.New("no credentials")
	u, err = s.DownloadURL(ctx, "lab-raw/top.txt")
	require.NoError(t, err)
	assert.Equal(t, DownloadPath("aws_data", "lab-raw/top.txt"), u)

	_, err = s.DownloadURL(ctx, "lab-raw")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestS3_Metadata(t *testing.T) {
	s := newTestS3(t, newFake(), nil, ".*")
	ctx := context.Background()

	md, err := s.Metadata(ctx, "lab-raw/runs/a.fastq.gz")
	require.NoError(t, err)
	require.NotNil(t, md.Size)
	assert.EqualValues(t, 10, *md.Size)
	assert.Nil(t, md.Created)

	_, err = s.Metadata(ctx, "lab-raw/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3_MetadataRejectsHiddenBucket(t *testing.T) {
	fake := newFake()
	fake.objects["private"] = []minio.ObjectInfo{{Key: "secret.txt", Size: 4, LastModified: created}}
	s := newTestS3(t, fake, nil, "lab-")

	_, err := s.Metadata(context.Background(), "private/secret.txt")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = s.Metadata(context.Background(), "lab-raw/top.txt")
	assert.NoError(t, err)
}

func TestS3_InvalidPattern(t *testing.T) {
	_, err := newS3(S3Options{Name: "bad", BucketPatterns: []string{"("}}, newFake())
	assert.Error(t, err)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		host   string
		secure bool
		ok     bool
	}{
		{"", "s3.amazonaws.com", true, true},
		{"minio.local:9000", "minio.local:9000", true, true},
		{"http://minio.local:9000", "minio.local:9000", false, true},
		{"https://s3.eu-west-3.amazonaws.com", "s3.eu-west-3.amazonaws.com", true, true},
		{"ftp://x", "", false, false},
	}
	for _, tt := range tests {
		host, secure, err := parseEndpoint(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.host, host, tt.in)
		assert.Equal(t, tt.secure, secure, tt.in)
	}
}
