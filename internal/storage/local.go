package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// Local serves a directory subtree.
type Local struct {
	name        string
	description string
	root        string
}

// NewLocal creates a Local backend rooted at root, creating the directory
// if needed.
func NewLocal(name, root, description string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: resolve root: %w", name, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: %s: create root: %w", name, err)
	}
	return &Local{name: name, description: description, root: abs}, nil
}

func (l *Local) Name() string        { return l.name }
func (l *Local) Kind() Kind          { return KindLocal }
func (l *Local) Description() string { return l.description }

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

// resolve maps a slash-separated relative path onto the filesystem and
// rejects anything that escapes the root.
func (l *Local) resolve(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	full := filepath.Join(l.root, filepath.FromSlash(p))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the backend root", ErrInvalidPath, p)
	}
	return full, nil
}

// URI returns a file:// URI for path.
func (l *Local) URI(p string) string {
	full, err := l.resolve(p)
	if err != nil {
		full = filepath.Join(l.root, filepath.FromSlash(p))
	}
	return "file://" + filepath.ToSlash(full)
}

// List returns the entries directly below path. An empty path lists the
// root. Entries are sorted by name.
func (l *Local) List(_ context.Context, p string) (entries []Entry, err error) {
	defer func() { observe(KindLocal, "list", err) }()

	dir, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		if errors.Is(err, syscall.ENOTDIR) || isFile(dir) {
			return nil, fmt.Errorf("%w: %q is not a directory", ErrInvalidPath, p)
		}
		return nil, fmt.Errorf("storage: %s: list %q: %w", l.name, p, err)
	}
	prefix := strings.Trim(p, "/")
	entries = make([]Entry, 0, len(items))
	for _, item := range items {
		info, err := item.Info()
		if err != nil {
			continue // removed while listing
		}
		rel := item.Name()
		if prefix != "" {
			rel = prefix + "/" + item.Name()
		}
		mod := info.ModTime()
		e := Entry{
			Name:     item.Name(),
			URI:      l.URI(rel),
			Type:     TypeFile,
			Created:  &mod,
			Modified: &mod,
		}
		if item.IsDir() {
			e.Type = TypeDirectory
		} else {
			e.Size = sizePtr(info.Size())
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DownloadURL returns the internal streaming endpoint for path.
func (l *Local) DownloadURL(_ context.Context, p string) (string, error) {
	if _, err := l.resolve(p); err != nil {
		return "", err
	}
	return DownloadPath(l.name, strings.TrimLeft(p, "/")), nil
}

// Metadata stats path.
func (l *Local) Metadata(_ context.Context, p string) (md *Metadata, err error) {
	defer func() { observe(KindLocal, "metadata", err) }()

	full, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("storage: %s: stat %q: %w", l.name, p, err)
	}
	mod := info.ModTime()
	md = &Metadata{Created: &mod, Modified: &mod}
	if info.Mode().IsRegular() {
		md.Size = sizePtr(info.Size())
	}
	return md, nil
}

// Open returns the filesystem path of a regular file for streaming.
func (l *Local) Open(p string) (string, error) {
	full, err := l.resolve(p)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return full, nil
}
