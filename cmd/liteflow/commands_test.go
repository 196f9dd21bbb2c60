package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/liteflow/internal/auth"
	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/remote"
	"github.com/zulandar/liteflow/internal/remote/remotetest"
	"github.com/zulandar/liteflow/internal/storage"
)

func TestHashPassword(t *testing.T) {
	cmd := newRootCmd()
	out := new(strings.Builder)
	cmd.SetOut(out)
	cmd.SetErr(new(strings.Builder))
	cmd.SetIn(strings.NewReader("s3cret\n"))
	cmd.SetArgs([]string{"hash-password"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if !auth.VerifyPassword("s3cret", hash) {
		t.Errorf("printed hash %q does not verify", hash)
	}
}

func TestHashPassword_Empty(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(strings.Builder))
	cmd.SetErr(new(strings.Builder))
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetArgs([]string{"hash-password"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestDBMigrate(t *testing.T) {
	root := testEnv(t)
	out, err := run(t, "db", "migrate")
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 3 tables (sqlite)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(root, "liteflow.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestDBMigrate_WithoutPassword(t *testing.T) {
	testEnv(t)
	t.Setenv("LITEFLOW_LOGIN_PASSWORD", "")
	out, err := run(t, "db", "migrate")
	if err != nil {
		t.Fatalf("db migrate without a login password: %v", err)
	}
	if !strings.Contains(out, "Migrated 3 tables (sqlite)") {
		t.Errorf("output = %q", out)
	}
}

func TestPipelineCommands(t *testing.T) {
	testEnv(t)
	srv := remotetest.NewServer(t, remotetest.Demo())
	t.Setenv("LITEFLOW_GITHUB_URL", srv.URL)
	t.Setenv("LITEFLOW_CACHE_TYPE", "memory")

	out, err := run(t, "pipeline", "list")
	if err != nil || !strings.Contains(out, "No pipelines imported.") {
		t.Fatalf("empty list: %q, %v", out, err)
	}

	out, err = run(t, "pipeline", "import", "nf-core/demo")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported nf-core/demo.") {
		t.Errorf("import output = %q", out)
	}
	out, err = run(t, "pipeline", "import", "nf-core/demo")
	if err != nil || !strings.Contains(out, "already imported") {
		t.Errorf("second import: %q, %v", out, err)
	}

	out, err = run(t, "pipeline", "list")
	if err != nil || !strings.Contains(out, "nf-core/demo") {
		t.Errorf("list: %q, %v", out, err)
	}

	out, err = run(t, "pipeline", "pin", "nf-core/demo", "1.0.0", "--type", "tag")
	if err != nil || !strings.Contains(out, "Pinned nf-core/demo to tag 1.0.0.") {
		t.Errorf("pin: %q, %v", out, err)
	}
	if _, err := run(t, "pipeline", "pin", "nf-core/demo", "9.9.9", "--type", "tag"); err == nil {
		t.Error("expected error pinning an unknown tag")
	}

	out, err = run(t, "pipeline", "remove", "nf-core/demo")
	if err != nil || !strings.Contains(out, "Removed nf-core/demo.") {
		t.Errorf("remove: %q, %v", out, err)
	}
	if _, err := run(t, "pipeline", "remove", "nf-core/demo"); err == nil {
		t.Error("expected error removing a missing pipeline")
	}
}

// holdCache opens the filesystem cache the way a running serve does and keeps
// its file lock until the test ends.
func holdCache(t *testing.T, root string) *cache.Cache {
	t.Helper()
	c, err := cache.Open(cache.OpenOptions{Dir: filepath.Join(root, "cache"), Timeout: time.Hour, Threshold: 100})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPipelineCommands_WhileServeHoldsCache(t *testing.T) {
	root := testEnv(t)
	srv := remotetest.NewServer(t, remotetest.Demo())
	t.Setenv("LITEFLOW_GITHUB_URL", srv.URL)
	holdCache(t, root)

	out, err := run(t, "pipeline", "import", "nf-core/demo")
	if err != nil {
		t.Fatalf("import with the cache locked: %v", err)
	}
	if !strings.Contains(out, "Imported nf-core/demo.") {
		t.Errorf("import output = %q", out)
	}
	if out, err := run(t, "pipeline", "list"); err != nil || !strings.Contains(out, "nf-core/demo") {
		t.Errorf("list: %q, %v", out, err)
	}
}

func TestPipelineImport_BadRepository(t *testing.T) {
	testEnv(t)
	_, err := run(t, "pipeline", "import", "not-a-repo")
	if err == nil || !strings.Contains(err.Error(), "invalid repository") {
		t.Errorf("err = %v", err)
	}
}

func TestCacheClear(t *testing.T) {
	root := testEnv(t)
	c, err := cache.Open(cache.OpenOptions{Dir: filepath.Join(root, "cache"), Timeout: time.Hour, Threshold: 100})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	for _, key := range []string{
		cache.Key(remote.CachePrefix, "refs", "nf-core", "demo"),
		cache.Key(remote.CachePrefix, "info", "nf-core", "demo"),
		cache.Key(storage.CachePrefix, "list", "s3", ""),
	} {
		if err := c.Set(key, []byte(`{}`)); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close cache: %v", err)
	}

	out, err := run(t, "cache", "clear", "github")
	if err != nil {
		t.Fatalf("cache clear github: %v", err)
	}
	if !strings.Contains(out, "Cleared 2 github cache entries.") {
		t.Errorf("output = %q", out)
	}
	out, err = run(t, "cache", "clear")
	if err != nil || !strings.Contains(out, "Cleared 1 all cache entries.") {
		t.Errorf("clear all: %q, %v", out, err)
	}
	if _, err := run(t, "cache", "clear", "redis"); err == nil {
		t.Error("expected error for unknown category")
	}

	if out, err := run(t, "cache", "purge"); err != nil || !strings.Contains(out, "Purged 0 expired entries.") {
		t.Errorf("purge: %q, %v", out, err)
	}
}

func TestCacheClear_WhileServeHoldsCache(t *testing.T) {
	root := testEnv(t)
	c := holdCache(t, root)
	key := cache.Key(remote.CachePrefix, "refs", "nf-core", "demo")
	if err := c.Set(key, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	for _, args := range [][]string{{"cache", "clear", "github"}, {"cache", "purge"}} {
		_, err := run(t, args...)
		if err == nil || !strings.Contains(err.Error(), "liteflow serve") {
			t.Errorf("%v: err = %v, want in-use error", args, err)
		}
		if !errors.Is(err, cache.ErrLocked) {
			t.Errorf("%v: err = %v, want cache.ErrLocked", args, err)
		}
	}
	if _, ok := c.Get(key); !ok {
		t.Error("entry held by the running server was touched")
	}
}

func TestCacheClear_MemoryKind(t *testing.T) {
	testEnv(t)
	t.Setenv("LITEFLOW_CACHE_TYPE", "memory")
	for _, args := range [][]string{{"cache", "clear"}, {"cache", "purge"}} {
		out, err := run(t, args...)
		if err == nil || !strings.Contains(err.Error(), "memory") {
			t.Errorf("%v: err = %v, want memory-kind error", args, err)
		}
		if strings.Contains(out, "Cleared") || strings.Contains(out, "Purged") {
			t.Errorf("%v: reported success: %q", args, out)
		}
	}
}

func TestStorageCheck(t *testing.T) {
	root := testEnv(t)
	if err := os.MkdirAll(filepath.Join(root, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "data", "samples.csv"), []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "storage", "check")
	if err != nil {
		t.Fatalf("storage check: %v\n%s", err, out)
	}
	for _, want := range []string{"local_data", "local_configs", "ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestStorageCheck_DeclarationFile(t *testing.T) {
	root := testEnv(t)
	path := filepath.Join(root, "backends.yaml")
	decl := "results:\n  type: local\n  root: \"{{ROOT_DIR}}/results\"\n  description: Pipeline results\n"
	if err := os.WriteFile(path, []byte(decl), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LITEFLOW_STORAGE_BACKEND_CONFIG", path)

	out, err := run(t, "storage", "check")
	if err != nil {
		t.Fatalf("storage check: %v", err)
	}
	if !strings.Contains(out, "results") || strings.Contains(out, "local_data") {
		t.Errorf("output = %q", out)
	}

	t.Setenv("LITEFLOW_STORAGE_BACKEND_CONFIG", filepath.Join(root, "missing.yaml"))
	if _, err := run(t, "storage", "check"); err == nil {
		t.Error("expected error for a missing declaration file")
	}
}

func TestServe_StartupFatal(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no login credential", map[string]string{
			"LITEFLOW_LOGIN_PASSWORD": "",
		}},
		{"invalid password hash", map[string]string{
			"LITEFLOW_LOGIN_PASSWORD":      "",
			"LITEFLOW_LOGIN_PASSWORD_HASH": "not-a-bcrypt-hash",
		}},
		{"missing enforced default config", map[string]string{
			"LITEFLOW_DEFAULT_CONFIG": "/nonexistent/default.config",
		}},
		{"missing storage declarations", map[string]string{
			"LITEFLOW_STORAGE_BACKEND_CONFIG": "/nonexistent/backends.yaml",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testEnv(t)
			t.Setenv("LITEFLOW_CACHE_TYPE", "memory")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := run(t, "serve", "--port", "0"); err == nil {
				t.Fatal("expected startup error")
			}
		})
	}
}
