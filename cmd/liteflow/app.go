package main

import (
	"errors"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/config"
	"github.com/zulandar/liteflow/internal/configs"
	"github.com/zulandar/liteflow/internal/db"
	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/pipeline"
	"github.com/zulandar/liteflow/internal/remote"
	"github.com/zulandar/liteflow/internal/runconfig"
	"github.com/zulandar/liteflow/internal/storage"
)

// loadConfig reads the configuration, initializes logging and creates the
// root directory layout.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDB connects and migrates. The sqlite file lives under the root
// directory unless a DSN is configured.
func openDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.Database.DSN
	if cfg.Database.Driver == config.DriverSQLite && dsn == "" {
		dsn = cfg.DatabasePath()
	}
	gdb, err := db.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return gdb, nil
}

func openCache(cfg *config.Config) (*cache.Cache, error) {
	c, err := cache.Open(cache.OpenOptions{
		Kind:      cfg.Cache.Type,
		Dir:       cfg.CacheDir(),
		Timeout:   cfg.Cache.Timeout,
		Threshold: cfg.Cache.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return c, nil
}

func newRemote(cfg *config.Config, c *cache.Cache) (*remote.Client, error) {
	return remote.NewClient(remote.ClientOptions{
		Token:       cfg.GitHub.Token,
		BaseURL:     cfg.GitHub.BaseURL,
		RawBaseURL:  cfg.GitHub.RawBaseURL,
		CommitLimit: cfg.GitHub.CommitLimit,
		Cache:       c,
	})
}

// loadDeclarations reads the storage backend file. Without one the two local
// defaults are used; an explicitly configured file must exist.
func loadDeclarations(cfg *config.Config) ([]storage.Declaration, error) {
	path, explicit := cfg.StorageBackendPath()
	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage backends %s: %w", path, err)
		}
		return storage.DefaultDeclarations(cfg.RootDir), nil
	}
	decls, err := storage.Load(path, cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("storage backends: %w", err)
	}
	return decls, nil
}

// app is the full set of services behind the console.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	cache      *cache.Cache
	pipelines  *pipeline.Registry
	configs    *configs.Registry
	runConfigs *runconfig.Registry
	storage    *storage.Manager
}

func openApp(cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.db, err = openDB(cfg); err != nil {
		return nil, err
	}
	if a.cache, err = openCache(cfg); err != nil {
		return nil, err
	}
	client, err := newRemote(cfg, a.cache)
	if err != nil {
		return nil, err
	}
	a.pipelines = pipeline.NewRegistry(a.db, pipeline.RemoteSource{Client: client})

	a.configs = configs.NewRegistry(a.db, cfg.ConfigsDir(), cfg.DefaultConfig != "")
	if cfg.DefaultConfig != "" {
		if err = a.configs.Enforce(cfg.DefaultConfig); err != nil {
			return nil, fmt.Errorf("default config: %w", err)
		}
	}
	a.runConfigs = runconfig.NewRegistry(a.db, cfg.RunConfigsDir(), cfg.ConfigsDir())

	decls, err := loadDeclarations(cfg)
	if err != nil {
		return nil, err
	}
	if a.storage, err = storage.NewManager(decls, a.cache); err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the cache and database handles.
func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.db != nil {
		db.Close(a.db)
	}
}
