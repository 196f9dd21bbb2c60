// Package config provides YAML and environment configuration loading for liteflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level liteflow configuration. It is read from an optional
// YAML file and then overridden by LITEFLOW_* environment variables.
type Config struct {
	RootDir              string         `yaml:"root_dir"`
	Port                 int            `yaml:"port"`
	DefaultConfig        string         `yaml:"default_config"`
	StorageBackendConfig string         `yaml:"storage_backend_config"`
	Database             DatabaseConfig `yaml:"database"`
	Auth                 AuthConfig     `yaml:"auth"`
	GitHub               GitHubConfig   `yaml:"github"`
	Cache                CacheConfig    `yaml:"cache"`
	Log                  LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the relational store. The sqlite driver keeps its
// database file under the root directory unless a DSN is given.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig holds the shared login credential and token settings.
type AuthConfig struct {
	Password            string        `yaml:"password"`
	PasswordHash        string        `yaml:"password_hash"`
	SecretKey           string        `yaml:"secret_key"`
	AccessTokenExpires  time.Duration `yaml:"access_token_expires"`
	RefreshTokenExpires time.Duration `yaml:"refresh_token_expires"`
	CookieSecure        bool          `yaml:"cookie_secure"`
}

// GitHubConfig holds settings for the code-hosting provider.
type GitHubConfig struct {
	Token       string `yaml:"token"`
	BaseURL     string `yaml:"base_url"`
	RawBaseURL  string `yaml:"raw_base_url"`
	CommitLimit int    `yaml:"commit_limit"`
}

// CacheConfig holds the key-value cache settings.
type CacheConfig struct {
	Type      string        `yaml:"type"`
	Timeout   time.Duration `yaml:"timeout"`
	Threshold int           `yaml:"threshold"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	CacheFilesystem = "filesystem"
	CacheMemory     = "memory"
)

// Load reads an optional YAML config file from path, applies environment
// overrides and returns a validated Config. An empty path skips the file.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return parse(data, os.LookupEnv)
}

// Parse unmarshals YAML bytes into a validated Config, applying environment
// overrides from the process environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, os.LookupEnv)
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides fields from LITEFLOW_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	str("LITEFLOW_ROOT_DIR", &c.RootDir)
	num("LITEFLOW_PORT", &c.Port)
	str("LITEFLOW_DEFAULT_CONFIG", &c.DefaultConfig)
	str("LITEFLOW_STORAGE_BACKEND_CONFIG", &c.StorageBackendConfig)

	str("LITEFLOW_DB_DRIVER", &c.Database.Driver)
	str("LITEFLOW_DB_DSN", &c.Database.DSN)

	str("LITEFLOW_LOGIN_PASSWORD", &c.Auth.Password)
	str("LITEFLOW_LOGIN_PASSWORD_HASH", &c.Auth.PasswordHash)
	str("LITEFLOW_SECRET_KEY", &c.Auth.SecretKey)
	dur("LITEFLOW_ACCESS_TOKEN_EXPIRES", &c.Auth.AccessTokenExpires)
	dur("LITEFLOW_REFRESH_TOKEN_EXPIRES", &c.Auth.RefreshTokenExpires)
	flag("LITEFLOW_COOKIE_SECURE", &c.Auth.CookieSecure)

	if c.GitHub.Token == "" {
		str("GITHUB_TOKEN", &c.GitHub.Token)
	}
	str("LITEFLOW_GITHUB_TOKEN", &c.GitHub.Token)
	str("LITEFLOW_GITHUB_URL", &c.GitHub.BaseURL)

	str("LITEFLOW_CACHE_TYPE", &c.Cache.Type)
	dur("LITEFLOW_CACHE_TIMEOUT", &c.Cache.Timeout)
	num("LITEFLOW_CACHE_THRESHOLD", &c.Cache.Threshold)

	str("LITEFLOW_LOG_LEVEL", &c.Log.Level)
	flag("LITEFLOW_LOG_JSON", &c.Log.JSON)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() error {
	if c.RootDir == "" {
		c.RootDir = "root_dir"
	}
	root, err := ResolveDir(c.RootDir)
	if err != nil {
		return fmt.Errorf("config: root_dir: %w", err)
	}
	c.RootDir = root

	if c.Port == 0 {
		c.Port = 5000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Auth.AccessTokenExpires == 0 {
		c.Auth.AccessTokenExpires = time.Hour
	}
	if c.Auth.RefreshTokenExpires == 0 {
		c.Auth.RefreshTokenExpires = 30 * 24 * time.Hour
	}
	if c.GitHub.RawBaseURL == "" {
		c.GitHub.RawBaseURL = "https://raw.githubusercontent.com"
	}
	if c.GitHub.CommitLimit == 0 {
		c.GitHub.CommitLimit = 25
	}
	if c.Cache.Type == "" {
		c.Cache.Type = CacheFilesystem
	}
	if c.Cache.Timeout == 0 {
		c.Cache.Timeout = time.Hour
	}
	if c.Cache.Threshold == 0 {
		c.Cache.Threshold = 1000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case DriverSQLite:
	case DriverMySQL:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the mysql driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Cache.Type {
	case CacheFilesystem, CacheMemory:
	default:
		errs = append(errs, fmt.Sprintf("cache.type %q is not supported", c.Cache.Type))
	}
	if c.Cache.Timeout < 0 {
		errs = append(errs, "cache.timeout must not be negative")
	}
	if c.Cache.Threshold < 0 {
		errs = append(errs, "cache.threshold must not be negative")
	}
	if c.Auth.AccessTokenExpires < 0 || c.Auth.RefreshTokenExpires < 0 {
		errs = append(errs, "token lifetimes must not be negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d is out of range", c.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseDuration accepts Go duration strings ("90m") or a bare number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// ResolveDir expands a leading ~ and makes relative paths absolute against the
// working directory.
func ResolveDir(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return filepath.Abs(dir)
}

// ConfigsDir is where named Nextflow config files live.
func (c *Config) ConfigsDir() string { return filepath.Join(c.RootDir, "configs") }

// RunConfigsDir is where per-run directories live.
func (c *Config) RunConfigsDir() string { return filepath.Join(c.RootDir, "run_configs") }

// CacheDir holds the filesystem-backed cache store.
func (c *Config) CacheDir() string { return filepath.Join(c.RootDir, "cache") }

// DataDir is the root of the default local storage backend.
func (c *Config) DataDir() string { return filepath.Join(c.RootDir, "data") }

// DatabasePath is the sqlite database file.
func (c *Config) DatabasePath() string { return filepath.Join(c.RootDir, "liteflow.db") }

// StorageBackendPath returns the declaration file path and whether it was
// explicitly configured.
func (c *Config) StorageBackendPath() (string, bool) {
	if c.StorageBackendConfig != "" {
		return c.StorageBackendConfig, true
	}
	return filepath.Join(c.RootDir, "storage_backends.yaml"), false
}

// EnsureDirs creates the root directory layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.RootDir, c.ConfigsDir(), c.RunConfigsDir(), c.CacheDir(), c.DataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
