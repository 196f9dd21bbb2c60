// Package configs manages named Nextflow configuration files. File content
// lives under the configs directory; names and the default flag live in the
// database.
package configs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/models"
)

const (
	// Suffix is appended to every config filename.
	Suffix = ".config"
	// DefaultFilename is the on-disk name of an enforced default config.
	DefaultFilename = "default.config"
	// DefaultName is the display name registered for an enforced default.
	DefaultName = "Default Configuration"
)

var (
	ErrNotFound         = errors.New("configs: config not found")
	ErrExists           = errors.New("configs: config already exists")
	ErrValidation       = errors.New("configs: invalid config")
	ErrDefaultConfig    = errors.New("cannot delete the default configuration")
	ErrEnforced         = errors.New("default config is enforced by system configuration")
	ErrEnforcedMismatch = errors.New("configs: existing default.config differs from the enforced default config")
)

// NormalizeFilename appends ".config" unless f already ends with it. Empty
// names and names containing path separators are rejected.
func NormalizeFilename(f string) (string, error) {
	f = strings.TrimSpace(f)
	if f == "" || f == Suffix {
		return "", fmt.Errorf("%w: filename is required", ErrValidation)
	}
	if strings.ContainsAny(f, `/\`) || f == "." || f == ".." || strings.HasPrefix(f, ".") {
		return "", fmt.Errorf("%w: %q is not a plain filename", ErrValidation, f)
	}
	if !strings.HasSuffix(f, Suffix) {
		f += Suffix
	}
	return f, nil
}

// Registry manages config files and rows.
type Registry struct {
	db       *gorm.DB
	dir      string
	enforced bool
	log      zerolog.Logger
}

// NewRegistry creates a Registry storing files in dir. When enforced is set
// the default config cannot be changed, edited or deleted.
func NewRegistry(db *gorm.DB, dir string, enforced bool) *Registry {
	return &Registry{db: db, dir: dir, enforced: enforced, log: log.WithComponent("configs")}
}

// Enforced reports whether an enforced default is active.
func (r *Registry) Enforced() bool { return r.enforced }

// Dir returns the configs directory.
func (r *Registry) Dir() string { return r.dir }

// Create writes an empty config file and registers it. If the row cannot be
// inserted the new file is removed again.
func (r *Registry) Create(name, filename string) (*models.Config, error) {
	filename, err := NormalizeFilename(filename)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSuffix(filename, Suffix)
	}
	if _, err := r.Get(filename); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, filename)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("configs: create dir: %w", err)
	}
	path := filepath.Join(r.dir, filename)
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, fmt.Errorf("configs: write %s: %w", filename, err)
	}
	cfg := &models.Config{Name: name, Filename: filename}
	if err := r.db.Create(cfg).Error; err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			r.log.Warn().Err(rmErr).Str("file", path).Msg("orphaned config file left behind")
		}
		return nil, fmt.Errorf("configs: create %s: %w", filename, err)
	}
	r.log.Info().Str("filename", filename).Msg("config created")
	return cfg, nil
}

// Get loads a config by filename; the filename is normalised first.
func (r *Registry) Get(filename string) (*models.Config, error) {
	filename, err := NormalizeFilename(filename)
	if err != nil {
		return nil, err
	}
	var cfg models.Config
	err = r.db.Where("filename = ?", filename).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("configs: get %s: %w", filename, err)
	}
	return &cfg, nil
}

// GetByID loads a config by primary key.
func (r *Registry) GetByID(id uint) (*models.Config, error) {
	var cfg models.Config
	err := r.db.First(&cfg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("configs: get %d: %w", id, err)
	}
	return &cfg, nil
}

// List returns every config, the default first.
func (r *Registry) List() ([]models.Config, error) {
	var out []models.Config
	if err := r.db.Order("is_default DESC, name, filename").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("configs: list: %w", err)
	}
	return out, nil
}

// Path returns the on-disk path of a registered config.
func (r *Registry) Path(filename string) (string, error) {
	cfg, err := r.Get(filename)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.dir, cfg.Filename), nil
}

// Content reads a config's file. A registered config whose file is missing
// reads as empty.
func (r *Registry) Content(filename string) (string, error) {
	path, err := r.Path(filename)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("configs: read %s: %w", filename, err)
	}
	return string(data), nil
}

// Update rewrites a config's file and bumps its updated_at.
func (r *Registry) Update(filename, content string) (*models.Config, error) {
	cfg, err := r.Get(filename)
	if err != nil {
		return nil, err
	}
	if r.enforced && cfg.IsDefault {
		return nil, ErrEnforced
	}
	path := filepath.Join(r.dir, cfg.Filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("configs: write %s: %w", cfg.Filename, err)
	}
	if err := r.db.Model(cfg).Update("updated_at", time.Now()).Error; err != nil {
		return nil, fmt.Errorf("configs: touch %s: %w", cfg.Filename, err)
	}
	return cfg, nil
}

// Delete removes a config's file (if present) and its row. The default
// config cannot be deleted.
func (r *Registry) Delete(filename string) error {
	cfg, err := r.Get(filename)
	if err != nil {
		return err
	}
	if cfg.IsDefault {
		if r.enforced {
			return ErrEnforced
		}
		return ErrDefaultConfig
	}
	path := filepath.Join(r.dir, cfg.Filename)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("configs: remove %s: %w", cfg.Filename, err)
	}
	if err := r.db.Delete(cfg).Error; err != nil {
		return fmt.Errorf("configs: delete %s: %w", cfg.Filename, err)
	}
	r.log.Info().Str("filename", cfg.Filename).Msg("config deleted")
	return nil
}

// SetDefault makes filename the only default config.
func (r *Registry) SetDefault(filename string) error {
	if r.enforced {
		return ErrEnforced
	}
	cfg, err := r.Get(filename)
	if err != nil {
		return err
	}
	return r.markDefault(cfg)
}

func (r *Registry) markDefault(cfg *models.Config) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Config{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(cfg).Update("is_default", true).Error
	})
	if err != nil {
		return fmt.Errorf("configs: set default %s: %w", cfg.Filename, err)
	}
	cfg.IsDefault = true
	return nil
}

// GetDefault returns the default config.
func (r *Registry) GetDefault() (*models.Config, error) {
	var cfg models.Config
	err := r.db.Where("is_default = ?", true).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no default config", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("configs: get default: %w", err)
	}
	return &cfg, nil
}

// Enforce installs the file at path as default.config. An existing
// default.config must have the same SHA-256 digest; otherwise
// ErrEnforcedMismatch is returned and the caller should refuse to start.
func (r *Registry) Enforce(path string) error {
	enforcedDigest, err := Digest(path)
	if err != nil {
		return fmt.Errorf("configs: enforced default %s: %w", path, err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("configs: create dir: %w", err)
	}
	dst := filepath.Join(r.dir, DefaultFilename)
	existingDigest, err := Digest(dst)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := copyFile(path, dst); err != nil {
			return fmt.Errorf("configs: install enforced default: %w", err)
		}
		r.log.Info().Str("source", path).Msg("enforced default config installed")
	case err != nil:
		return fmt.Errorf("configs: read %s: %w", dst, err)
	case existingDigest != enforcedDigest:
		return ErrEnforcedMismatch
	}

	cfg, err := r.Get(DefaultFilename)
	if errors.Is(err, ErrNotFound) {
		cfg = &models.Config{Name: DefaultName, Filename: DefaultFilename}
		if err := r.db.Create(cfg).Error; err != nil {
			return fmt.Errorf("configs: register enforced default: %w", err)
		}
	} else if err != nil {
		return err
	}
	if cfg.IsDefault {
		return nil
	}
	return r.markDefault(cfg)
}

// Digest returns the hex SHA-256 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
