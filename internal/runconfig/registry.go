// Package runconfig records submitted runs. Each run gets a directory under
// run_configs/<org>/<pipeline>/<run> holding params.yaml, run.yml and an
// optional copy of the selected Nextflow config.
package runconfig

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/models"
	"github.com/zulandar/liteflow/internal/pipeline"
)

const (
	ParamsFile = "params.yaml"
	RunFile    = "run.yml"
	ConfigFile = "nextflow.config"
)

var (
	ErrNotFound   = errors.New("runconfig: run config not found")
	ErrExists     = errors.New("runconfig: run name already exists")
	ErrValidation = errors.New("runconfig: invalid run config")
)

// CreateOpts holds the parameters for Create.
type CreateOpts struct {
	Organization    string
	PipelineName    string
	RunName         string
	PipelineID      uint
	Ref             string
	RefType         string
	NextflowVersion string
	Parameters      map[string]any
	ConfigID        *uint
}

// runRecord is the layout of run.yml.
type runRecord struct {
	Organization    string `yaml:"organization"`
	PipelineName    string `yaml:"pipeline_name"`
	RunName         string `yaml:"run_name"`
	Ref             string `yaml:"ref"`
	RefType         string `yaml:"ref_type"`
	NextflowVersion string `yaml:"nextflow_version"`
	CreatedAt       string `yaml:"created_at"`
	ConfigFile      string `yaml:"config_file,omitempty"`
}

// Registry manages run directories and rows.
type Registry struct {
	db         *gorm.DB
	dir        string
	configsDir string
	now        func() time.Time
	log        zerolog.Logger
}

// NewRegistry creates a Registry rooted at dir. configsDir is where named
// config files are read from when a run selects one.
func NewRegistry(db *gorm.DB, dir, configsDir string) *Registry {
	return &Registry{
		db:         db,
		dir:        dir,
		configsDir: configsDir,
		now:        time.Now,
		log:        log.WithComponent("runconfig"),
	}
}

func (o *CreateOpts) validate() error {
	var errs []string
	for _, f := range []struct{ name, value string }{
		{"organization", o.Organization},
		{"pipeline_name", o.PipelineName},
		{"run_name", o.RunName},
	} {
		switch {
		case f.value == "":
			errs = append(errs, f.name+" is required")
		case !pipeline.ValidSegment(f.value):
			errs = append(errs, fmt.Sprintf("%s %q may only contain letters, digits, '.', '_' and '-'", f.name, f.value))
		}
	}
	if o.PipelineID == 0 {
		errs = append(errs, "pipeline id is required")
	}
	switch o.RefType {
	case "", models.RefTypeBranch, models.RefTypeTag, models.RefTypeCommit:
	default:
		errs = append(errs, fmt.Sprintf("ref_type %q is not one of branch, tag, commit", o.RefType))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}

// Create writes the run directory and inserts the row. If the insert fails
// a directory created by this call is removed again.
func (r *Registry) Create(opts CreateOpts) (*models.RunConfig, error) {
	opts.Organization = strings.TrimSpace(opts.Organization)
	opts.PipelineName = strings.TrimSpace(opts.PipelineName)
	opts.RunName = strings.TrimSpace(opts.RunName)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var n int64
	if err := r.db.Model(&models.RunConfig{}).Where("run_name = ?", opts.RunName).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("runconfig: check run name: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, opts.RunName)
	}

	var p models.Pipeline
	if err := r.db.First(&p, opts.PipelineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: pipeline %d does not exist", ErrValidation, opts.PipelineID)
		}
		return nil, fmt.Errorf("runconfig: load pipeline: %w", err)
	}

	var cfg *models.Config
	if opts.ConfigID != nil {
		cfg = &models.Config{}
		if err := r.db.First(cfg, *opts.ConfigID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: config %d does not exist", ErrValidation, *opts.ConfigID)
			}
			return nil, fmt.Errorf("runconfig: load config: %w", err)
		}
	}

	now := r.now()
	dir := r.Dir(opts.Organization, opts.PipelineName, opts.RunName)
	_, statErr := os.Stat(dir)
	created := errors.Is(statErr, os.ErrNotExist)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runconfig: create dir: %w", err)
	}
	cleanup := func() {
		if !created {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			r.log.Warn().Err(err).Str("dir", dir).Msg("orphaned run directory left behind")
		}
	}

	if err := r.writeFiles(dir, opts, cfg, now); err != nil {
		cleanup()
		return nil, err
	}

	rc := &models.RunConfig{
		Organization:    opts.Organization,
		PipelineName:    opts.PipelineName,
		RunName:         opts.RunName,
		Ref:             opts.Ref,
		RefType:         opts.RefType,
		NextflowVersion: opts.NextflowVersion,
		Parameters:      opts.Parameters,
		PipelineID:      p.ID,
		ConfigID:        opts.ConfigID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.db.Create(rc).Error; err != nil {
		cleanup()
		return nil, fmt.Errorf("runconfig: create %s: %w", opts.RunName, err)
	}
	rc.Pipeline = p
	rc.Config = cfg
	r.log.Info().Str("run", opts.RunName).Str("pipeline", p.FullName()).Msg("run config created")
	return rc, nil
}

func (r *Registry) writeFiles(dir string, opts CreateOpts, cfg *models.Config, now time.Time) error {
	params := opts.Parameters
	if params == nil {
		params = map[string]any{}
	}
	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("runconfig: encode params: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ParamsFile), data, 0o644); err != nil {
		return fmt.Errorf("runconfig: write params: %w", err)
	}

	rec := runRecord{
		Organization:    opts.Organization,
		PipelineName:    opts.PipelineName,
		RunName:         opts.RunName,
		Ref:             opts.Ref,
		RefType:         opts.RefType,
		NextflowVersion: opts.NextflowVersion,
		CreatedAt:       now.UTC().Format(time.RFC3339),
	}
	if cfg != nil {
		rec.ConfigFile = cfg.Filename
	}
	data, err = yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("runconfig: encode run record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, RunFile), data, 0o644); err != nil {
		return fmt.Errorf("runconfig: write run record: %w", err)
	}

	if cfg == nil {
		return nil
	}
	src := filepath.Join(r.configsDir, cfg.Filename)
	if err := copyFile(src, filepath.Join(dir, ConfigFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Warn().Str("config", cfg.Filename).Msg("selected config file missing, run has no nextflow.config")
			return nil
		}
		return fmt.Errorf("runconfig: copy config: %w", err)
	}
	return nil
}

// Dir returns the run directory for org/pipeline/run.
func (r *Registry) Dir(org, pipelineName, run string) string {
	return filepath.Join(r.dir, org, pipelineName, run)
}

// Get loads a run config with its pipeline and config.
func (r *Registry) Get(org, pipelineName, run string) (*models.RunConfig, error) {
	var rc models.RunConfig
	err := r.db.Preload("Pipeline").Preload("Config").
		Where("organization = ? AND pipeline_name = ? AND run_name = ?", org, pipelineName, run).
		First(&rc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, org, pipelineName, run)
	}
	if err != nil {
		return nil, fmt.Errorf("runconfig: get: %w", err)
	}
	return &rc, nil
}

// List returns every run config, newest first.
func (r *Registry) List() ([]models.RunConfig, error) {
	var out []models.RunConfig
	if err := r.db.Preload("Pipeline").Preload("Config").
		Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("runconfig: list: %w", err)
	}
	return out, nil
}

// ConfigFile returns the path of the run's nextflow.config, or "" when the
// run has none.
func (r *Registry) ConfigFile(org, pipelineName, run string) (string, error) {
	if _, err := r.Get(org, pipelineName, run); err != nil {
		return "", err
	}
	path := filepath.Join(r.Dir(org, pipelineName, run), ConfigFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("runconfig: stat config: %w", err)
	}
	return path, nil
}

// Delete removes the run directory and then the row.
func (r *Registry) Delete(org, pipelineName, run string) error {
	rc, err := r.Get(org, pipelineName, run)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(r.Dir(org, pipelineName, run)); err != nil {
		return fmt.Errorf("runconfig: remove dir: %w", err)
	}
	if err := r.db.Delete(rc).Error; err != nil {
		return fmt.Errorf("runconfig: delete %s: %w", run, err)
	}
	r.log.Info().Str("run", run).Msg("run config deleted")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
