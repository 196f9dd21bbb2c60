// Package pipeline manages imported pipeline repositories and blends stored
// identity with live metadata from the remote provider.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zulandar/liteflow/internal/log"
	"github.com/zulandar/liteflow/internal/models"
	"github.com/zulandar/liteflow/internal/nextflow"
	"github.com/zulandar/liteflow/internal/remote"
)

var (
	// ErrNotFound is returned when a pipeline has not been imported.
	ErrNotFound = errors.New("pipeline: not found")
	// ErrAlreadyImported is returned with the existing row on a repeat import.
	ErrAlreadyImported = errors.New("pipeline: already imported")
	// ErrValidation is returned for a malformed repository identifier.
	ErrValidation = errors.New("pipeline: invalid repository")
	// ErrInUse is returned when removing a pipeline that run configs reference.
	ErrInUse = errors.New("pipeline: referenced by run configs")
)

var segmentRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ParseRepository splits "org/project" and validates both segments.
func ParseRepository(s string) (org, project string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q is not of the form org/project", ErrValidation, s)
	}
	for _, p := range parts {
		if !ValidSegment(p) {
			return "", "", fmt.Errorf("%w: %q is not of the form org/project", ErrValidation, s)
		}
	}
	return parts[0], parts[1], nil
}

// ValidSegment reports whether s is a usable organization or project name.
func ValidSegment(s string) bool {
	return segmentRe.MatchString(s) && s != "." && s != ".."
}

// Registry persists imported pipelines.
type Registry struct {
	db     *gorm.DB
	source Source
	log    zerolog.Logger
}

// NewRegistry creates a Registry over db using source for remote metadata.
func NewRegistry(db *gorm.DB, source Source) *Registry {
	return &Registry{db: db, source: source, log: log.WithComponent("pipeline")}
}

// Import records org/project. A repeat import returns the existing row
// together with ErrAlreadyImported. The remote refs and default branch are
// fetched before anything is written, so an upstream failure leaves no row.
func (r *Registry) Import(ctx context.Context, org, project string) (*models.Pipeline, error) {
	if !ValidSegment(org) || !ValidSegment(project) {
		return nil, fmt.Errorf("%w: %q/%q", ErrValidation, org, project)
	}
	existing, err := r.Get(org, project)
	if err == nil {
		return existing, ErrAlreadyImported
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	repo := r.source.Repo(org, project)
	if _, err := repo.Refs(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: import %s/%s: %w", org, project, err)
	}
	branch, err := repo.DefaultBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: import %s/%s: %w", org, project, err)
	}

	p := &models.Pipeline{
		Provider:    models.ProviderGitHub,
		OrgName:     org,
		ProjectName: project,
		Ref:         branch,
		RefType:     models.RefTypeBranch,
	}
	if err := r.db.Create(p).Error; err != nil {
		return nil, fmt.Errorf("pipeline: create %s/%s: %w", org, project, err)
	}
	r.log.Info().Str("pipeline", p.FullName()).Str("ref", branch).Msg("pipeline imported")
	return p, nil
}

// Get loads an imported pipeline.
func (r *Registry) Get(org, project string) (*models.Pipeline, error) {
	var p models.Pipeline
	err := r.db.Where("org_name = ? AND project_name = ?", org, project).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, org, project)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: get %s/%s: %w", org, project, err)
	}
	return &p, nil
}

// All returns every imported pipeline ordered by name, without remote lookups.
func (r *Registry) All() ([]models.Pipeline, error) {
	var out []models.Pipeline
	if err := r.db.Order("org_name, project_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("pipeline: list: %w", err)
	}
	return out, nil
}

// Summary blends a stored pipeline with its live metadata.
type Summary struct {
	ID              uint
	Org             string
	Project         string
	Ref             string
	RefType         string
	SHA             string
	Branches        []string
	Tags            []string
	Description     string
	NextflowVersion string
}

// Name returns "org/project".
func (s Summary) Name() string { return s.Org + "/" + s.Project }

// ShortSHA returns the abbreviated head commit.
func (s Summary) ShortSHA() string { return remote.ShortSHA(s.SHA) }

// List summarises every imported pipeline. Pipelines whose metadata cannot
// currently be fetched are logged and left out.
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.All()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, p := range rows {
		s, err := r.summarise(ctx, p)
		if err != nil {
			r.log.Warn().Err(err).Str("pipeline", p.FullName()).Msg("skipping pipeline with unavailable metadata")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Registry) summarise(ctx context.Context, p models.Pipeline) (Summary, error) {
	repo := r.source.Repo(p.OrgName, p.ProjectName)
	refs, err := repo.Refs(ctx)
	if err != nil {
		return Summary{}, err
	}
	ref, refType := p.Ref, p.RefType
	if ref == "" || refType == "" {
		if ref, err = repo.DefaultBranch(ctx); err != nil {
			return Summary{}, err
		}
		refType = models.RefTypeBranch
	}
	sha, err := refs.Resolve(ref, refType)
	if err != nil {
		return Summary{}, err
	}
	if refType == models.RefTypeCommit {
		sha = refs.ExpandCommit(sha)
	}
	manifest, err := r.manifest(ctx, repo, sha)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ID:              p.ID,
		Org:             p.OrgName,
		Project:         p.ProjectName,
		Ref:             ref,
		RefType:         refType,
		SHA:             sha,
		Branches:        sortedKeys(refs.Branches),
		Tags:            sortedKeys(refs.Tags),
		Description:     manifest.Description,
		NextflowVersion: manifest.NextflowVersion,
	}, nil
}

// manifest reads nextflow.config at sha. A repository without one gets
// placeholder values.
func (r *Registry) manifest(ctx context.Context, repo Repository, sha string) (nextflow.Manifest, error) {
	content, err := repo.FileContent(ctx, nextflow.ConfigFile, sha)
	if errors.Is(err, remote.ErrFileNotFound) {
		return nextflow.Manifest{}.WithPlaceholders(), nil
	}
	if err != nil {
		return nextflow.Manifest{}, err
	}
	return nextflow.ParseManifest(content).WithPlaceholders(), nil
}

// Detail is everything the pipeline page shows for one resolved revision.
type Detail struct {
	Org      string
	Project  string
	Ref      string
	RefType  string
	SHA      string
	Info     remote.Info
	Refs     *remote.Refs
	Manifest nextflow.Manifest
	Schema   *nextflow.Schema
	Readme   remote.Readme
}

// Name returns "org/project".
func (d *Detail) Name() string { return d.Org + "/" + d.Project }

// ShortSHA returns the abbreviated resolved commit.
func (d *Detail) ShortSHA() string { return remote.ShortSHA(d.SHA) }

// Detail resolves ref and loads the manifest, parameter schema and README at
// that revision. A short commit id is expanded through the commit map.
func (r *Registry) Detail(ctx context.Context, org, project, refType, ref string) (*Detail, error) {
	repo := r.source.Repo(org, project)
	refs, err := repo.Refs(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: refs %s/%s: %w", org, project, err)
	}
	sha, err := refs.Resolve(ref, refType)
	if err != nil {
		return nil, err
	}
	if refType == models.RefTypeCommit {
		sha = refs.ExpandCommit(sha)
	}

	d := &Detail{Org: org, Project: project, Ref: ref, RefType: refType, SHA: sha, Refs: refs}
	if d.Info, err = repo.Info(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: info %s/%s: %w", org, project, err)
	}
	if d.Manifest, err = r.manifest(ctx, repo, sha); err != nil {
		return nil, fmt.Errorf("pipeline: manifest %s/%s: %w", org, project, err)
	}
	if d.Schema, err = r.schema(ctx, repo, sha); err != nil {
		return nil, err
	}
	if d.Readme, err = repo.Readme(ctx, sha); err != nil {
		r.log.Warn().Err(err).Str("pipeline", d.Name()).Msg("readme unavailable")
		d.Readme = remote.Readme{}
	}
	return d, nil
}

func (r *Registry) schema(ctx context.Context, repo Repository, sha string) (*nextflow.Schema, error) {
	content, err := repo.FileContent(ctx, nextflow.SchemaFile, sha)
	if errors.Is(err, remote.ErrFileNotFound) {
		return &nextflow.Schema{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: schema: %w", err)
	}
	s, err := nextflow.LoadSchema([]byte(content))
	if err != nil {
		return nil, fmt.Errorf("pipeline: schema: %w", err)
	}
	return s, nil
}

// Resolve maps ref to a full commit sha using the live refs.
func (r *Registry) Resolve(ctx context.Context, org, project, refType, ref string) (string, error) {
	refs, err := r.source.Repo(org, project).Refs(ctx)
	if err != nil {
		return "", fmt.Errorf("pipeline: refs %s/%s: %w", org, project, err)
	}
	sha, err := refs.Resolve(ref, refType)
	if err != nil {
		return "", err
	}
	if refType == models.RefTypeCommit {
		sha = refs.ExpandCommit(sha)
	}
	return sha, nil
}

// ValidateParams checks params against the pipeline's schema at sha. A
// pipeline without a schema accepts any parameters.
func (r *Registry) ValidateParams(ctx context.Context, org, project, sha string, params map[string]any) error {
	repo := r.source.Repo(org, project)
	content, err := repo.FileContent(ctx, nextflow.SchemaFile, sha)
	if errors.Is(err, remote.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pipeline: schema: %w", err)
	}
	s, err := nextflow.LoadSchema([]byte(content))
	if err != nil {
		return fmt.Errorf("pipeline: schema: %w", err)
	}
	return s.Validate(params)
}

// Pin sets the pipeline's default ref after checking it resolves.
func (r *Registry) Pin(ctx context.Context, org, project, ref, refType string) (*models.Pipeline, error) {
	p, err := r.Get(org, project)
	if err != nil {
		return nil, err
	}
	refs, err := r.source.Repo(org, project).Refs(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: pin %s/%s: %w", org, project, err)
	}
	if refType == models.RefTypeCommit {
		if _, ok := refs.Commits[remote.ShortSHA(ref)]; !ok {
			return nil, fmt.Errorf("%w: commit %q", remote.ErrRefNotFound, ref)
		}
	} else if _, err := refs.Resolve(ref, refType); err != nil {
		return nil, err
	}
	p.Ref, p.RefType = ref, refType
	if err := r.db.Save(p).Error; err != nil {
		return nil, fmt.Errorf("pipeline: pin %s/%s: %w", org, project, err)
	}
	r.log.Info().Str("pipeline", p.FullName()).Str("ref", ref).Str("ref_type", refType).Msg("pipeline pinned")
	return p, nil
}

// Remove deletes an imported pipeline that no run config references.
func (r *Registry) Remove(org, project string) error {
	p, err := r.Get(org, project)
	if err != nil {
		return err
	}
	var n int64
	if err := r.db.Model(&models.RunConfig{}).Where("pipeline_id = ?", p.ID).Count(&n).Error; err != nil {
		return fmt.Errorf("pipeline: remove %s/%s: %w", org, project, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s has %d", ErrInUse, p.FullName(), n)
	}
	if err := r.db.Delete(p).Error; err != nil {
		return fmt.Errorf("pipeline: remove %s/%s: %w", org, project, err)
	}
	r.log.Info().Str("pipeline", p.FullName()).Msg("pipeline removed")
	return nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
