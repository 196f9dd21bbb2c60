package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/liteflow/internal/cache"
	"github.com/zulandar/liteflow/internal/db"
	"github.com/zulandar/liteflow/internal/models"
	"github.com/zulandar/liteflow/internal/nextflow"
	"github.com/zulandar/liteflow/internal/remote"
	"github.com/zulandar/liteflow/internal/remote/remotetest"
)

// testDB opens a migrated sqlite database in a temp directory.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func testRegistry(t *testing.T, repos ...remotetest.Repo) (*Registry, *remotetest.Server, *gorm.DB) {
	t.Helper()
	c, err := cache.New(cache.NewMemoryStore(100), cache.Options{Timeout: time.Hour})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	srv := remotetest.NewServer(t, repos...)
	gdb := testDB(t)
	return NewRegistry(gdb, RemoteSource{Client: srv.Client(t, c)}), srv, gdb
}

func countPipelines(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(&models.Pipeline{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestParseRepository(t *testing.T) {
	tests := []struct {
		in      string
		org     string
		project string
		ok      bool
	}{
		{"nf-core/demo", "nf-core", "demo", true},
		{" nf-core/rnaseq ", "nf-core", "rnaseq", true},
		{"my_org/my.pipeline-2", "my_org", "my.pipeline-2", true},
		{"nf-core", "", "", false},
		{"nf-core/demo/extra", "", "", false},
		{"/demo", "", "", false},
		{"nf-core/", "", "", false},
		{"nf core/demo", "", "", false},
		{"../demo", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		org, project, err := ParseRepository(tt.in)
		if tt.ok {
			if err != nil {
				t.Errorf("ParseRepository(%q): %v", tt.in, err)
				continue
			}
			if org != tt.org || project != tt.project {
				t.Errorf("ParseRepository(%q) = %q, %q", tt.in, org, project)
			}
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("ParseRepository(%q) err = %v, want ErrValidation", tt.in, err)
		}
	}
}

func TestImport_Twice(t *testing.T) {
	reg, _, gdb := testRegistry(t, remotetest.Demo())
	ctx := context.Background()

	p, err := reg.Import(ctx, "nf-core", "demo")
	if err != nil {
		t.Fatalf("first Import: %v", err)
	}
	if p.Ref != "master" || p.RefType != models.RefTypeBranch {
		t.Errorf("pinned ref = %s %q, want branch master", p.RefType, p.Ref)
	}
	if p.Provider != models.ProviderGitHub {
		t.Errorf("Provider = %q", p.Provider)
	}

	again, err := reg.Import(ctx, "nf-core", "demo")
	if !errors.Is(err, ErrAlreadyImported) {
		t.Fatalf("second Import err = %v, want ErrAlreadyImported", err)
	}
	if again == nil || again.ID != p.ID {
		t.Errorf("second Import should return the existing row")
	}
	if n := countPipelines(t, gdb); n != 1 {
		t.Errorf("pipeline rows = %d, want 1", n)
	}
}

func TestImport_UpstreamFailureCreatesNoRow(t *testing.T) {
	reg, _, gdb := testRegistry(t)

	_, err := reg.Import(context.Background(), "nobody", "missing")
	if !errors.Is(err, remote.ErrRepoNotFound) {
		t.Fatalf("Import err = %v, want ErrRepoNotFound", err)
	}
	if n := countPipelines(t, gdb); n != 0 {
		t.Errorf("pipeline rows = %d, want 0", n)
	}
}

func TestImport_InvalidName(t *testing.T) {
	reg, _, _ := testRegistry(t)
	_, err := reg.Import(context.Background(), "bad org", "demo")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	reg, _, _ := testRegistry(t)
	_, err := reg.Get("nf-core", "demo")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList_BlendsMetadataAndSkipsBroken(t *testing.T) {
	reg, _, gdb := testRegistry(t, remotetest.Demo())
	ctx := context.Background()

	if _, err := reg.Import(ctx, "nf-core", "demo"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	// A row whose repository has since disappeared upstream.
	ghost := models.Pipeline{Provider: models.ProviderGitHub, OrgName: "gone", ProjectName: "away", Ref: "main", RefType: "branch"}
	if err := gdb.Create(&ghost).Error; err != nil {
		t.Fatalf("create ghost: %v", err)
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(List) = %d, want 1", len(list))
	}
	s := list[0]
	if s.Name() != "nf-core/demo" {
		t.Errorf("Name = %q", s.Name())
	}
	if s.Description != "An nf-core demo pipeline" {
		t.Errorf("Description = %q", s.Description)
	}
	if s.NextflowVersion != "!>=24.04.2" {
		t.Errorf("NextflowVersion = %q", s.NextflowVersion)
	}
	if s.SHA != remotetest.Demo().Branches["master"] {
		t.Errorf("SHA = %q", s.SHA)
	}
	if len(s.Branches) != 2 || s.Branches[0] != "dev" || s.Branches[1] != "master" {
		t.Errorf("Branches = %v", s.Branches)
	}
	if len(s.Tags) != 1 || s.Tags[0] != "1.0.0" {
		t.Errorf("Tags = %v", s.Tags)
	}
	if s.ShortSHA() != "1a2b3c4" {
		t.Errorf("ShortSHA = %q", s.ShortSHA())
	}
}

func TestList_MissingManifestUsesPlaceholders(t *testing.T) {
	demo := remotetest.Demo()
	demo.Files = nil
	reg, _, _ := testRegistry(t, demo)
	ctx := context.Background()
	if _, err := reg.Import(ctx, "nf-core", "demo"); err != nil {
		t.Fatalf("Import: %v", err)
	}
	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(List) = %d, want 1", len(list))
	}
	if list[0].Description != nextflow.NoDescription || list[0].NextflowVersion != nextflow.NoVersion {
		t.Errorf("placeholders = %q / %q", list[0].Description, list[0].NextflowVersion)
	}
}

func TestDetail(t *testing.T) {
	reg, _, _ := testRegistry(t, remotetest.Demo())
	ctx := context.Background()
	demo := remotetest.Demo()

	tests := []struct {
		refType, ref string
		want         string
	}{
		{"branch", "master", demo.Branches["master"]},
		{"tag", "1.0.0", demo.Tags["1.0.0"]},
		{"commit", "1a2b3c4", demo.Branches["master"]},
		{"commit", demo.Branches["dev"], demo.Branches["dev"]},
	}
	for _, tt := range tests {
		d, err := reg.Detail(ctx, "nf-core", "demo", tt.refType, tt.ref)
		if err != nil {
			t.Fatalf("Detail(%s %s): %v", tt.refType, tt.ref, err)
		}
		if d.SHA != tt.want {
			t.Errorf("Detail(%s %s).SHA = %q, want %q", tt.refType, tt.ref, d.SHA, tt.want)
		}
	}

	d, err := reg.Detail(ctx, "nf-core", "demo", "branch", "master")
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.Manifest.NextflowVersion != "!>=24.04.2" {
		t.Errorf("Manifest = %+v", d.Manifest)
	}
	if d.Schema == nil || len(d.Schema.Groups) != 1 {
		t.Fatalf("Schema groups = %+v", d.Schema)
	}
	if d.Readme.Name != "README.md" {
		t.Errorf("Readme.Name = %q", d.Readme.Name)
	}
	if d.Info.Description != "An nf-core demo pipeline" {
		t.Errorf("Info.Description = %q", d.Info.Description)
	}
}

func TestDetail_BadRefs(t *testing.T) {
	reg, _, _ := testRegistry(t, remotetest.Demo())
	ctx := context.Background()

	_, err := reg.Detail(ctx, "nf-core", "demo", "pr", "1")
	if !errors.Is(err, remote.ErrInvalidRefType) {
		t.Errorf("err = %v, want ErrInvalidRefType", err)
	}
	_, err = reg.Detail(ctx, "nf-core", "demo", "branch", "nope")
	if !errors.Is(err, remote.ErrRefNotFound) {
		t.Errorf("err = %v, want ErrRefNotFound", err)
	}
}

func TestResolve(t *testing.T) {
	reg, _, _ := testRegistry(t, remotetest.Demo())
	ctx := context.Background()
	demo := remotetest.Demo()

	sha, err := reg.Resolve(ctx, "nf-core", "demo", "tag", "1.0.0")
	if err != nil || sha != demo.Tags["1.0.0"] {
		t.Errorf("Resolve(tag 1.0.0) = %q, %v", sha, err)
	}
	sha, err = reg.Resolve(ctx, "nf-core", "demo", "commit", "1a2b3c4")
	if err != nil || sha != demo.Branches["master"] {
		t.Errorf("Resolve(commit 1a2b3c4) = %q, %v", sha, err)
	}
	if _, err := reg.Resolve(ctx, "nf-core", "demo", "branch", "gone"); !errors.Is(err, remote.ErrRefNotFound) {
		t.Errorf("Resolve(missing branch) error = %v", err)
	}
}

func TestPin(t *testing.T) {
	reg, _, _ := testRegistry(t, remotetest.Demo())
	ctx := context.Background()
	if _, err := reg.Import(ctx, "nf-core", "demo"); err != nil {
		t.Fatalf("Import: %v", err)
	}

	p, err := reg.Pin(ctx, "nf-core", "demo", "1.0.0", models.RefTypeTag)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if p.Ref != "1.0.0" || p.RefType != models.RefTypeTag {
		t.Errorf("pinned = %s %s", p.RefType, p.Ref)
	}
	got, _ := reg.Get("nf-core", "demo")
	if got.Ref != "1.0.0" {
		t.Errorf("persisted Ref = %q", got.Ref)
	}

	if _, err := reg.Pin(ctx, "nf-core", "demo", "nope", models.RefTypeBranch); !errors.Is(err, remote.ErrRefNotFound) {
		t.Errorf("Pin(unknown) err = %v", err)
	}
	if _, err := reg.Pin(ctx, "nf-core", "demo", "deadbeefdeadbeef", models.RefTypeCommit); !errors.Is(err, remote.ErrRefNotFound) {
		t.Errorf("Pin(unknown commit) err = %v", err)
	}
	if _, err := reg.Pin(ctx, "x", "y", "main", models.RefTypeBranch); !errors.Is(err, ErrNotFound) {
		t.Errorf("Pin(not imported) err = %v", err)
	}
}

func TestRemove(t *testing.T) {
	reg, _, gdb := testRegistry(t, remotetest.Demo())
	ctx := context.Background()
	p, err := reg.Import(ctx, "nf-core", "demo")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	rc := models.RunConfig{Organization: "nf-core", PipelineName: "demo", RunName: "r1", PipelineID: p.ID}
	if err := gdb.Create(&rc).Error; err != nil {
		t.Fatalf("create run config: %v", err)
	}
	if err := reg.Remove("nf-core", "demo"); !errors.Is(err, ErrInUse) {
		t.Fatalf("Remove with run configs err = %v, want ErrInUse", err)
	}

	if err := gdb.Delete(&rc).Error; err != nil {
		t.Fatalf("delete run config: %v", err)
	}
	if err := reg.Remove("nf-core", "demo"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n := countPipelines(t, gdb); n != 0 {
		t.Errorf("rows = %d, want 0", n)
	}
	if err := reg.Remove("nf-core", "demo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove err = %v, want ErrNotFound", err)
	}
}

func TestValidateParams(t *testing.T) {
	reg, _, _ := testRegistry(t, remotetest.Demo())
	ctx := context.Background()
	sha := remotetest.Demo().Branches["master"]

	if err := reg.ValidateParams(ctx, "nf-core", "demo", sha, map[string]any{"input": "s.csv", "outdir": "out"}); err != nil {
		t.Errorf("valid params: %v", err)
	}
	err := reg.ValidateParams(ctx, "nf-core", "demo", sha, map[string]any{"input": "s.csv"})
	if !errors.Is(err, nextflow.ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
}
