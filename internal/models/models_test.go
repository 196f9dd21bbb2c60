package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestConfig_Fields(t *testing.T) {
	typ := reflect.TypeOf(Config{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "Name", "not null")
	assertGormTag(t, typ, "Filename", "uniqueIndex")
	assertGormTag(t, typ, "Filename", "not null")
	assertGormTag(t, typ, "IsDefault", "default:false")

	assertFieldType(t, typ, "ID", "uint")
	assertFieldType(t, typ, "IsDefault", "bool")
	assertFieldType(t, typ, "CreatedAt", "time.Time")
	assertFieldType(t, typ, "UpdatedAt", "time.Time")
}

func TestPipeline_Fields(t *testing.T) {
	typ := reflect.TypeOf(Pipeline{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Provider", "default:github")
	assertGormTag(t, typ, "OrgName", "index:idx_pipeline_repo")
	assertGormTag(t, typ, "ProjectName", "index:idx_pipeline_repo")
	assertGormTag(t, typ, "RefType", "size:16")

	// (org, project) uniqueness is enforced by the registry, not the schema.
	if strings.Contains(gormTag(t, typ, "OrgName"), "unique") {
		t.Error("Pipeline.OrgName must not carry a unique constraint")
	}

	assertFieldType(t, typ, "Ref", "string")
	assertFieldType(t, typ, "RefType", "string")
}

func TestRunConfig_Fields(t *testing.T) {
	typ := reflect.TypeOf(RunConfig{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "RunName", "uniqueIndex")
	assertGormTag(t, typ, "Organization", "index:idx_run_config_path")
	assertGormTag(t, typ, "PipelineName", "index:idx_run_config_path")
	assertGormTag(t, typ, "Parameters", "serializer:json")
	assertGormTag(t, typ, "PipelineID", "not null")
	assertGormTag(t, typ, "ConfigID", "index")

	assertFieldType(t, typ, "Parameters", "map[string]interface {}")
	assertFieldType(t, typ, "PipelineID", "uint")
	assertFieldType(t, typ, "ConfigID", "*uint")
}

func TestRunConfig_Relations(t *testing.T) {
	typ := reflect.TypeOf(RunConfig{})

	assertGormTag(t, typ, "Pipeline", "foreignKey:PipelineID")
	assertGormTag(t, typ, "Config", "foreignKey:ConfigID")

	assertFieldType(t, typ, "Pipeline", "models.Pipeline")
	assertFieldType(t, typ, "Config", "*models.Config")
}

func TestPipeline_FullName(t *testing.T) {
	p := Pipeline{OrgName: "nf-core", ProjectName: "demo"}
	if got := p.FullName(); got != "nf-core/demo" {
		t.Errorf("FullName() = %q, want nf-core/demo", got)
	}
}

func TestRunConfig_Instantiation(t *testing.T) {
	now := time.Now()
	cfgID := uint(3)
	rc := RunConfig{
		Organization:    "nf-core",
		PipelineName:    "demo",
		RunName:         "demo-run-1",
		Ref:             "master",
		RefType:         RefTypeBranch,
		NextflowVersion: "!>=24.04.2",
		Parameters:      map[string]any{"input": "samplesheet.csv", "outdir": "results"},
		PipelineID:      1,
		ConfigID:        &cfgID,
		CreatedAt:       now,
	}

	if rc.RunName != "demo-run-1" {
		t.Errorf("RunName = %q", rc.RunName)
	}
	if rc.Parameters["outdir"] != "results" {
		t.Errorf("Parameters[outdir] = %v", rc.Parameters["outdir"])
	}
	if rc.ConfigID == nil || *rc.ConfigID != 3 {
		t.Errorf("ConfigID = %v, want 3", rc.ConfigID)
	}
}
