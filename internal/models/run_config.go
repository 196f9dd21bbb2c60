package models

import "time"

// RunConfig is the immutable record of a submitted run: the pipeline revision,
// an optional Nextflow config and the parameter payload.
type RunConfig struct {
	ID              uint           `gorm:"primaryKey;autoIncrement"`
	Organization    string         `gorm:"size:128;not null;index:idx_run_config_path"`
	PipelineName    string         `gorm:"size:128;not null;index:idx_run_config_path"`
	RunName         string         `gorm:"size:255;not null;uniqueIndex"`
	Ref             string         `gorm:"size:255"`
	RefType         string         `gorm:"size:16"`
	NextflowVersion string         `gorm:"size:32"`
	Parameters      map[string]any `gorm:"type:text;serializer:json"`
	PipelineID      uint           `gorm:"not null;index"`
	ConfigID        *uint          `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Pipeline Pipeline `gorm:"foreignKey:PipelineID"`
	Config   *Config  `gorm:"foreignKey:ConfigID"`
}
