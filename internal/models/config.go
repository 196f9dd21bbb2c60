package models

import "time"

// Config is a named Nextflow configuration file stored under ROOT/configs.
// At most one row has IsDefault set.
type Config struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128;not null"`
	Filename  string `gorm:"size:255;not null;uniqueIndex"`
	IsDefault bool   `gorm:"default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
