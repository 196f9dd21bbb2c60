package db

import (
	"fmt"

	"github.com/zulandar/liteflow/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Config{},
		&models.Pipeline{},
		&models.RunConfig{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Open connects and migrates in one step, the usual startup sequence.
func Open(driver, dsn string) (*gorm.DB, error) {
	db, err := Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		Close(db)
		return nil, err
	}
	return db, nil
}
