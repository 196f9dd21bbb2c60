package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Dialector returns the gorm dialector for a driver name and DSN. For sqlite
// the DSN is the database file path.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite, "":
		return sqlite.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
}

// Connect opens a GORM connection using the named driver.
func Connect(driver, dsn string) (*gorm.DB, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect (%s): %w", driver, err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("db: close: %w", err)
	}
	return sqlDB.Close()
}
