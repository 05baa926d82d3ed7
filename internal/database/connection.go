package database

import (
	"fmt"
	"log/slog"

	"github.com/thereayou/groupchat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured store and migrates the schema.
func Open(driver, dsn string) (*Database, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	d := NewDatabase(db)
	if err := d.Migrate(); err != nil {
		return nil, err
	}

	slog.Info("database ready", "driver", driver)
	return d, nil
}

func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(&models.User{}, &models.Group{}, &models.Channel{}, &models.Message{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
