package db

import (
	"fmt"

	"medconsult/internal/config"

	"gorm.io/driver/mysql"  // MySQL driver for GORM
	"gorm.io/driver/sqlite" // SQLite driver for local runs
	"gorm.io/gorm"          // GORM ORM library
	"gorm.io/gorm/logger"
)

// Open connects to the configured relational store
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true} // Unique violations surface as gorm.ErrDuplicatedKey
	if cfg.IsProd {
		gormCfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	switch cfg.DBDriver {
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, gormCfg)
	case "mysql", "":
		return gorm.Open(mysql.Open(cfg.DSN()), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// OpenSQLite opens a SQLite database. SQLite has no row locks, so the pool is
// limited to one connection and transactions are serialised instead.
func OpenSQLite(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{TranslateError: true}
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
