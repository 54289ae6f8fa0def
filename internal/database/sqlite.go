// Package database opens the SQLite store and keeps its schema current.
package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/idcards/internal/attendance"
	"github.com/MarcoPoloResearchLab/idcards/internal/datasets"
	"github.com/MarcoPoloResearchLab/idcards/internal/photos"
	"github.com/MarcoPoloResearchLab/idcards/internal/templates"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&templates.StoredTemplate{},
		&datasets.StoredDataset{},
		&attendance.StoredEvent{},
		&photos.StoredPhoto{},
		&users.Account{},
		&migrationRecord{},
	}
}

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
