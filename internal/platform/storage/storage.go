package storage

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fro-server/internal/platform/errors"
	"fro-server/internal/platform/storage/migrations"
)

// ClientPreference is the persisted per-client preference row.
type ClientPreference struct {
	ID           uint           `gorm:"primaryKey"`
	ClientID     string         `gorm:"uniqueIndex;not null"`
	TutorialSeen bool           `gorm:"not null;default:false"`
	Metadata     datatypes.JSON `gorm:"type:json"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (ClientPreference) TableName() string {
	return "client_preferences"
}

// Migrations returns every schema migration this service knows about.
func Migrations() []Migration {
	return []Migration{
		&migrations.Migration001ClientPreferences{},
	}
}

// Open opens the sqlite database at dsn and applies pending migrations.
// File-backed DSNs get their parent directory created.
func Open(dsn string) (*gorm.DB, error) {
	const op = "storage.Open"

	if dsn == "" {
		return nil, errors.New(errors.KindStorage, op, "sqlite dsn is empty")
	}
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, ":memory:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, op, "create data directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "open database", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(Migrations()...)
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying sql.DB.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.Close", "get sql db", err)
	}
	return sqlDB.Close()
}
