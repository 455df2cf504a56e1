package migrations

import (
	"gorm.io/gorm"
)

// Migration001ClientPreferences creates the per-client preferences table.
type Migration001ClientPreferences struct{}

func (m *Migration001ClientPreferences) Version() string {
	return "001_client_preferences"
}

func (m *Migration001ClientPreferences) Description() string {
	return "Create client_preferences table"
}

func (m *Migration001ClientPreferences) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS client_preferences (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_id VARCHAR(255) NOT NULL UNIQUE,
			tutorial_seen BOOLEAN NOT NULL DEFAULT 0,
			metadata JSON,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_client_preferences_updated_at ON client_preferences(updated_at)`).Error
}

func (m *Migration001ClientPreferences) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS client_preferences`).Error
}
