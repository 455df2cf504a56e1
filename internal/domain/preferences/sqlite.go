package preferences

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fro-server/internal/platform/errors"
	"fro-server/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a store on an already migrated database.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, errors.New(errors.KindConfig, "preferences.NewSQLite", "database handle is nil")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, clientID string) (Preference, error) {
	var row storage.ClientPreference
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return Preference{}, ErrNotFound
	}
	if err != nil {
		return Preference{}, err
	}

	pref := Preference{
		ClientID:     row.ClientID,
		TutorialSeen: row.TutorialSeen,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.Metadata) > 0 {
		if err := sonic.Unmarshal(row.Metadata, &pref.Metadata); err != nil {
			return Preference{}, err
		}
	}
	return pref, nil
}

func (s *sqliteStore) Save(ctx context.Context, pref Preference) error {
	if pref.ClientID == "" {
		return errors.New(errors.KindStorage, "preferences.sqlite.Save", "client id required")
	}
	var meta []byte
	if len(pref.Metadata) > 0 {
		var err error
		if meta, err = sonic.Marshal(pref.Metadata); err != nil {
			return err
		}
	}
	now := time.Now()
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = now
	}

	row := storage.ClientPreference{
		ClientID:     pref.ClientID,
		TutorialSeen: pref.TutorialSeen,
		Metadata:     meta,
		CreatedAt:    now,
		UpdatedAt:    pref.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tutorial_seen", "metadata", "updated_at"}),
	}).Create(&row).Error
}

func (s *sqliteStore) Remove(ctx context.Context, clientID string) error {
	return s.db.WithContext(ctx).Where("client_id = ?", clientID).Delete(&storage.ClientPreference{}).Error
}

func (s *sqliteStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&storage.ClientPreference{}).Order("client_id").Pluck("client_id", &ids).Error
	return ids, err
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, seen int64
	db := s.db.WithContext(ctx).Model(&storage.ClientPreference{})
	if err := db.Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&storage.ClientPreference{}).Where("tutorial_seen = ?", true).Count(&seen).Error; err != nil {
		return nil, err
	}
	return map[string]any{"type": DriverSQLite, "total": total, "tutorial_seen": seen}, nil
}

// Close leaves the shared database handle open; its owner closes it.
func (s *sqliteStore) Close(context.Context) error { return nil }
