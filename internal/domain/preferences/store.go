// Package preferences persists the small amount of per-client state Frô
// keeps between visits, chiefly whether the tutorial was already shown.
package preferences

import (
	"context"
	stderrors "errors"
	"time"

	"fro-server/internal/platform/errors"
)

// ErrNotFound is returned by Get when the client has no stored preference.
var ErrNotFound = stderrors.New("preferences: not found")

// Preference is the stored record for one client.
type Preference struct {
	ClientID     string         `json:"clientId"`
	TutorialSeen bool           `json:"tutorialSeen"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Store is implemented by every preferences driver.
type Store interface {
	Get(ctx context.Context, clientID string) (Preference, error)
	Save(ctx context.Context, pref Preference) error
	Remove(ctx context.Context, clientID string) error
	List(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config selects and configures the driver.
type Config struct {
	Driver string
	Redis  *RedisConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// TutorialSeen reports the flag for clientID; unknown clients have not seen it.
func TutorialSeen(ctx context.Context, s Store, clientID string) (bool, error) {
	pref, err := s.Get(ctx, clientID)
	if stderrors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.KindStorage, "preferences.TutorialSeen", "read preference", err)
	}
	return pref.TutorialSeen, nil
}

// SetTutorialSeen updates the flag, keeping any other stored fields.
func SetTutorialSeen(ctx context.Context, s Store, clientID string, seen bool) error {
	const op = "preferences.SetTutorialSeen"
	if clientID == "" {
		return errors.New(errors.KindStorage, op, "client id required")
	}

	pref, err := s.Get(ctx, clientID)
	switch {
	case stderrors.Is(err, ErrNotFound):
		pref = Preference{ClientID: clientID}
	case err != nil:
		return errors.Wrap(errors.KindStorage, op, "read preference", err)
	}
	pref.TutorialSeen = seen
	pref.UpdatedAt = time.Now()
	if err := s.Save(ctx, pref); err != nil {
		return errors.Wrap(errors.KindStorage, op, "save preference", err)
	}
	return nil
}
