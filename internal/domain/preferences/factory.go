package preferences

import (
	"gorm.io/gorm"

	"fro-server/internal/platform/errors"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Dependencies carries handles some drivers need.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New builds the store named by cfg.Driver, defaulting to memory.
func New(cfg Config, deps Dependencies) (Store, error) {
	const op = "preferences.New"

	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, errors.New(errors.KindConfig, op, "sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB)
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, errors.New(errors.KindConfig, op, "unsupported preferences driver: "+cfg.Driver)
	}
}
