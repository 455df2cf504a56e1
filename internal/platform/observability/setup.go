package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ShutdownFunc tears down observability state.
type ShutdownFunc func(context.Context) error

var (
	stateMu   sync.RWMutex
	obsLogger *slog.Logger
	obsConfig Config
)

func current() (*slog.Logger, Config) {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return obsLogger, obsConfig
}

// Setup installs the logger used for spans and metrics. When cfg.Enabled is
// false spans and metrics are still counted but never logged.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	stateMu.Lock()
	obsLogger = logger
	obsConfig = cfg
	stateMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBS] spans and metrics enabled")
		} else {
			logger.InfoContext(ctx, "[OBS] disabled")
		}
	}

	return func(context.Context) error {
		stateMu.Lock()
		obsLogger = nil
		obsConfig = Config{}
		stateMu.Unlock()
		return nil
	}, nil
}
