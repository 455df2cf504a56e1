package config

import (
	"time"

	"fro-server/internal/platform/observability"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "fro.log",
		},
		Web: WebConfig{
			Enabled:        true,
			StaticDir:      "web",
			AllowedOrigins: []string{"*"},
		},
		Vision: VisionConfig{
			Type:        "gemini",
			ModelName:   "gemini-2.0-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai",
			Temperature: 0.2,
			MaxTokens:   1024,
		},
		Analysis: AnalysisConfig{
			CallTimeout: 45 * time.Second,
		},
		Image: ImageConfig{
			MaxFileSize:    10 * 1024 * 1024,
			MaxPixels:      40_000_000,
			MaxWidth:       8192,
			MaxHeight:      8192,
			AllowedFormats: []string{"jpeg", "png", "gif", "webp"},
			EnableDeepScan: true,
			JPEGQuality:    90,
		},
		Camera: CameraConfig{
			Platform:       "bridge",
			RequestTimeout: 10 * time.Second,
			FixtureDir:     "data/cameras",
		},
		Workspace: WorkspaceConfig{
			IdleTimeout:  30 * time.Minute,
			ReapInterval: time.Minute,
		},
		Preferences: PreferencesConfig{
			Type: "sqlite",
			Redis: PreferencesRedisStore{
				Addr:   "127.0.0.1:6379",
				Prefix: "fro:prefs:",
			},
			SQLite: PreferencesSQLiteStore{
				DSN: "data/fro.db",
			},
		},
		Observability: observability.Config{Enabled: false},
	}
}
