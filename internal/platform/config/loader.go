package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	platformerrors "fro-server/internal/platform/errors"
)

// DefaultPath is where the loader looks when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes environment overrides, e.g. FRO_SERVER_PORT.
const EnvPrefix = "FRO"

// Loader reads configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (last wins).
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader for the default config path with .env support.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true, path: DefaultPath}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the config file location.
func (l *Loader) WithPath(path string) *Loader {
	if strings.TrimSpace(path) != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and the file it came from.
// Path is empty when no file was found and only defaults/env applied.
type Result struct {
	Config *Config
	Path   string
}

// Load merges defaults, the YAML file and environment overrides and validates
// the outcome.
func (l *Loader) Load() (*Result, error) {
	const op = "config.Loader.Load"

	if l.useDotEnv {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, op, "encode defaults", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, op, "read defaults", err)
	}

	usedPath := ""
	if f, err := os.Open(l.path); err == nil {
		mergeErr := v.MergeConfig(f)
		f.Close()
		if mergeErr != nil {
			return nil, platformerrors.Wrap(platformerrors.KindConfig, op, "parse "+l.path, mergeErr)
		}
		usedPath = l.path
	} else if !os.IsNotExist(err) {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, op, "open "+l.path, err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("vision.api_key", EnvPrefix+"_VISION_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, op, "bind api key env", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, op, "decode config", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: usedPath}, nil
}

// Validate checks the values the server cannot start without.
func Validate(cfg *Config) error {
	const op = "config.Validate"
	if cfg == nil {
		return platformerrors.New(platformerrors.KindConfig, op, "config is nil")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return platformerrors.New(platformerrors.KindConfig, op, fmt.Sprintf("invalid server port %d", cfg.Server.Port))
	}
	switch strings.ToLower(cfg.Vision.Type) {
	case "gemini", "openai", "ollama":
	default:
		return platformerrors.New(platformerrors.KindConfig, op, "unsupported vision type "+cfg.Vision.Type)
	}
	if strings.TrimSpace(cfg.Vision.ModelName) == "" {
		return platformerrors.New(platformerrors.KindConfig, op, "vision.model_name is required")
	}
	if cfg.Analysis.CallTimeout <= 0 {
		return platformerrors.New(platformerrors.KindConfig, op, "analysis.call_timeout must be positive")
	}
	switch strings.ToLower(cfg.Camera.Platform) {
	case "bridge", "fixture":
	default:
		return platformerrors.New(platformerrors.KindConfig, op, "unsupported camera platform "+cfg.Camera.Platform)
	}
	switch strings.ToLower(cfg.Preferences.Type) {
	case "memory", "sqlite", "redis":
	default:
		return platformerrors.New(platformerrors.KindConfig, op, "unsupported preferences store "+cfg.Preferences.Type)
	}
	if cfg.Image.JPEGQuality < 1 || cfg.Image.JPEGQuality > 100 {
		return platformerrors.New(platformerrors.KindConfig, op, "image.jpeg_quality must be in 1..100")
	}
	return nil
}

// WriteDefault seeds path with the default configuration unless it exists.
func WriteDefault(path string) error {
	const op = "config.WriteDefault"
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, op, "encode defaults", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return platformerrors.Wrap(platformerrors.KindConfig, op, "create config dir", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, op, "write "+path, err)
	}
	return nil
}
