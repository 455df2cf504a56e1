package config

import (
	"time"

	"fro-server/internal/platform/observability"
)

// Config is the root configuration for fro-server.
type Config struct {
	Server        ServerConfig         `yaml:"server" mapstructure:"server"`
	Log           LogConfig            `yaml:"log" mapstructure:"log"`
	Web           WebConfig            `yaml:"web" mapstructure:"web"`
	Vision        VisionConfig         `yaml:"vision" mapstructure:"vision"`
	Analysis      AnalysisConfig       `yaml:"analysis" mapstructure:"analysis"`
	Image         ImageConfig          `yaml:"image" mapstructure:"image"`
	Camera        CameraConfig         `yaml:"camera" mapstructure:"camera"`
	Workspace     WorkspaceConfig      `yaml:"workspace" mapstructure:"workspace"`
	Preferences   PreferencesConfig    `yaml:"preferences" mapstructure:"preferences"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip" mapstructure:"ip"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

type WebConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	StaticDir      string   `yaml:"static_dir" mapstructure:"static_dir"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// VisionConfig selects the OpenAI-compatible endpoint used for plant analysis.
// Type is one of gemini, openai or ollama.
type VisionConfig struct {
	Type        string  `yaml:"type" mapstructure:"type"`
	ModelName   string  `yaml:"model_name" mapstructure:"model_name"`
	BaseURL     string  `yaml:"url" mapstructure:"url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

type AnalysisConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	CareGuide   bool          `yaml:"care_guide" mapstructure:"care_guide"`
}

// ImageConfig bounds what the image pipeline accepts.
type ImageConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxPixels      int64    `yaml:"max_pixels" mapstructure:"max_pixels"`
	MaxWidth       int      `yaml:"max_width" mapstructure:"max_width"`
	MaxHeight      int      `yaml:"max_height" mapstructure:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
	EnableDeepScan bool     `yaml:"enable_deep_scan" mapstructure:"enable_deep_scan"`
	JPEGQuality    int      `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// CameraConfig picks the capture platform binding: bridge or fixture.
type CameraConfig struct {
	Platform       string        `yaml:"platform" mapstructure:"platform"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	FixtureDir     string        `yaml:"fixture_dir" mapstructure:"fixture_dir"`
}

type WorkspaceConfig struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ReapInterval time.Duration `yaml:"reap_interval" mapstructure:"reap_interval"`
}

type PreferencesConfig struct {
	Type   string                 `yaml:"type" mapstructure:"type"`
	Redis  PreferencesRedisStore  `yaml:"redis" mapstructure:"redis"`
	SQLite PreferencesSQLiteStore `yaml:"sqlite" mapstructure:"sqlite"`
}

type PreferencesRedisStore struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type PreferencesSQLiteStore struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}
