// Package config holds the application configuration for the engine's outer
// surfaces. Values layer in precedence order: struct defaults, then
// MESHFLOW_-prefixed environment variables, then explicit overrides such as
// CLI flags. Library packages never read this package directly; they receive
// the values they need through their constructors.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"  validate:"required"`
	Runtime RuntimeConfig `koanf:"runtime" validate:"required"`
	Events  EventsConfig  `koanf:"events"`
	Gateway GatewayConfig `koanf:"gateway"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSEnabled     bool          `koanf:"cors_enabled"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig configures cross-origin access when CORSEnabled is set.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins" env:"SERVER_CORS_ALLOWED_ORIGINS"`
	MaxAge         int      `koanf:"max_age"         env:"SERVER_CORS_MAX_AGE"`
}

// RuntimeConfig configures workflow execution behavior.
type RuntimeConfig struct {
	Mode         string `koanf:"mode"          validate:"oneof=live dry-run"`
	MaxNodes     int    `koanf:"max_nodes"     validate:"min=1"`
	HistoryLimit int    `koanf:"history_limit" validate:"min=1"`
	SampleSeed   int64  `koanf:"sample_seed"`
}

// EventsConfig selects and configures the lifecycle event emitter.
type EventsConfig struct {
	Emitter        string `koanf:"emitter" validate:"oneof=noop memory redis"`
	RedisURL       string `koanf:"redis_url"`
	RedisMaxEvents int64  `koanf:"redis_max_events"`
}

// GatewayConfig configures the local tool gateway.
type GatewayConfig struct {
	// ArtifactDir stores artifacts on disk; empty keeps them in memory.
	ArtifactDir string        `koanf:"artifact_dir"`
	HTTPTimeout time.Duration `koanf:"http_timeout"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

// Default returns the development defaults Load layers everything else on.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8420,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSEnabled:     true,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				MaxAge:         300,
			},
		},
		Runtime: RuntimeConfig{
			Mode:         "live",
			MaxNodes:     10000,
			HistoryLimit: 100,
		},
		Events: EventsConfig{
			Emitter:        "noop",
			RedisMaxEvents: 500,
		},
		Gateway: GatewayConfig{
			HTTPTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
