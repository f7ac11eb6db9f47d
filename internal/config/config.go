// Package config loads agent configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all agent configuration loaded from environment variables.
type Config struct {
	Server Server
	Store  Store
	Remote Remote
	Sync   Sync
	Log    Log
}

// Server holds the localhost HTTP surface settings for the driver UI.
type Server struct {
	Host            string        `envconfig:"FIELDSYNC_HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"FIELDSYNC_PORT" default:"8790"`
	ReadTimeout     time.Duration `envconfig:"FIELDSYNC_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"FIELDSYNC_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"FIELDSYNC_SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"FIELDSYNC_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// Store holds local persistence settings.
type Store struct {
	DataDir string `envconfig:"FIELDSYNC_DATA_DIR" default:"./data"`
}

// Remote holds back-office API settings. BaseURL here is a bootstrap
// default; the effective endpoint and token live encrypted in the store.
type Remote struct {
	BaseURL        string        `envconfig:"FIELDSYNC_REMOTE_URL" default:""`
	RequestTimeout time.Duration `envconfig:"FIELDSYNC_REMOTE_TIMEOUT" default:"30s"`
}

// Sync holds scheduler intervals and notifier behaviour.
type Sync struct {
	Interval       time.Duration `envconfig:"FIELDSYNC_SYNC_INTERVAL" default:"15m"`
	BadgeInterval  time.Duration `envconfig:"FIELDSYNC_BADGE_INTERVAL" default:"5s"`
	IdleResetDelay time.Duration `envconfig:"FIELDSYNC_IDLE_RESET_DELAY" default:"2s"`
}

// Log holds logging settings.
type Log struct {
	Level string `envconfig:"FIELDSYNC_LOG_LEVEL" default:"info"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	return &cfg, nil
}

// MustLoad reads configuration and panics on failure. Intended for main.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ListenAddr returns the host:port pair for the HTTP listener.
func (s Server) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
