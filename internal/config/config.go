// Package config loads server settings from the environment, with .env
// support for local development.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the full server configuration.
type Config struct {
	Port       int    `envconfig:"PORT" default:"3001"`
	BackendURL string `envconfig:"BACKEND_URL" default:"http://localhost:3001"`
	WebappURL  string `envconfig:"WEBAPP_URL" default:"http://localhost:5173"`
	DBPath     string `envconfig:"DB_PATH" default:"./storage/plsfix.db"`
	Dev        bool   `envconfig:"DEV" default:"false"`

	FetchTimeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" default:"1h"`

	CreateRatePerHour int `envconfig:"CREATE_RATE_PER_HOUR" default:"100"`
	CreateRateBurst   int `envconfig:"CREATE_RATE_BURST" default:"10"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	// Missing .env just means production-style env vars.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
