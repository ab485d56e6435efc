// Package config loads the odds server configuration from environment
// variables. Every field has a default, so an empty environment yields a
// server listening on :8080 against a local Redis.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds tunable parameters for the odds server.
type Config struct {
	ListenAddr      string        `env:"LISTEN_ADDR"      envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES"   envDefault:"16384"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"       envDefault:"0"`

	// NATSURL enables lifecycle events when set.
	NATSURL  string `env:"NATS_URL"`
	NATSName string `env:"NATS_NAME" envDefault:"odds"`

	// Per client address, per RateWindow. Zero disables a rule.
	CreateRateLimit int           `env:"CREATE_RATE_LIMIT" envDefault:"20"`
	SubmitRateLimit int           `env:"SUBMIT_RATE_LIMIT" envDefault:"30"`
	RateWindow      time.Duration `env:"RATE_WINDOW"       envDefault:"1m"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("config: LISTEN_ADDR is empty")
	case c.RedisAddr == "":
		return fmt.Errorf("config: REDIS_ADDR is empty")
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("config: MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	case c.CreateRateLimit < 0 || c.SubmitRateLimit < 0:
		return fmt.Errorf("config: rate limits must not be negative")
	case c.RateWindow <= 0:
		return fmt.Errorf("config: RATE_WINDOW must be positive, got %s", c.RateWindow)
	}
	return nil
}
