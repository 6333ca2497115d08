// Package config loads the arena's settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every ARENA_* setting.
type Config struct {
	Addr   string `env:"ARENA_ADDR" envDefault:"127.0.0.1:8080"`
	DBPath string `env:"ARENA_DB_PATH" envDefault:"arena.db"`

	LogLevel string `env:"ARENA_LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"ARENA_LOG_JSON" envDefault:"false"`

	// ScriptTimeout bounds each call into a script.
	ScriptTimeout time.Duration `env:"ARENA_SCRIPT_TIMEOUT" envDefault:"1s"`
	// MaxTurns fails runs that go on longer. Zero disables the limit.
	MaxTurns int `env:"ARENA_MAX_TURNS" envDefault:"10000"`
	// Parallelism bounds concurrent tournament runs. Zero uses GOMAXPROCS.
	Parallelism int `env:"ARENA_PARALLELISM" envDefault:"0"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the given .env files (".env" when none are named; missing
// files are skipped) and then the environment, which wins.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no run could use.
func (c Config) Validate() error {
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("config: ARENA_SCRIPT_TIMEOUT must be positive, got %s", c.ScriptTimeout)
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("config: ARENA_MAX_TURNS must not be negative, got %d", c.MaxTurns)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("config: ARENA_PARALLELISM must not be negative, got %d", c.Parallelism)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
