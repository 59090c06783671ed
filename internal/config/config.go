package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	Port            string        `env:"PORT" envDefault:"8080"`
	DBPath          string        `env:"DB_PATH" envDefault:"./dev.db"`
	AdminEmail      string        `env:"ADMIN_EMAIL"`
	AdminPassword   string        `env:"ADMIN_PASSWORD"`
	SessionSecret   string        `env:"SESSION_SECRET"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT"`
	LogOutput       string        `env:"LOG_OUTPUT" envDefault:"stdout"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	SettingsTTL     time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env (best effort) and the process environment.
func Load() (Config, error) {
	// Existing environment variables win over the file; a missing file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if !cfg.IsDev() {
			cfg.LogFormat = "json"
		}
	}
	return cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c Config) IsDev() bool {
	return c.Env == "" || c.Env == "development"
}

// Warnings lists settings that are missing but not fatal.
func (c Config) Warnings() []string {
	var out []string
	if c.AdminEmail == "" {
		out = append(out, "ADMIN_EMAIL is not set")
	}
	if c.AdminPassword == "" {
		out = append(out, "ADMIN_PASSWORD is not set")
	}
	if c.SessionSecret == "" {
		out = append(out, "SESSION_SECRET is not set")
	}
	return out
}
