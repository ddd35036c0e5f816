// Package config loads server configuration in three layers: built-in
// defaults, an optional YAML file, then environment variables on top.
// Later layers win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the gremlin server needs to start.
type Config struct {
	Addr     string `yaml:"addr" env:"GREMLIN_ADDR"`
	BasePath string `yaml:"base_path" env:"GREMLIN_BASE_PATH"`

	// DatabaseURL selects the Postgres adapter when set; the server
	// falls back to the in-memory adapter otherwise.
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	// JWTSecret enables the JWT session provider. Without it every
	// request is anonymous.
	JWTSecret string `yaml:"jwt_secret" env:"GREMLIN_JWT_SECRET"`

	LogLevel string `yaml:"log_level" env:"GREMLIN_LOG_LEVEL"`

	// AllowedOrigins is comma separated in the environment.
	AllowedOrigins []string `yaml:"allowed_origins" env:"GREMLIN_ALLOWED_ORIGINS"`

	RateLimitPerSecond int `yaml:"rate_limit_per_second" env:"GREMLIN_RATE_LIMIT"`
	RateLimitBurst     int `yaml:"rate_limit_burst" env:"GREMLIN_RATE_LIMIT_BURST"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"GREMLIN_SHUTDOWN_TIMEOUT"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:               ":8080",
		BasePath:           "/api/gremlin",
		LogLevel:           "info",
		RateLimitPerSecond: 100,
		RateLimitBurst:     200,
		ShutdownTimeout:    10 * time.Second,
	}
}

// Load reads .env if present, then the optional YAML file named by
// GREMLIN_CONFIG_FILE, then the environment on top of both.
func Load() (*Config, error) {
	_ = godotenv.Load() // allow .env for local runs

	cfg := Default()
	if path := os.Getenv("GREMLIN_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	// Every env tag is optional, so an empty environment is fine.
	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFromFile parses a YAML config file over the defaults, without
// consulting the environment.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	// A single comma separated element comes from the environment.
	if len(c.AllowedOrigins) == 1 && strings.Contains(c.AllowedOrigins[0], ",") {
		parts := strings.Split(c.AllowedOrigins[0], ",")
		c.AllowedOrigins = c.AllowedOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, p)
			}
		}
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
}

// UsePostgres reports whether a database connection is configured.
func (c *Config) UsePostgres() bool { return c.DatabaseURL != "" }
