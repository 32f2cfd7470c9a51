// Package config loads service settings from the environment, reading a
// local .env file first when one exists.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the resolved service configuration.
type Config struct {
	Port     string
	LogLevel slog.Level
	Swagger  bool

	StoreBackend    string
	DatabaseURL     string
	SQLitePath      string
	SpecCacheSize   int
	StoreMaxRetries int

	JWTSecret              string
	ConversationExpiration time.Duration
	VocabularyFile         string
}

const (
	defaultPort       = "8080"
	defaultExpiration = 720 * time.Hour
	defaultCacheSize  = 1024
	defaultRetries    = 3
)

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. A missing JWT_SECRET is an error.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := &Config{
		Port:           strings.TrimPrefix(firstNonEmpty(get("PORT"), defaultPort), ":"),
		Swagger:        true,
		StoreBackend:   strings.ToLower(get("STORE_BACKEND")),
		DatabaseURL:    get("DATABASE_URL"),
		SQLitePath:     get("SQLITE_PATH"),
		JWTSecret:      get("JWT_SECRET"),
		VocabularyFile: get("VOCABULARY_FILE"),
	}

	var errs []error
	var err error

	switch cfg.StoreBackend {
	case "", "memory", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.StoreBackend))
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if cfg.ConversationExpiration, err = duration(get("CONVERSATION_EXPIRATION"), defaultExpiration); err != nil {
		errs = append(errs, fmt.Errorf("CONVERSATION_EXPIRATION: %w", err))
	}
	if cfg.SpecCacheSize, err = integer(get("SPEC_CACHE_SIZE"), defaultCacheSize); err != nil {
		errs = append(errs, fmt.Errorf("SPEC_CACHE_SIZE: %w", err))
	}
	if cfg.StoreMaxRetries, err = integer(get("STORE_MAX_RETRIES"), defaultRetries); err != nil {
		errs = append(errs, fmt.Errorf("STORE_MAX_RETRIES: %w", err))
	}
	if raw := get("SWAGGER_ENABLED"); raw != "" {
		if cfg.Swagger, err = strconv.ParseBool(raw); err != nil {
			errs = append(errs, fmt.Errorf("SWAGGER_ENABLED: %w", err))
		}
	}
	if raw := get("LOG_LEVEL"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func duration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func integer(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
