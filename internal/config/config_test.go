package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "", cfg.StoreBackend)
	assert.Equal(t, 720*time.Hour, cfg.ConversationExpiration)
	assert.Equal(t, 1024, cfg.SpecCacheSize)
	assert.Equal(t, 3, cfg.StoreMaxRetries)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.Swagger)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"JWT_SECRET":              "s3cret",
		"PORT":                    ":9090",
		"STORE_BACKEND":           "Postgres",
		"DATABASE_URL":            "postgres://localhost/quotes",
		"CONVERSATION_EXPIRATION": "48h",
		"SPEC_CACHE_SIZE":         "-1",
		"STORE_MAX_RETRIES":       "5",
		"VOCABULARY_FILE":         " vocab.yaml ",
		"LOG_LEVEL":               "debug",
		"SWAGGER_ENABLED":         "false",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 48*time.Hour, cfg.ConversationExpiration)
	assert.Equal(t, -1, cfg.SpecCacheSize)
	assert.Equal(t, 5, cfg.StoreMaxRetries)
	assert.Equal(t, "vocab.yaml", cfg.VocabularyFile)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.False(t, cfg.Swagger)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"unknown backend", map[string]string{"JWT_SECRET": "x", "STORE_BACKEND": "redis"}, "STORE_BACKEND"},
		{"postgres without url", map[string]string{"JWT_SECRET": "x", "STORE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"bad duration", map[string]string{"JWT_SECRET": "x", "CONVERSATION_EXPIRATION": "a month"}, "CONVERSATION_EXPIRATION"},
		{"negative duration", map[string]string{"JWT_SECRET": "x", "CONVERSATION_EXPIRATION": "-1h"}, "CONVERSATION_EXPIRATION"},
		{"bad cache size", map[string]string{"JWT_SECRET": "x", "SPEC_CACHE_SIZE": "lots"}, "SPEC_CACHE_SIZE"},
		{"bad log level", map[string]string{"JWT_SECRET": "x", "LOG_LEVEL": "chatty"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.values))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/quotes.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "/tmp/quotes.db", cfg.SQLitePath)
}
