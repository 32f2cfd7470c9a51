package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/app"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/auth"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/config"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := getenv
	getenv = func(key string) string { return values[key] }
	t.Cleanup(func() { getenv = prev })
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFieldsCmd(t *testing.T) {
	out, err := execute(t, "", "fields")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(specification.DefaultFields())+1)
	assert.Contains(t, lines[0], "PRIORITY")
	assert.Contains(t, out, "width")
	assert.Contains(t, out, "critical")
	assert.Contains(t, out, "hung,slider,casement,awning,fixed")
}

func TestTokenCmd(t *testing.T) {
	t.Run("issues a verifiable token", func(t *testing.T) {
		withEnv(t, map[string]string{"JWT_SECRET": "cli-secret"})
		out, err := execute(t, "", "token", "--bridge", "whatsapp-prod", "--role", "messaging,operator")
		require.NoError(t, err)

		jm, err := auth.NewJWTManager("cli-secret")
		require.NoError(t, err)
		claims, err := jm.ValidateToken(context.Background(), strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "whatsapp-prod", claims.BridgeID)
		assert.True(t, claims.HasRole(auth.RoleOperator))
	})

	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"missing bridge", map[string]string{"JWT_SECRET": "x"}, []string{"token"}},
		{"missing secret", map[string]string{}, []string{"token", "--bridge", "b"}},
		{"negative ttl", map[string]string{"JWT_SECRET": "x"}, []string{"token", "--bridge", "b", "--ttl", "-1h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)
			_, err := execute(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestTokenRefreshCmd(t *testing.T) {
	ctx := context.Background()
	current, err := auth.NewJWTManager("cli-secret")
	require.NoError(t, err)
	original, err := current.GenerateToken(ctx, "whatsapp-prod", []string{auth.RoleOperator}, time.Minute)
	require.NoError(t, err)

	t.Run("keeps identity", func(t *testing.T) {
		withEnv(t, map[string]string{"JWT_SECRET": "cli-secret"})
		out, err := execute(t, "", "token", "refresh", original, "--ttl", "48h")
		require.NoError(t, err)

		claims, err := current.ValidateToken(ctx, strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "whatsapp-prod", claims.BridgeID)
		assert.True(t, claims.HasRole(auth.RoleOperator))
		assert.WithinDuration(t, time.Now().Add(48*time.Hour), claims.ExpiresAt.Time, time.Minute)
	})

	t.Run("rotate signs with the next secret", func(t *testing.T) {
		withEnv(t, map[string]string{"JWT_SECRET": "cli-secret", "JWT_NEXT_SECRET": "next-secret"})
		out, err := execute(t, "", "token", "refresh", original, "--rotate")
		require.NoError(t, err)

		next, err := auth.NewJWTManager("next-secret")
		require.NoError(t, err)
		claims, err := next.ValidateToken(ctx, strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, "whatsapp-prod", claims.BridgeID)

		_, err = current.ValidateToken(ctx, strings.TrimSpace(out))
		assert.Error(t, err)
	})

	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"token signed elsewhere", map[string]string{"JWT_SECRET": "other"}, []string{"token", "refresh", original}},
		{"rotate without next secret", map[string]string{"JWT_SECRET": "cli-secret"}, []string{"token", "refresh", original, "--rotate"}},
		{"missing token", map[string]string{"JWT_SECRET": "cli-secret"}, []string{"token", "refresh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.env)
			_, err := execute(t, "", tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMigrateCmd(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		withEnv(t, map[string]string{})
		path := filepath.Join(t.TempDir(), "quotes.db")
		out, err := execute(t, "", "migrate", "--backend", "sqlite", "--sqlite-path", path)
		require.NoError(t, err)
		assert.Contains(t, out, "sqlite schema is up to date")
	})

	t.Run("postgres needs a url", func(t *testing.T) {
		withEnv(t, map[string]string{})
		_, err := execute(t, "", "migrate")
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("unknown backend", func(t *testing.T) {
		withEnv(t, map[string]string{})
		_, err := execute(t, "", "migrate", "--backend", "mongo")
		assert.Error(t, err)
	})
}

func TestChatCmd(t *testing.T) {
	withEnv(t, map[string]string{"STORE_BACKEND": "memory"})

	script := strings.Join([]string{
		"I want a standard window",
		"casement",
		"36 by 48 :: width=36 height=48",
		"/spec",
		"/reset",
		"/quit",
	}, "\n")
	out, err := execute(t, script, "chat", "--user", "tester")
	require.NoError(t, err)

	assert.Contains(t, out, "[NEEDS_CLARIFICATION")
	assert.Contains(t, out, "[COLLECT_INFORMATION")
	assert.Contains(t, out, "[OFFER_QUOTE_WITH_DEFAULTS")
	assert.Contains(t, out, "operation = casement")
	assert.Contains(t, out, "conversation cleared")
}

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		line    string
		message string
		fields  specification.Specification
	}{
		{"hello", "hello", nil},
		{"36 by 48 :: width=36 height=48.5", "36 by 48", specification.Specification{"width": 36, "height": 48.5}},
		{"no grilles :: has_grilles=false frame_color=white", "no grilles", specification.Specification{"has_grilles": false, "frame_color": "white"}},
		{":: quantity=2", "quantity=2", specification.Specification{"quantity": 2}},
		{"odd :: novalue =x", "odd", specification.Specification{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			message, fields := parseChatLine(tt.line)
			assert.Equal(t, tt.message, message)
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestSmokeCmd(t *testing.T) {
	cfg, err := config.FromEnv(func(key string) string {
		return map[string]string{"JWT_SECRET": "smoke-secret", "STORE_BACKEND": "memory"}[key]
	})
	require.NoError(t, err)
	a, err := app.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close()

	server := httptest.NewServer(a.Router())
	defer server.Close()

	t.Run("all checks pass", func(t *testing.T) {
		withEnv(t, map[string]string{"JWT_SECRET": "smoke-secret"})
		out, err := execute(t, "", "smoke", "--url", server.URL)
		require.NoError(t, err, out)
		assert.Equal(t, 6, strings.Count(out, "PASS"))
		assert.NotContains(t, out, "FAIL")
	})

	t.Run("wrong secret fails the authenticated checks", func(t *testing.T) {
		withEnv(t, map[string]string{"JWT_SECRET": "other-secret"})
		out, err := execute(t, "", "smoke", "--url", server.URL)
		require.Error(t, err)
		assert.Contains(t, out, "FAIL  message turn")
		assert.Contains(t, out, "PASS  liveness")
	})

	t.Run("needs a token source", func(t *testing.T) {
		withEnv(t, map[string]string{})
		_, err := execute(t, "", "smoke", "--url", server.URL)
		assert.ErrorContains(t, err, "JWT_SECRET")
	})
}
