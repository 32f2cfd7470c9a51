package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/auth"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/clarification"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/conversation"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/gateway"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/models"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/questions"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/tests/helpers"
)

func newFlow(t *testing.T, testDB *helpers.TestDatabase) *conversation.FlowService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	detector := ambiguity.NewDefaultDetector()
	clarifier := clarification.NewService(detector, testDB.Store, clarification.WithLogger(logger))
	gen, err := questions.NewGenerator()
	require.NoError(t, err)
	return conversation.NewFlowService(testDB.Store, clarifier, detector, gen, conversation.WithLogger(logger))
}

func TestConversationFlowIntegration(t *testing.T) {
	testDB := helpers.NewTestDatabase(t)
	flow := newFlow(t, testDB)
	ctx := context.Background()

	t.Run("standard window script", func(t *testing.T) {
		user := testDB.UserID("script")
		for _, turn := range helpers.StandardWindowScript() {
			out := flow.ProcessUserMessage(ctx, user, turn.Message, turn.Extracted)
			require.Equal(t, turn.Want, string(out.Type), "turn %q: %s", turn.Message, out.Message)
		}

		spec, result, err := flow.Summary(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, "casement", spec["operation"])
		assert.True(t, result.CanGenerateQuote)
	})

	t.Run("expired conversation is completed with defaults", func(t *testing.T) {
		user := testDB.UserID("expired")
		out := flow.ProcessUserMessage(ctx, user, "30 by 40 slider", helpers.CriticalSpecification())
		require.Equal(t, conversation.OutcomeOfferQuoteWithDefaults, out.Type)

		testDB.SetLastActivity(t, user, time.Now().Add(-conversation.DefaultExpiration-time.Hour))

		out = flow.HandleReturningUser(ctx, user)
		assert.Equal(t, conversation.OutcomeGenerateQuote, out.Type)
		assert.NotEmpty(t, out.DefaultedFields)
		assert.ElementsMatch(t, []string{"width", "height", "operation"}, out.SuppliedFields)
	})
}

func TestConversationAPIIntegration(t *testing.T) {
	testDB := helpers.NewTestDatabase(t)
	gin.SetMode(gin.TestMode)

	jwtManager, err := auth.NewJWTManager("integration-secret")
	require.NoError(t, err)
	token, err := jwtManager.GenerateToken(context.Background(), "whatsapp-bridge", []string{auth.RoleMessaging}, time.Hour)
	require.NoError(t, err)

	router := gateway.NewRouter(gateway.RouterConfig{
		Flow:       newFlow(t, testDB),
		Store:      testDB.Store,
		JWTManager: jwtManager,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	user := testDB.UserID("api")

	post := func(t *testing.T, path string, body any) *httptest.ResponseRecorder {
		t.Helper()
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("readiness pings postgres", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("message over HTTP", func(t *testing.T) {
		w := post(t, "/api/conversations/"+user+"/messages", models.MessageRequest{Message: "I want a standard window"})
		require.Equal(t, http.StatusOK, w.Code)

		var out struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		assert.Equal(t, string(conversation.OutcomeNeedsClarification), out.Type)
	})

	t.Run("answer over websocket", func(t *testing.T) {
		server := httptest.NewServer(router)
		defer server.Close()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/ws/conversations/"+user, header)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.WriteJSON(models.MessageRequest{Message: "awning"}))
		var out struct {
			Type      string `json:"type"`
			NextField string `json:"next_field"`
		}
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, string(conversation.OutcomeCollectInformation), out.Type)
		assert.Equal(t, "width", out.NextField)
	})

	t.Run("specification reflects both transports", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conversations/"+user+"/specification", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.SpecificationResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "awning", resp.Specification["operation"])
	})

	t.Run("reset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/conversations/"+user, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 0, testDB.ConversationCount(t))
	})
}
