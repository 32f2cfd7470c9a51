package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/models"
)

const (
	maxFrameBytes = 64 << 10
	idleTimeout   = 30 * time.Minute
	writeTimeout  = 10 * time.Second
)

// ConversationStream serves a conversation over a websocket: every inbound
// text frame is a MessageRequest and every outbound frame is the Outcome of
// that turn.
type ConversationStream struct {
	flow     Conversations
	logger   *slog.Logger
	tracer   trace.Tracer
	upgrader websocket.Upgrader
}

// NewConversationStream creates a websocket endpoint backed by flow
func NewConversationStream(flow Conversations, logger *slog.Logger) *ConversationStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStream{
		flow:   flow,
		logger: logger,
		tracer: otel.Tracer("conversation-websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			// Bridges connect server to server and send no Origin header.
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || strings.HasSuffix(origin, "://"+r.Host)
			},
		},
	}
}

// Stream handles WebSocket /api/ws/conversations/:user_id
// @Summary Stream a conversation
// @Description WebSocket endpoint. Each inbound JSON frame is a message request, each outbound frame an outcome.
// @Description Pass resume=true to receive the returning-user greeting as the first frame.
// @Tags conversations
// @Param user_id path string true "Messaging user ID"
// @Param resume query bool false "Send the returning-user greeting first"
// @Success 101 "Switching Protocols"
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/ws/conversations/{user_id} [get]
func (s *ConversationStream) Stream(c *gin.Context) {
	ctx, span := s.tracer.Start(c.Request.Context(), "websocket.stream_conversation")
	defer span.End()

	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" || len(userID) > maxUserIDLength {
		badRequest(c, "invalid user_id", nil)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	s.logger.InfoContext(ctx, "websocket connected", slog.String("user_id", userID))

	if c.Query("resume") == "true" {
		if err := s.write(conn, s.flow.HandleReturningUser(ctx, userID)); err != nil {
			span.RecordError(err)
			return
		}
	}

	turns := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				span.RecordError(err)
				s.logger.WarnContext(ctx, "websocket closed unexpectedly",
					slog.String("user_id", userID),
					slog.Any("error", err),
				)
			}
			break
		}
		if kind != websocket.TextMessage {
			continue
		}

		var req models.MessageRequest
		if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Message) == "" {
			if err := s.write(conn, models.ErrorResponse{
				Error: "Frame must be a JSON message request",
				Code:  models.ErrCodeInvalidRequest,
			}); err != nil {
				break
			}
			continue
		}

		turns++
		if err := s.write(conn, s.flow.ProcessUserMessage(ctx, userID, req.Message, req.ExtractedFields)); err != nil {
			span.RecordError(err)
			break
		}
	}

	span.SetAttributes(attribute.Int("websocket.turns", turns))
	s.logger.InfoContext(ctx, "websocket disconnected",
		slog.String("user_id", userID),
		slog.Int("turns", turns),
	)
}

func (s *ConversationStream) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}
