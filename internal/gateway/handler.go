package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/conversation"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/models"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/storage"
)

const maxUserIDLength = 128

// Conversations is the part of the flow service the gateway drives.
type Conversations interface {
	ProcessUserMessage(ctx context.Context, userID, message string, extracted specification.Specification) conversation.Outcome
	HandleReturningUser(ctx context.Context, userID string) conversation.Outcome
	Summary(ctx context.Context, userID string) (specification.Specification, specification.ValidationResult, error)
	Reset(ctx context.Context, userID string) error
}

// Pinger reports whether the conversation store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	flow   Conversations
	store  Pinger
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewHandler creates a new gateway handler
func NewHandler(flow Conversations, store Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		flow:   flow,
		store:  store,
		logger: logger,
		tracer: otel.Tracer("gateway-handler"),
		now:    time.Now,
	}
}

// PostMessage godoc
// @Summary Process a user message
// @Description Runs one conversation turn for the user and returns what the bot should say next.
// @Description Collaborator failures are reported as an ERROR outcome with status 200.
// @Tags conversations
// @Accept json
// @Produce json
// @Param user_id path string true "Messaging user ID, e.g. a WhatsApp number"
// @Param request body models.MessageRequest true "Inbound message"
// @Success 200 {object} conversation.Outcome
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/conversations/{user_id}/messages [post]
func (h *Handler) PostMessage(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.post_message")
	defer span.End()

	userID, ok := h.userID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		badRequest(c, "Invalid request body", map[string]string{"body": err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(c, "Message must not be blank", nil)
		return
	}

	out := h.flow.ProcessUserMessage(ctx, userID, req.Message, req.ExtractedFields)
	span.SetAttributes(attribute.String("outcome.type", string(out.Type)))
	c.JSON(http.StatusOK, out)
}

// Resume godoc
// @Summary Resume a conversation
// @Description Greets a returning user. Conversations idle past the expiration window are completed with defaults.
// @Tags conversations
// @Produce json
// @Param user_id path string true "Messaging user ID"
// @Success 200 {object} conversation.Outcome
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/conversations/{user_id}/resume [post]
func (h *Handler) Resume(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.resume")
	defer span.End()

	userID, ok := h.userID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	out := h.flow.HandleReturningUser(ctx, userID)
	span.SetAttributes(attribute.String("outcome.type", string(out.Type)))
	c.JSON(http.StatusOK, out)
}

// GetSpecification godoc
// @Summary Get the collected specification
// @Description Returns the stored window specification with its validation summary
// @Tags conversations
// @Produce json
// @Param user_id path string true "Messaging user ID"
// @Success 200 {object} models.SpecificationResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/conversations/{user_id}/specification [get]
func (h *Handler) GetSpecification(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.get_specification")
	defer span.End()

	userID, ok := h.userID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	spec, result, err := h.flow.Summary(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Conversation not found",
			Code:  models.ErrCodeNotFound,
		})
		return
	}
	if err != nil {
		span.RecordError(err)
		h.storeUnavailable(c, "failed to load specification", userID, err)
		return
	}

	c.JSON(http.StatusOK, models.NewSpecificationResponse(userID, spec, result))
}

// Reset godoc
// @Summary Reset a conversation
// @Description Forgets the collected specification and any open clarification
// @Tags conversations
// @Param user_id path string true "Messaging user ID"
// @Success 204 "No Content"
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/conversations/{user_id} [delete]
func (h *Handler) Reset(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.reset")
	defer span.End()

	userID, ok := h.userID(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	if err := h.flow.Reset(ctx, userID); err != nil {
		span.RecordError(err)
		h.storeUnavailable(c, "failed to reset conversation", userID, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Health godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "healthy", Timestamp: h.now().UTC()})
}

// Ready godoc
// @Summary Readiness probe
// @Description Reports ready once the conversation store answers a ping
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /ready [get]
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "readiness check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, models.HealthResponse{
			Status:    "not ready",
			Timestamp: h.now().UTC(),
			Checks:    map[string]string{"store": "unreachable"},
		})
		return
	}
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "ready",
		Timestamp: h.now().UTC(),
		Checks:    map[string]string{"store": "ok"},
	})
}

// userID reads and checks the :user_id path parameter, writing a 400 when
// it is unusable.
func (h *Handler) userID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("user_id"))
	switch {
	case id == "":
		badRequest(c, "user_id is required", nil)
		return "", false
	case len(id) > maxUserIDLength:
		badRequest(c, "user_id is too long", nil)
		return "", false
	}
	return id, true
}

func (h *Handler) storeUnavailable(c *gin.Context, msg, userID string, err error) {
	h.logger.ErrorContext(c.Request.Context(), msg,
		slog.String("user_id", userID),
		slog.Any("error", err),
	)
	_ = c.Error(err)
	c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
		Error: "Conversation store unavailable",
		Code:  models.ErrCodeStoreUnavailable,
	})
}

func badRequest(c *gin.Context, msg string, details map[string]string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   msg,
		Code:    models.ErrCodeInvalidRequest,
		Details: details,
	})
}
