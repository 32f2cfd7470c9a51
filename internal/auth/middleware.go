package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/models"
)

var middlewareTracer = otel.Tracer("auth-middleware")

// Gin context keys set by RequireAuth.
const (
	BridgeIDKey = "bridge_id"
	RolesKey    = "roles"
	ClaimsKey   = "claims"
)

// RequireAuth is a Gin middleware that validates bearer JWT tokens
func RequireAuth(jwtManager *JWTManager, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ctx, span := middlewareTracer.Start(c.Request.Context(), "auth.require_auth")
		defer span.End()

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			span.SetAttributes(attribute.Bool("auth.token_present", false))
			abort(c, http.StatusUnauthorized, "Missing or invalid authorization header", models.ErrCodeUnauthorized)
			return
		}
		span.SetAttributes(attribute.Bool("auth.token_present", true))

		claims, err := jwtManager.ValidateToken(ctx, token)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("auth.token_valid", false))
			logger.WarnContext(ctx, "invalid token", slog.Any("error", err))
			abort(c, http.StatusUnauthorized, "Invalid or expired token", models.ErrCodeUnauthorized)
			return
		}

		span.SetAttributes(
			attribute.Bool("auth.token_valid", true),
			attribute.String("bridge.id", claims.BridgeID),
		)

		c.Set(BridgeIDKey, claims.BridgeID)
		c.Set(RolesKey, claims.Roles)
		c.Set(ClaimsKey, claims)

		logger.DebugContext(ctx, "bridge authenticated",
			slog.String("bridge_id", claims.BridgeID),
			slog.String("path", c.Request.URL.Path),
			slog.String("method", c.Request.Method),
		)
		c.Next()
	}
}

// RequireRole is a Gin middleware that checks the authenticated token
// carries one of roles. It must run after RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := middlewareTracer.Start(c.Request.Context(), "auth.require_role")
		defer span.End()

		span.SetAttributes(attribute.StringSlice("required.roles", roles))

		value, exists := c.Get(ClaimsKey)
		claims, ok := value.(*Claims)
		if !exists || !ok {
			span.SetAttributes(attribute.Bool("auth.role_authorized", false))
			abort(c, http.StatusForbidden, "Roles not found", models.ErrCodeForbidden)
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				span.SetAttributes(attribute.Bool("auth.role_authorized", true))
				c.Next()
				return
			}
		}

		span.SetAttributes(attribute.Bool("auth.role_authorized", false))
		abort(c, http.StatusForbidden, "Insufficient permissions", models.ErrCodeForbidden)
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func abort(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Code: code})
}
