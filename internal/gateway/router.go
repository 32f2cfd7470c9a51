package gateway

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/auth"
)

// RouterConfig holds what NewRouter wires together.
type RouterConfig struct {
	Flow       Conversations
	Store      Pinger
	JWTManager *auth.JWTManager
	Logger     *slog.Logger
	// Swagger mounts /swagger/*any when set.
	Swagger bool
}

// NewRouter builds the gin engine serving the conversation API
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := NewHandler(cfg.Flow, cfg.Store, logger)
	stream := NewConversationStream(cfg.Flow, logger)

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Probes stay at the root for the platform health checks.
	router.GET("/health", handler.Health)
	router.GET("/ready", handler.Ready)

	if cfg.Swagger {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group("/api")
	api.Use(auth.RequireAuth(cfg.JWTManager, logger))

	// Turns come from messaging bridges only.
	turns := api.Group("", auth.RequireRole(auth.RoleMessaging))
	turns.POST("/conversations/:user_id/messages", handler.PostMessage)
	turns.POST("/conversations/:user_id/resume", handler.Resume)
	turns.GET("/ws/conversations/:user_id", stream.Stream)

	maintenance := api.Group("", auth.RequireRole(auth.RoleMessaging, auth.RoleOperator))
	maintenance.GET("/conversations/:user_id/specification", handler.GetSpecification)
	maintenance.DELETE("/conversations/:user_id", handler.Reset)

	return router
}
