// Package app wires the conversation engine from a Config. Both the API
// server and the operator CLI build their services through it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/ambiguity"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/auth"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/clarification"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/config"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/conversation"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/gateway"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/metrics"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/questions"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/storage"
)

// App holds the wired services.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      storage.Store
	Detector   *ambiguity.Detector
	Clarifier  *clarification.Service
	Flow       *conversation.FlowService
	JWTManager *auth.JWTManager
}

// New opens the configured store and builds the services on top of it.
// Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	detector, err := LoadDetector(cfg.VocabularyFile)
	if err != nil {
		return nil, err
	}

	jm, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	tm, err := metrics.NewTurnMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	store, err := storage.Open(ctx, storage.Settings{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		CacheSize:   cfg.SpecCacheSize,
		MaxRetries:  cfg.StoreMaxRetries,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	gen, err := questions.NewGenerator()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load question templates: %w", err)
	}

	clarifier := clarification.NewService(detector, store, clarification.WithLogger(logger))
	flow := conversation.NewFlowService(store, clarifier, detector, gen,
		conversation.WithLogger(logger),
		conversation.WithMetrics(tm),
		conversation.WithExpiration(cfg.ConversationExpiration),
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Detector:   detector,
		Clarifier:  clarifier,
		Flow:       flow,
		JWTManager: jm,
	}, nil
}

// Router builds the HTTP API for the app.
func (a *App) Router() *gin.Engine {
	return gateway.NewRouter(gateway.RouterConfig{
		Flow:       a.Flow,
		Store:      a.Store,
		JWTManager: a.JWTManager,
		Logger:     a.Logger,
		Swagger:    a.Config.Swagger,
	})
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// LoadDetector builds the ambiguity detector, reading vocabulary overrides
// from path when it is set.
func LoadDetector(path string) (*ambiguity.Detector, error) {
	if path == "" {
		return ambiguity.NewDefaultDetector(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary file: %w", err)
	}
	defer f.Close()

	cfg, err := ambiguity.LoadConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ambiguity.NewDetector(cfg)
}

// NewLogger returns the JSON logger used by the binaries.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
