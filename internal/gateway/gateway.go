// ABOUTME: Gateway orchestrator wiring the store, model client, and HTTP server
// ABOUTME: Owns the chi router, turn sessions, and graceful shutdown lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fixai/fixai-gateway/internal/agentloop"
	"github.com/fixai/fixai-gateway/internal/config"
	"github.com/fixai/fixai-gateway/internal/conversation"
	"github.com/fixai/fixai-gateway/internal/model"
	"github.com/fixai/fixai-gateway/internal/store"
)

// Gateway coordinates the HTTP API, the investigation service, and the
// per-conversation turn sessions.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	sessions     *SessionRegistry
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates the store from config, honoring FIXAI_DB_PATH.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("FIXAI_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway wired to the configured model backend and tool
// services.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	modelClient := model.NewClient(model.Options{
		BaseURL:   cfg.Model.BaseURL,
		ModelID:   cfg.Model.ModelID,
		APIKey:    cfg.Model.APIKey,
		MaxTokens: cfg.Model.MaxTokens,
		Timeout:   cfg.Model.Timeout,
	}, logger.With("component", "model"))

	budgets := agentloop.Budgets{
		MaxModelCalls:          cfg.Agent.MaxModelCalls,
		MaxInputTokens:         cfg.Agent.MaxInputTokens,
		TokenEstimationDivisor: cfg.Agent.TokenEstimationDivisor,
		ToolResultMaxChars:     cfg.Agent.ToolResultMaxChars,
		MaxTurnDuration:        cfg.Agent.MaxTurnDuration,
	}
	defaults := conversation.ServiceDefaults{
		CodeParserBaseURL:      cfg.Services.CodeParserBaseURL,
		MetricsExplorerBaseURL: cfg.Services.MetricsExplorerBaseURL,
		LogsExplorerBaseURL:    cfg.Services.LogsExplorerBaseURL,
	}
	convService := conversation.NewService(s, modelClient, budgets, cfg.Agent.ToolTimeout,
		defaults, logger.With("component", "conversation"))

	g := &Gateway{
		config:       cfg,
		store:        s,
		conversation: convService,
		sessions:     NewSessionRegistry(logger),
		logger:       logger.With("component", "gateway"),
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", g.handleCreateOrganization)
			r.Get("/", g.handleListOrganizations)
			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/", g.handleGetOrganization)
				r.Patch("/", g.handleUpdateOrganization)
				r.Put("/", g.handleUpdateOrganization)
				r.Delete("/", g.handleDeleteOrganization)
				r.Post("/conversations", g.handleCreateConversation)
				r.Get("/conversations", g.handleListConversations)
			})
		})

		r.Route("/conversations/{conversationID}", func(r chi.Router) {
			r.Get("/", g.handleGetConversation)
			r.Delete("/", g.handleDeleteConversation)
			r.Post("/messages", g.handleSendMessage)
			r.Post("/stop", g.handleStopTurn)
			r.Get("/debug", g.handleDebugTrace)
		})
	})

	return r
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already
// canceled by the time shutdown starts.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
