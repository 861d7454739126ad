package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/infinitelandscape/server/internal/auth"
	"github.com/infinitelandscape/server/internal/config"
	"github.com/infinitelandscape/server/internal/performance"
	"github.com/infinitelandscape/server/internal/streaming"
)

const shutdownTimeout = 10 * time.Second

// Server wires the stream manager, websocket hub and HTTP routes together.
type Server struct {
	config     *config.Config
	profiler   *performance.Profiler
	manager    *streaming.Manager
	tokens     *auth.TokenService
	sessions   *auth.SessionHandlers
	websockets *WebSocketHandlers
	configs    *ConfigHandlers
	handler    http.Handler
}

// NewServer builds every component from cfg. Terrain settings are checked
// here so a bad configuration fails before the listener opens.
func NewServer(cfg *config.Config) (*Server, error) {
	profiler := performance.NewProfiler(cfg.Profiling.Enabled)

	factory, err := cfg.NewStreamFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create stream factory: %w", err)
	}

	manager := streaming.NewManager(factory,
		streaming.WithProfiler(profiler),
		streaming.WithMaxSubscriptions(cfg.Streaming.MaxSubscriptions),
		streaming.WithMaxJumpChunks(cfg.Streaming.MaxJumpChunks),
		streaming.WithDefaultStep(cfg.Viewer.Speed),
	)

	tokens := auth.NewTokenService(cfg)
	websockets, err := NewWebSocketHandlers(cfg, manager, tokens, profiler)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		profiler:   profiler,
		manager:    manager,
		tokens:     tokens,
		sessions:   auth.NewSessionHandlers(tokens),
		websockets: websockets,
	}
	s.configs = NewConfigHandlers(cfg, manager, websockets.GetHub(), profiler)

	mux := http.NewServeMux()
	SetupHealthRoutes(mux)
	SetupConfigRoutes(mux, s.configs, cfg.Profiling.Enabled)
	SetupSessionRoutes(mux, s.sessions)
	SetupStreamRoutes(mux, s.websockets)

	var handler http.Handler = mux
	handler = RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateWindow)(handler)
	handler = CORSMiddleware(cfg.Server.AllowedOrigins)(handler)
	handler = auth.SecurityHeadersMiddleware(handler)
	s.handler = handler

	if !tokens.Enabled() {
		log.Printf("Warning: STREAM_TOKEN_SECRET is empty, websocket viewers are not authenticated")
	}

	return s, nil
}

// Handler returns the root HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Manager returns the subscription manager.
func (s *Server) Manager() *streaming.Manager {
	return s.manager
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.websockets.GetHub()
}

// Profiler returns the server profiler.
func (s *Server) Profiler() *performance.Profiler {
	return s.profiler
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.websockets.GetHub().Run(hubCtx)

	httpServer := &http.Server{
		Addr:         s.config.Server.Address(),
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Landscape server listening on %s (environment=%s)", httpServer.Addr, s.config.Server.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	stopHub()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.profiler.Enabled() {
		s.profiler.LogReport()
	}
	log.Printf("Server stopped")
	return nil
}
