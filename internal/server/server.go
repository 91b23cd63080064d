package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/sudarshan/internal/domain"
	"github.com/alanyoungcy/sudarshan/internal/server/handler"
	"github.com/alanyoungcy/sudarshan/internal/server/middleware"
	"github.com/alanyoungcy/sudarshan/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter throttles /api/fusion/analyze per client IP. Nil disables it.
	Limiter    domain.RateLimiter
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	SelfTest *handler.SelfTestHandler
	Status   *handler.StatusHandler
	Live     *handler.LiveHandler
	Fusion   *handler.FusionHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	cancel     context.CancelFunc
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/selftest", handlers.SelfTest.SelfTest)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Live feed endpoints.
	mux.HandleFunc("POST /api/live/subscribe", handlers.Live.Subscribe)
	mux.HandleFunc("GET /api/live/subs", handlers.Live.ListSubscriptions)
	mux.HandleFunc("GET /api/live/stream", handlers.Live.Stream)
	if handlers.Live.HasPrices() {
		mux.HandleFunc("GET /api/live/ltp", handlers.Live.LastPrice)
	}

	// Fusion endpoints.
	var analyze http.Handler = http.HandlerFunc(handlers.Fusion.Analyze)
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		analyze = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, cfg.RateWindow)(analyze)
	}
	mux.Handle("POST /api/fusion/analyze", analyze)
	mux.HandleFunc("GET /api/fusion/config", handlers.Fusion.GetConfig)
	if handlers.Fusion.HasHistory() {
		mux.HandleFunc("GET /api/fusion/history", handlers.Fusion.History)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws/ticks", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	// Request contexts hang off base so Shutdown can end long-lived streams.
	base, cancel := context.WithCancel(context.Background())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return base },
	}

	return &Server{
		httpServer: srv,
		cancel:     cancel,
		mux:        mux,
		logger:     logger.With(slog.String("component", "http_server")),
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
