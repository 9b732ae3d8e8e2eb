// Package api exposes the registry, scheduler and notification manager
// over HTTP, plus a websocket stream of manager events.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/harun/vigil/internal/metrics"
	"github.com/harun/vigil/internal/tracing"
	"github.com/harun/vigil/pkg/notification"
	"github.com/harun/vigil/pkg/scheduler"
	"github.com/harun/vigil/pkg/tool"
	"github.com/rs/zerolog"
)

// SecretHeader carries the shared secret when one is configured
const SecretHeader = "X-Vigil-Secret"

// Config holds server configuration
type Config struct {
	Addr           string
	AllowedOrigins []string
	SharedSecret   string
	Registry       *tool.Registry
	Scheduler      *scheduler.Scheduler
	Manager        *notification.Manager
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger

	// Webhooks, when set, is mounted at /hooks. It authenticates each
	// request itself, so it sits outside the shared-secret group.
	Webhooks http.Handler
}

// Server serves the HTTP API
type Server struct {
	addr         string
	sharedSecret string
	registry     *tool.Registry
	scheduler    *scheduler.Scheduler
	manager      *notification.Manager
	metrics      *metrics.Metrics
	hub          *Hub
	webhooks     http.Handler
	handler      http.Handler
	logger       zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer builds the router and subscribes the stream hub to the manager
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("notification manager is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	logger := cfg.Logger.With().Str("component", "api").Logger()

	s := &Server{
		addr:         cfg.Addr,
		sharedSecret: cfg.SharedSecret,
		registry:     cfg.Registry,
		scheduler:    cfg.Scheduler,
		manager:      cfg.Manager,
		metrics:      cfg.Metrics,
		hub:          NewHub(cfg.AllowedOrigins, logger),
		webhooks:     cfg.Webhooks,
		logger:       logger,
	}
	s.handler = s.routes(cfg.AllowedOrigins)

	cfg.Manager.Subscribe(s.hub.Publish)

	return s, nil
}

func (s *Server) routes(origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", SecretHeader, "X-Trace-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/tools", s.listTools)
			r.Get("/tools/{name}", s.getTool)
			r.Post("/tools/{name}/start", s.startTool)
			r.Post("/tools/{name}/stop", s.stopTool)
			r.Post("/tools/{name}/check", s.checkTool)
			r.Put("/tools/{name}/config", s.updateToolConfig)

			r.Get("/notifications", s.listNotifications)
			r.Get("/notifications/{id}", s.getNotification)
			r.Post("/notifications/{id}/respond", s.respond)

			r.Get("/scheduled-events", s.listScheduledEvents)
			r.Post("/scheduled-events", s.scheduleEvent)
			r.Delete("/scheduled-events/{id}", s.cancelScheduledEvent)

			r.Get("/stream", s.hub.ServeHTTP)
		})
	})

	if s.webhooks != nil {
		r.Mount("/hooks", s.webhooks)
	}

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the websocket stream hub
func (s *Server) Hub() *Hub { return s.hub }

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting API server")

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Shutdown closes stream clients and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	s.hub.Close()

	if srv == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// requestLogger seeds the request context with ids and logs the outcome
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = tracing.NewTraceID()
		}
		ctx := tracing.WithTraceID(r.Context(), traceID)
		requestID := middleware.GetReqID(r.Context())
		ctx = tracing.WithRequestID(ctx, requestID)
		if requestID != "" {
			w.Header().Set(middleware.RequestIDHeader, requestID)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// authenticate enforces the shared secret. Browsers cannot set headers
// on websocket upgrades, so the secret may also arrive as ?secret=.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.sharedSecret != "" {
			secret := r.Header.Get(SecretHeader)
			if secret == "" {
				secret = r.URL.Query().Get("secret")
			}
			if subtle.ConstantTimeCompare([]byte(secret), []byte(s.sharedSecret)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
