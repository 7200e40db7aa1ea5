package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/config"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/handler"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/openapi"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/server/middleware"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/telemetry"
)

const apiPrefix = "/api/v1"

// Deps are the components the HTTP layer serves. Metrics may be nil, in which
// case /metrics is not mounted.
type Deps struct {
	Store    *store.Store
	Auth     *service.AuthService
	Runs     *run.Service
	Channels *channel.Registry
	Audit    middleware.AuditSink
	Metrics  *telemetry.Metrics
	Version  string
}

// Server is the top-level HTTP server. It owns the chi router and the
// http.Server; the components in Deps are owned by the caller.
type Server struct {
	cfg        config.ServerConfig
	auth       config.AuthConfig
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server and wires up all routes and middleware.
func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg.Server,
		auth:   cfg.Auth,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	if s.deps.Audit != nil {
		r.Use(middleware.Audit(s.deps.Audit, auditable))
	}
	r.Use(chimw.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(middleware.Metrics(s.deps.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.auth.APIKeyHeader, "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !containsWildcard(s.cfg.CORSOrigins),
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}
	if s.cfg.RateLimit.Enabled && s.cfg.RateLimit.PerIPPerMin > 0 {
		r.Use(middleware.RateLimit(s.cfg.RateLimit.PerIPPerMin))
	}

	sysHandler := handler.NewSystemHandler(s.deps.Store, s.openAPIDocument, s.logger)

	// --- Health checks and documents (no auth required) ---
	r.Get("/healthz", sysHandler.Health)
	r.Get("/readyz", sysHandler.Ready)
	r.Get("/openapi.json", sysHandler.OpenAPI)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	pipelineHandler := handler.NewPipelineHandler(s.deps.Runs, s.logger)
	channelHandler := handler.NewChannelHandler(s.deps.Channels, s.logger)
	adminHandler := handler.NewAdminHandler(s.deps.Store, s.deps.Auth, s.logger)
	sessionHandler := handler.NewSessionHandler(s.deps.Auth, s.logger)

	// --- API routes ---
	r.Route(apiPrefix, func(r chi.Router) {
		r.Get("/health", sysHandler.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.deps.Auth, s.auth.APIKeyHeader, s.auth.Disabled))
			if s.cfg.RateLimit.Enabled && s.cfg.RateLimit.PerKeyPerMin > 0 {
				r.Use(middleware.RateLimitByKey(s.cfg.RateLimit.PerKeyPerMin))
			}

			r.Post("/auth/session", sessionHandler.Create)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(model.ScopeRead))
				r.Get("/pipeline/runs", pipelineHandler.ListRuns)
				r.Get("/pipeline/runs/{run_id}", pipelineHandler.GetRun)
				r.Get("/status/{run_id}", pipelineHandler.GetStatus)
				r.Get("/dashboard/summary", pipelineHandler.Summary)
				r.Get("/channels/", channelHandler.List)
				r.Get("/channels/{channel_id}", channelHandler.Get)
			})

			r.With(middleware.RequireScope(model.ScopeRead, model.ScopeWrite)).Post("/pipeline/run", pipelineHandler.StartRun)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireScope(model.ScopeAdmin))
				r.Post("/channels/", channelHandler.Create)
				r.Post("/channels/{channel_id}", channelHandler.Create)
				r.Patch("/channels/{channel_id}", channelHandler.Update)
				r.Delete("/channels/{channel_id}", channelHandler.Delete)

				r.Get("/admin/api-keys", adminHandler.ListAPIKeys)
				r.Post("/admin/api-keys", adminHandler.CreateAPIKey)
				r.Delete("/admin/api-keys/{key_id}", adminHandler.RevokeAPIKey)
				r.Get("/admin/audit-logs", adminHandler.ListAuditLogs)
			})
		})
	})

	s.router = r
}

func (s *Server) openAPIDocument() (*openapi3.T, error) {
	return openapi.Build(openapi.Options{
		BaseURL:      "/",
		Version:      s.deps.Version,
		APIKeyHeader: s.auth.APIKeyHeader,
	})
}

// auditable selects the requests written to the audit log: everything under
// the API prefix except the liveness check, whatever its outcome.
func auditable(r *http.Request) bool {
	p := r.URL.Path
	if p != apiPrefix && !strings.HasPrefix(p, apiPrefix+"/") {
		return false
	}
	return p != apiPrefix+"/health"
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// ListenAndServe starts the HTTP server and blocks until ctx is cancelled.
// It then performs a graceful shutdown, draining in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.tracedHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// tracedHandler starts a server span per request. Spans are dropped unless
// tracing was initialised with an exporter. Health checks are not traced.
func (s *Server) tracedHandler() http.Handler {
	return otelhttp.NewHandler(s.router, "yaa.http",
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				return false
			}
			return true
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
