package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/server/middleware"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
)

// EndpointPath is where the streamable HTTP transport is mounted.
const EndpointPath = "/mcp"

// MCPServer wraps the mcp-go server with the pipeline tools and resources,
// so AI agents can inspect channels, start runs and follow their progress.
type MCPServer struct {
	runs     *run.Service
	channels *channel.Registry
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer with all tools and resources registered.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(runs *run.Service, channels *channel.Registry, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		runs:     runs,
		channels: channels,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"YouTube AI Agent Agency",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithInstructions("Start with yaa_list_channels, then yaa_start_run. "+
			"Runs are asynchronous: poll yaa_get_run until the status is completed or failed."),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// clients that launch the server as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// HTTPGuard holds what the HTTP transport needs to check callers the same
// way the REST API does. Audit may be nil.
type HTTPGuard struct {
	Auth         *service.AuthService
	KeyHeader    string
	AuthDisabled bool
	Audit        middleware.AuditSink
}

// Handler mounts endpoint at EndpointPath behind request logging, the audit
// trail and API key authentication. Every tool is reachable through one
// endpoint, so callers need read and write scope.
func (s *MCPServer) Handler(endpoint http.Handler, guard HTTPGuard) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	if guard.Audit != nil {
		r.Use(middleware.Audit(guard.Audit, nil))
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.Authenticate(guard.Auth, guard.KeyHeader, guard.AuthDisabled))
	r.Use(middleware.RequireScope(model.ScopeRead, model.ScopeWrite))
	r.Handle(EndpointPath, endpoint)
	return r
}

// ServeHTTP starts the MCP server in Streamable HTTP mode on addr and stops
// it when ctx is cancelled.
func (s *MCPServer) ServeHTTP(ctx context.Context, addr string, guard HTTPGuard) error {
	httpServer := &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second}
	streamable := server.NewStreamableHTTPServer(s.server,
		server.WithEndpointPath(EndpointPath),
		server.WithStreamableHTTPServer(httpServer),
	)
	httpServer.Handler = s.Handler(streamable, guard)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("MCP HTTP server starting", "addr", addr, "path", EndpointPath)
		errCh <- streamable.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return streamable.Shutdown(shutdownCtx)
	}
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
