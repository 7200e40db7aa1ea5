package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ymcp "github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/mcp"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		addr      string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the pipeline as
tools: list channels, start runs, follow their progress and read the dashboard
summary. Supports stdio (default) and streamable HTTP transports.

Runs started here execute in this process, or are queued when queue.url is set.
The HTTP transport serves /mcp and requires an API key with read and write
scope, sent in the API key header or as a Bearer session token. Every HTTP
request is written to the audit log.`,
		Example: `  yaa mcp                                  # stdio mode
  yaa mcp --transport http --addr :3001    # streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":3001", "Listen address (only used with --transport http)")

	return cmd
}

func runMCP(cmd *cobra.Command, transport, addr string) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}

	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	execs, err := a.newExecutors(a.newRunner())
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := execs.stop(ctx); err != nil {
			a.logger.Warn("executor shutdown", "error", err)
		}
	}()

	mcpSrv := ymcp.NewMCPServer(run.NewService(a.store, a.channels, execs, a.logger), a.channels, versionString(), a.logger)

	if transport == "stdio" {
		return mcpSrv.ServeStdio()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := a.cfg
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = randomSecret()
	}
	if cfg.Auth.Disabled {
		a.logger.Warn("authentication is disabled; MCP callers run with admin scope")
	} else if keys, err := a.store.ListAPIKeys(ctx, false); err == nil && len(keys) == 0 {
		a.logger.Warn("no API keys found - run: yaa key create --name agent --scopes read,write")
	}
	recorder := a.newRecorder()
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := recorder.Close(drainCtx); err != nil {
			a.logger.Warn("audit shutdown", "error", err)
		}
	}()

	return mcpSrv.ServeHTTP(ctx, addr, ymcp.HTTPGuard{
		Auth:         service.NewAuthService(a.store, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		KeyHeader:    cfg.Auth.APIKeyHeader,
		AuthDisabled: cfg.Auth.Disabled,
		Audit:        recorder,
	})
}
