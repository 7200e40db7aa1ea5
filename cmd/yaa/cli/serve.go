package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/executor"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/server"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/telemetry"
)

const banner = `
 __   __  _      _
 \ \ / / / \    / \
  \ V / / _ \  / _ \
   | | / ___ \/ ___ \
   |_|/_/   \_\_/  \_\
`

func newServeCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API. Runs are executed in-process unless queue.url is set,
in which case they are published to NATS JetStream for 'yaa worker' processes.
Use --with-worker to also consume the queue from this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, withWorker)
		},
	}

	cmd.Flags().IntP("port", "p", 8000, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Bool("no-auth", false, "Disable authentication (every request runs with admin scope)")
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also consume queued runs in this process")

	return cmd
}

func runServe(cmd *cobra.Command, withWorker bool) error {
	a, err := openApp(cmd, map[string]string{
		"server.port":   "port",
		"server.host":   "host",
		"auth.disabled": "no-auth",
	})
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry.ServiceName, versionString(), cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = randomSecret()
		logger.Warn("auth.jwt_secret not set; session tokens will not survive a restart")
	}
	authSvc := service.NewAuthService(a.store, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	if cfg.Auth.Disabled {
		logger.Warn("authentication is disabled; every request runs with admin scope")
	} else if keys, err := a.store.ListAPIKeys(ctx, false); err == nil && len(keys) == 0 {
		logger.Warn("no API keys found - run: yaa key create --name admin --scopes admin")
	}

	runner := a.newRunner()
	execs, err := a.newExecutors(runner)
	if err != nil {
		return err
	}

	if withWorker {
		if execs.bus == nil {
			execs.stop(context.Background())
			return fmt.Errorf("--with-worker needs a reachable queue at queue.url")
		}
		w := executor.NewWorker(execs.bus, runner, executor.WorkerConfig{
			Subject: cfg.Queue.Subject,
			Durable: cfg.Queue.Durable,
			AckWait: cfg.Queue.AckWait,
			Logger:  logger,
		})
		sub, err := w.Start(ctx)
		if err != nil {
			return err
		}
		defer sub.Close()
	}

	recorder := a.newRecorder()
	deps := server.Deps{
		Store:    a.store,
		Auth:     authSvc,
		Runs:     run.NewService(a.store, a.channels, execs, logger),
		Channels: a.channels,
		Audit:    recorder,
		Version:  versionString(),
	}
	if cfg.Telemetry.Metrics {
		deps.Metrics = a.metrics
	}
	srv := server.New(cfg, deps, logger)

	fmt.Fprint(os.Stderr, banner)
	fmt.Fprintf(os.Stderr, "\n→ yaa %s\n", versionString())
	fmt.Fprintf(os.Stderr, "→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "→ Channels:   %s\n\n", a.channels.Root())

	serveErr := srv.ListenAndServe(ctx)

	// In-flight runs get the shutdown timeout; anything still running after
	// that is cancelled and recorded as failed.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := execs.stop(drainCtx); err != nil {
		logger.Warn("executor shutdown", "error", err)
	}
	if err := recorder.Close(drainCtx); err != nil {
		logger.Warn("audit shutdown", "error", err)
	}
	if err := shutdownTracing(drainCtx); err != nil {
		logger.Warn("tracing shutdown", "error", err)
	}
	return serveErr
}

// randomSecret returns a per-process JWT signing secret.
func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("yaa-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
