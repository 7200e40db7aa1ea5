package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/agents"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/audit"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/bus"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/config"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/executor"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/pipeline"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/telemetry"
)

// loadConfig reads the configuration file and environment, then applies the
// persistent flags and any command flags named in bindings (viper key to flag
// name). Flags only override when set on the command line.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (config.Config, *viper.Viper, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if dataDir != "" {
		v.Set("data_dir", dataDir)
	}
	if logLevel != "" {
		v.Set("log.level", logLevel)
	}
	for key, name := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return config.Config{}, nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, v, nil
}

// newLogger builds the process logger. Logs always go to stderr so stdout
// stays clean for command output and the MCP stdio transport.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app holds the components shared by every command that touches the store.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	channels *channel.Registry
	metrics  *telemetry.Metrics
}

// openApp loads configuration and opens the run store and channel registry.
func openApp(cmd *cobra.Command, bindings map[string]string) (*app, error) {
	cfg, _, err := loadConfig(cmd, bindings)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, os.Stderr)

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.New(store.Options{
		Driver:  cfg.Database.Driver,
		DSN:     cfg.Database.DSN,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("store opened", "driver", st.Dialect())

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		channels: channel.NewRegistry(cfg.Channels.Dir),
		metrics:  telemetry.NewMetrics(),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// agents returns the step collaborators, with brand guides stored in the
// channel registry.
func (a *app) agents() pipeline.Agents {
	return agents.Offline(a.channels)
}

// newRunner builds the run executor body: the six pipeline steps backed by
// the offline agents.
func (a *app) newRunner() *run.Runner {
	seq := pipeline.NewSequencer(
		pipeline.DefaultSteps(a.agents(), a.logger),
		pipeline.WithTimeout(a.cfg.Pipeline.RunTimeout),
		pipeline.WithLogger(a.logger),
		pipeline.WithObserver(a.metrics),
	)
	return run.NewRunner(run.RunnerConfig{
		Store:     a.store,
		Channels:  a.channels,
		Sequencer: seq,
		OutputDir: a.cfg.Pipeline.OutputDir,
		Logger:    a.logger,
		Observer:  a.metrics,
	})
}

// newRecorder returns the audit recorder configured for this process.
func (a *app) newRecorder() *audit.Recorder {
	return audit.NewRecorder(a.store, a.cfg.Audit.Buffer, a.logger, a.metrics)
}

// executors is the run executor chosen from configuration together with the
// resources it holds.
type executors struct {
	run.Executor
	inline *executor.Inline
	bus    *bus.Bus
}

// newExecutors returns a queued executor when queue.url is set and the queue
// is reachable, and the inline executor otherwise. The queued executor falls
// back to inline per submission.
func (a *app) newExecutors(runner *run.Runner) (*executors, error) {
	inline := executor.NewInline(runner, a.cfg.Pipeline.Concurrency, a.logger)
	ex := &executors{Executor: inline, inline: inline}
	if a.cfg.Queue.URL == "" {
		return ex, nil
	}

	b, err := a.connectBus("yaa-api")
	if err != nil {
		a.logger.Warn("queue unavailable, running pipelines inline", "url", a.cfg.Queue.URL, "error", err)
		a.metrics.QueueFallback()
		return ex, nil
	}
	ex.bus = b
	ex.Executor = executor.NewQueued(b, a.cfg.Queue.Subject, inline, a.logger, a.metrics)
	return ex, nil
}

// stop drains in-flight inline runs and closes the queue connection.
func (e *executors) stop(ctx context.Context) error {
	err := e.inline.Close(ctx)
	if e.bus != nil {
		e.bus.Close()
	}
	return err
}

func (a *app) connectBus(client string) (*bus.Bus, error) {
	b, err := bus.Dial(a.cfg.Queue.URL, client)
	if err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}
	if err := b.EnsureStream(a.cfg.Queue.Stream, a.cfg.Queue.Subject); err != nil {
		b.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", a.cfg.Queue.Stream, err)
	}
	a.logger.Info("queue connected", "url", a.cfg.Queue.URL, "stream", a.cfg.Queue.Stream)
	return b, nil
}

// parseScopes splits a comma separated scope list.
func parseScopes(s string) []model.Scope {
	var out []model.Scope
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, model.Scope(strings.ToLower(part)))
		}
	}
	return out
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
