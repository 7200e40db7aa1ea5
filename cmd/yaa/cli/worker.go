package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/executor"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/telemetry"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Execute queued runs from NATS JetStream",
		Long: `Consume run jobs published by 'yaa serve' and execute them. Each worker
handles one run at a time; run more workers to execute runs in parallel.
A run claimed by another executor is acknowledged and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd)
		},
	}
}

func runWorker(cmd *cobra.Command) error {
	a, err := openApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.cfg.Queue.URL == "" {
		return errors.New("queue.url is not set; the worker has nothing to consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, a.cfg.Telemetry.ServiceName+"-worker", versionString(), a.cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	b, err := a.connectBus("yaa-worker")
	if err != nil {
		return err
	}
	defer b.Close()

	w := executor.NewWorker(b, a.newRunner(), executor.WorkerConfig{
		Subject: a.cfg.Queue.Subject,
		Durable: a.cfg.Queue.Durable,
		AckWait: a.cfg.Queue.AckWait,
		Logger:  a.logger,
	})
	sub, err := w.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("worker stopping")
	if err := sub.Close(); err != nil {
		return fmt.Errorf("close subscription: %w", err)
	}
	return nil
}
