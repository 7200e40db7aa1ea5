package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/bus"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
)

// Publisher enqueues jobs. *bus.Bus implements it.
type Publisher interface {
	PublishJob(ctx context.Context, subject string, job bus.Job) error
}

// Subscriber runs a handler for each job on a durable consumer. *bus.Bus
// implements it.
type Subscriber interface {
	ConsumeJobs(ctx context.Context, cfg bus.ConsumerConfig, handle bus.JobHandler) (io.Closer, error)
}

// Queued publishes runs to a durable queue for workers. When a publish fails
// the run is executed by the fallback executor instead, so the caller cannot
// tell which path ran it.
type Queued struct {
	pub      Publisher
	subject  string
	fallback run.Executor
	logger   *slog.Logger
	observer FallbackObserver
}

// FallbackObserver is told whenever a run is diverted to the fallback.
type FallbackObserver interface {
	QueueFallback()
}

var _ run.Executor = (*Queued)(nil)

// NewQueued creates a Queued executor publishing to subject.
func NewQueued(pub Publisher, subject string, fallback run.Executor, logger *slog.Logger, observer FallbackObserver) *Queued {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queued{pub: pub, subject: subject, fallback: fallback, logger: logger, observer: observer}
}

func (q *Queued) Submit(ctx context.Context, runID string) error {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := q.pub.PublishJob(pubCtx, q.subject, bus.Job{RunID: runID, SubmittedAt: time.Now().UTC()})
	if err == nil {
		q.logger.Debug("run queued", "run_id", runID, "subject", q.subject)
		return nil
	}
	q.logger.Warn("queue publish failed, running inline", "run_id", runID, "error", err)
	if q.observer != nil {
		q.observer.QueueFallback()
	}
	if q.fallback == nil {
		return fmt.Errorf("publish run %s: %w", runID, err)
	}
	return q.fallback.Submit(ctx, runID)
}

// Worker consumes queued runs and executes them one at a time.
type Worker struct {
	sub     Subscriber
	runner  Runner
	subject string
	durable string
	ackWait time.Duration
	logger  *slog.Logger
}

// WorkerConfig holds the Worker settings. AckWait bounds how long a job
// stays with a worker that stopped without acknowledging it.
type WorkerConfig struct {
	Subject string
	Durable string
	AckWait time.Duration
	Logger  *slog.Logger
}

func NewWorker(sub Subscriber, runner Runner, cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		sub:     sub,
		runner:  runner,
		subject: cfg.Subject,
		durable: cfg.Durable,
		ackWait: cfg.AckWait,
		logger:  logger,
	}
}

// Start subscribes to the queue. Consumption stops when ctx is cancelled or
// the returned closer is closed.
func (w *Worker) Start(ctx context.Context) (io.Closer, error) {
	closer, err := w.sub.ConsumeJobs(ctx, bus.ConsumerConfig{
		Subject: w.subject,
		Durable: w.durable,
		AckWait: w.ackWait,
		Logger:  w.logger,
	}, w.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", w.subject, err)
	}
	w.logger.Info("worker subscribed", "subject", w.subject, "durable", w.durable)
	return closer, nil
}

// Handle executes the run named by one job. Jobs that can never succeed
// (unknown or already claimed runs) are acknowledged.
func (w *Worker) Handle(ctx context.Context, job bus.Job, d bus.Delivery) error {
	logger := w.logger.With("run_id", job.RunID, "attempt", d.Attempt)
	if !job.SubmittedAt.IsZero() {
		logger.Debug("job received", "queued_for", time.Since(job.SubmittedAt).Round(time.Millisecond))
	}

	err := w.runner.Execute(ctx, job.RunID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, run.ErrAlreadyClaimed):
		logger.Debug("run already claimed")
		return nil
	case errors.Is(err, run.ErrNotFound):
		logger.Warn("dropping job for unknown run")
		return nil
	default:
		logger.Error("run execution failed", "error", err)
		return err
	}
}
