// Package executor runs pipeline runs, either inside the API process or by
// handing them to workers over a durable queue.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("executor closed")

// Runner executes a single run. *run.Runner implements it.
type Runner interface {
	Execute(ctx context.Context, runID string) error
}

// Inline executes runs on goroutines in the current process. At most
// concurrency runs execute at once; the rest wait for a slot.
type Inline struct {
	runner Runner
	logger *slog.Logger
	sem    chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ run.Executor = (*Inline)(nil)

// NewInline creates an Inline executor. A concurrency below 1 is treated as 1.
func NewInline(runner Runner, concurrency int, logger *slog.Logger) *Inline {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{
		runner: runner,
		logger: logger,
		sem:    make(chan struct{}, concurrency),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules the run and returns immediately. Runs outlive the request
// context that submitted them.
func (e *Inline) Submit(_ context.Context, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.wg.Add(1)
	go e.execute(runID)
	return nil
}

func (e *Inline) execute(runID string) {
	defer e.wg.Done()
	select {
	case e.sem <- struct{}{}:
	case <-e.ctx.Done():
		e.logger.Warn("run not started before shutdown", "run_id", runID)
		return
	}
	defer func() { <-e.sem }()

	if err := e.runner.Execute(e.ctx, runID); err != nil && !errors.Is(err, run.ErrAlreadyClaimed) {
		e.logger.Error("run execution failed", "run_id", runID, "error", err)
	}
}

// Close stops accepting runs and waits for in-flight runs to finish. When ctx
// expires first, in-flight runs are cancelled and recorded as failed by the
// sequencer before Close returns.
func (e *Inline) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}
