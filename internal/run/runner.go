package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/pipeline"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

// Observer receives the outcome of every executed run.
type Observer interface {
	RunFinished(status model.RunStatus, d time.Duration)
}

// Runner executes a single run: it claims the run, builds the pipeline state
// and drives the sequencer, persisting each transition.
type Runner struct {
	store     *store.Store
	channels  ChannelResolver
	seq       *pipeline.Sequencer
	outputDir string
	logger    *slog.Logger
	observer  Observer
}

// RunnerConfig holds the Runner dependencies.
type RunnerConfig struct {
	Store     *store.Store
	Channels  ChannelResolver
	Sequencer *pipeline.Sequencer
	OutputDir string
	Logger    *slog.Logger
	Observer  Observer
}

func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     cfg.Store,
		channels:  cfg.Channels,
		seq:       cfg.Sequencer,
		outputDir: cfg.OutputDir,
		logger:    logger,
		observer:  cfg.Observer,
	}
}

// Execute runs the pipeline for runID. Only one caller can execute a given
// run; the others get ErrAlreadyClaimed without touching it. A step failure
// is recorded on the run and is not returned as an error.
func (r *Runner) Execute(ctx context.Context, runID string) error {
	run, err := r.store.ClaimRun(ctx, runID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrStatusConflict):
			return fmt.Errorf("%w: %s", ErrAlreadyClaimed, runID)
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("%w: run %q", ErrNotFound, runID)
		}
		return fmt.Errorf("claim run: %w", err)
	}

	log := r.logger.With("run_id", runID, "channel_id", run.ChannelID)
	log.Info("run started")
	tr := &storeTracker{store: r.store, runID: runID}

	ch, err := r.channels.Resolve(run.ChannelID)
	if err != nil {
		msg := fmt.Sprintf("resolve channel %s: %v", run.ChannelID, err)
		if ferr := tr.Fail(context.WithoutCancel(ctx), msg); ferr != nil {
			return errors.Join(err, ferr)
		}
		r.finish(log, run, model.RunFailed)
		return nil
	}

	st := pipeline.NewState(run, ch, r.outputDir)
	err = r.seq.Run(ctx, st, tr)

	var stepErr *pipeline.StepError
	switch {
	case err == nil:
		r.finish(log, run, model.RunCompleted)
		return nil
	case errors.As(err, &stepErr):
		log.Warn("run failed", "step", string(stepErr.Step), "error", stepErr.Message)
		r.finish(log, run, model.RunFailed)
		return nil
	default:
		log.Error("run aborted", "error", err)
		return err
	}
}

func (r *Runner) finish(log *slog.Logger, run *model.PipelineRun, status model.RunStatus) {
	d := time.Since(run.CreatedAt)
	log.Info("run finished", "status", string(status), "duration_ms", d.Milliseconds())
	if r.observer != nil {
		r.observer.RunFinished(status, d)
	}
}

// storeTracker persists sequencer progress onto the run record.
type storeTracker struct {
	store *store.Store
	runID string
}

var running = model.RunRunning

func (t *storeTracker) StepStarted(ctx context.Context, step model.StepName) error {
	_, err := t.store.UpdateRun(ctx, t.runID, model.RunPatch{
		ExpectStatus: &running,
		CurrentStep:  model.StringPtr(string(step)),
	})
	return err
}

func (t *storeTracker) StepCompleted(ctx context.Context, step model.StepName, output any) error {
	_, err := t.store.UpdateRun(ctx, t.runID, model.RunPatch{
		ExpectStatus: &running,
		Result:       map[string]any{string(step): output},
	})
	return err
}

func (t *storeTracker) Fail(ctx context.Context, message string) error {
	_, err := t.store.UpdateRun(ctx, t.runID, model.RunPatch{
		ExpectStatus: &running,
		Status:       model.RunStatusPtr(model.RunFailed),
		AppendErrors: []string{message},
	})
	return err
}

func (t *storeTracker) Complete(ctx context.Context, summary map[string]any) error {
	_, err := t.store.UpdateRun(ctx, t.runID, model.RunPatch{
		ExpectStatus: &running,
		Status:       model.RunStatusPtr(model.RunCompleted),
		Result:       summary,
	})
	return err
}
