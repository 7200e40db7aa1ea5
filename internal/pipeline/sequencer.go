// Package pipeline runs the content steps of a run in order, recording every
// transition through a Tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// Tracker persists run progress. Calls are made with a context that survives
// the run timeout so the terminal state is always written.
type Tracker interface {
	StepStarted(ctx context.Context, step model.StepName) error
	StepCompleted(ctx context.Context, step model.StepName, output any) error
	Fail(ctx context.Context, message string) error
	Complete(ctx context.Context, summary map[string]any) error
}

// Observer receives per-step timings.
type Observer interface {
	ObserveStep(step model.StepName, outcome string, d time.Duration)
}

// Step outcomes reported to the Observer.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// StepError is returned by Run when a step failed. The failure has already
// been recorded through the Tracker.
type StepError struct {
	Step    model.StepName
	Message string
	Err     error
}

func (e *StepError) Error() string { return e.Message }
func (e *StepError) Unwrap() error { return e.Err }

// ErrTimeout is wrapped by the StepError of a run that exceeded its deadline.
var ErrTimeout = errors.New("pipeline timed out")

// Sequencer executes steps strictly in order and stops at the first failure.
type Sequencer struct {
	steps    []Step
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithTimeout bounds the wall-clock time of a whole run.
func WithTimeout(d time.Duration) Option { return func(s *Sequencer) { s.timeout = d } }

// WithLogger sets the logger used for step progress.
func WithLogger(l *slog.Logger) Option { return func(s *Sequencer) { s.logger = l } }

// WithObserver registers a per-step timing observer.
func WithObserver(o Observer) Option { return func(s *Sequencer) { s.observer = o } }

// NewSequencer returns a sequencer over the given steps.
func NewSequencer(steps []Step, opts ...Option) *Sequencer {
	s := &Sequencer{
		steps:  steps,
		logger: slog.Default(),
		tracer: otel.Tracer("github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/pipeline"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Steps returns the step names in execution order.
func (s *Sequencer) Steps() []model.StepName {
	names := make([]model.StepName, len(s.steps))
	for i, st := range s.steps {
		names[i] = st.Name
	}
	return names
}

// Run executes every step against st. It returns nil once the run has been
// recorded as completed, or a *StepError once it has been recorded as failed.
// Any other error means the tracker could not persist progress.
func (s *Sequencer) Run(ctx context.Context, st *State, tr Tracker) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	persist := context.WithoutCancel(ctx)

	for _, step := range s.steps {
		if ctx.Err() != nil {
			return s.fail(persist, tr, step.Name, s.abortMessage(ctx, step.Name), ctx.Err())
		}
		if err := tr.StepStarted(persist, step.Name); err != nil {
			return s.trackerFailure(persist, tr, step.Name, err)
		}

		log := s.logger.With("run_id", st.RunID, "step", string(step.Name))
		log.Info("step started")
		start := time.Now()

		output, outcome, err := s.runStep(ctx, step, st)
		elapsed := time.Since(start)
		s.observe(step.Name, outcome, elapsed)

		if err != nil {
			msg := fmt.Sprintf("%s: %v", step.Name, err)
			if ctx.Err() != nil {
				msg = s.abortMessage(ctx, step.Name)
			}
			log.Error("step failed", "duration_ms", elapsed.Milliseconds(), "error", err)
			return s.fail(persist, tr, step.Name, msg, err)
		}

		log.Info("step finished", "outcome", outcome, "duration_ms", elapsed.Milliseconds())
		if err := tr.StepCompleted(persist, step.Name, output); err != nil {
			return s.trackerFailure(persist, tr, step.Name, err)
		}
	}

	if st.ContentStatus == ContentDraft {
		st.ContentStatus = ContentApproved
	}
	summary := map[string]any{"content_status": string(st.ContentStatus)}
	if err := tr.Complete(persist, summary); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

func (s *Sequencer) runStep(ctx context.Context, step Step, st *State) (any, string, error) {
	if step.Skip != nil {
		if reason, skip := step.Skip(st); skip {
			return Skipped{Skipped: true, Reason: reason}, OutcomeSkipped, nil
		}
	}

	ctx, span := s.tracer.Start(ctx, "pipeline."+string(step.Name),
		trace.WithAttributes(
			attribute.String("run.id", st.RunID),
			attribute.String("channel.id", st.ChannelID),
		))
	defer span.End()

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		out, err := step.Run(ctx, st)
		done <- result{out: out, err: err}
	}()

	// A step that ignores cancellation is abandoned when the deadline passes;
	// its late result is discarded.
	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = result{err: ctx.Err()}
	}

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		return nil, OutcomeFailed, r.err
	}
	return r.out, OutcomeSucceeded, nil
}

func (s *Sequencer) abortMessage(ctx context.Context, step model.StepName) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("%s after %s (during %s)", ErrTimeout, s.timeout, step)
	}
	return fmt.Sprintf("%s: run aborted: %v", step, ctx.Err())
}

func (s *Sequencer) fail(ctx context.Context, tr Tracker, step model.StepName, msg string, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("%w: %w", ErrTimeout, cause)
	}
	if err := tr.Fail(ctx, msg); err != nil {
		return fmt.Errorf("record failure of %s: %w", step, err)
	}
	return &StepError{Step: step, Message: msg, Err: cause}
}

// trackerFailure tries to leave the run failed when progress could not be
// saved, so it is not stuck in running.
func (s *Sequencer) trackerFailure(ctx context.Context, tr Tracker, step model.StepName, err error) error {
	s.logger.Error("persist run progress failed", "step", string(step), "error", err)
	if ferr := tr.Fail(ctx, fmt.Sprintf("%s: persist progress: %v", step, err)); ferr != nil {
		return errors.Join(err, ferr)
	}
	return fmt.Errorf("persist progress of %s: %w", step, err)
}

func (s *Sequencer) observe(step model.StepName, outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveStep(step, outcome, d)
	}
}
