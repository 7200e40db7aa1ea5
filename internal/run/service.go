// Package run implements the run service: creating runs, reading them back,
// and executing them through the step sequencer.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/channel"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

// List paging bounds.
const (
	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultSummaryLimit = 5
	maxTopicLen         = 500
)

// Executor starts a persisted pending run. Implementations must not block on
// the run itself.
type Executor interface {
	Submit(ctx context.Context, runID string) error
}

// ChannelResolver looks up channel settings by ID.
type ChannelResolver interface {
	Resolve(id string) (*model.ChannelSettings, error)
}

// Service is the public operation surface for runs.
type Service struct {
	store    *store.Store
	channels ChannelResolver
	executor Executor
	logger   *slog.Logger
}

func NewService(st *store.Store, channels ChannelResolver, exec Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, channels: channels, executor: exec, logger: logger}
}

// CreateParams are the inputs of a new run.
type CreateParams struct {
	ChannelID     string
	Topic         string
	BrandName     string
	DryRun        bool
	SkipMediaEdit bool
}

// CreateRun validates the request, persists a pending run and hands it to
// the executor. It returns as soon as the run is submitted.
func (s *Service) CreateRun(ctx context.Context, p CreateParams) (*model.PipelineRun, error) {
	topic := strings.TrimSpace(p.Topic)
	if err := channel.ValidateID(p.ChannelID); err != nil {
		return nil, fmt.Errorf("%w: channel_id must match [a-zA-Z0-9_-]+", ErrInvalidArgument)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidArgument)
	}
	if len([]rune(topic)) > maxTopicLen {
		return nil, fmt.Errorf("%w: topic must be at most %d characters", ErrInvalidArgument, maxTopicLen)
	}
	if _, err := s.channels.Resolve(p.ChannelID); err != nil {
		if errors.Is(err, channel.ErrNotFound) {
			return nil, fmt.Errorf("%w: channel %q", ErrNotFound, p.ChannelID)
		}
		return nil, fmt.Errorf("resolve channel: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	run := &model.PipelineRun{
		ID:            id.String(),
		ChannelID:     p.ChannelID,
		Topic:         topic,
		BrandName:     strings.TrimSpace(p.BrandName),
		DryRun:        p.DryRun,
		SkipMediaEdit: p.SkipMediaEdit,
		Status:        model.RunPending,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Generated IDs never repeat; a collision is a bug.
			return nil, fmt.Errorf("run id collision for %s: %w", run.ID, err)
		}
		return nil, fmt.Errorf("create run: %w", err)
	}

	created := *run
	if err := s.executor.Submit(ctx, run.ID); err != nil {
		s.logger.Error("submit run failed", "run_id", run.ID, "error", err)
		s.abandon(context.WithoutCancel(ctx), run.ID, err)
		return nil, fmt.Errorf("submit run: %w", err)
	}

	s.logger.Info("run created", "run_id", run.ID, "channel_id", run.ChannelID, "dry_run", run.DryRun)
	return &created, nil
}

// abandon records a run that could not be handed to any executor as failed,
// passing through running so the status history stays monotonic.
func (s *Service) abandon(ctx context.Context, id string, cause error) {
	if _, err := s.store.ClaimRun(ctx, id); err != nil {
		return // another executor got it
	}
	_, err := s.store.UpdateRun(ctx, id, model.RunPatch{
		Status:       model.RunStatusPtr(model.RunFailed),
		AppendErrors: []string{fmt.Sprintf("submit: %v", cause)},
	})
	if err != nil {
		s.logger.Error("mark unsubmitted run failed", "run_id", id, "error", err)
	}
}

// GetRun returns a run by ID.
func (s *Service) GetRun(ctx context.Context, id string) (*model.PipelineRun, error) {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: run %q", ErrNotFound, id)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns one page of runs newest first and the number of runs that
// match the filter.
func (s *Service) ListRuns(ctx context.Context, f model.RunFilter) ([]*model.PipelineRun, int64, error) {
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return nil, 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxListLimit)
	}
	if f.Offset < 0 {
		return nil, 0, fmt.Errorf("%w: offset must not be negative", ErrInvalidArgument)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, f.Status)
	}
	return s.store.ListRuns(ctx, f)
}

// Summary returns run counts, the mean duration of completed runs and the
// most recent runs.
func (s *Service) Summary(ctx context.Context, limit int) (*model.DashboardSummary, error) {
	if limit < 1 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxListLimit)
	}
	stats, err := s.store.RunStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, _, err := s.store.ListRuns(ctx, model.RunFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	return &model.DashboardSummary{RunStats: stats, RecentRuns: recent}, nil
}
