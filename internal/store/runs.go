package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// ---------------------------------------------------------------------------
// Pipeline runs
// ---------------------------------------------------------------------------

const runColumns = `id, channel_id, topic, brand_name, dry_run, skip_media_edit, status,
	current_step, result_json, errors_json, created_at, updated_at, completed_at`

// runRow maps 1:1 to the pipeline_runs table. Result and errors are stored as
// JSON text so every dialect can hold them.
type runRow struct {
	ID            string     `db:"id"`
	ChannelID     string     `db:"channel_id"`
	Topic         string     `db:"topic"`
	BrandName     string     `db:"brand_name"`
	DryRun        bool       `db:"dry_run"`
	SkipMediaEdit bool       `db:"skip_media_edit"`
	Status        string     `db:"status"`
	CurrentStep   *string    `db:"current_step"`
	ResultJSON    *string    `db:"result_json"`
	ErrorsJSON    string     `db:"errors_json"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}

func runRowFromModel(r *model.PipelineRun) (runRow, error) {
	row := runRow{
		ID:            r.ID,
		ChannelID:     r.ChannelID,
		Topic:         r.Topic,
		BrandName:     r.BrandName,
		DryRun:        r.DryRun,
		SkipMediaEdit: r.SkipMediaEdit,
		Status:        string(r.Status),
		CurrentStep:   r.CurrentStep,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.Result != nil {
		b, err := json.Marshal(r.Result)
		if err != nil {
			return row, fmt.Errorf("marshal run result: %w", err)
		}
		s := string(b)
		row.ResultJSON = &s
	}
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return row, fmt.Errorf("marshal run errors: %w", err)
	}
	row.ErrorsJSON = string(b)
	return row, nil
}

func (r runRow) toModel() (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		ID:            r.ID,
		ChannelID:     r.ChannelID,
		Topic:         r.Topic,
		BrandName:     r.BrandName,
		DryRun:        r.DryRun,
		SkipMediaEdit: r.SkipMediaEdit,
		Status:        model.RunStatus(r.Status),
		CurrentStep:   r.CurrentStep,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Errors:        []string{},
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		run.CompletedAt = &t
	}
	if r.ResultJSON != nil && *r.ResultJSON != "" {
		if err := json.Unmarshal([]byte(*r.ResultJSON), &run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal run result: %w", err)
		}
	}
	if r.ErrorsJSON != "" {
		if err := json.Unmarshal([]byte(r.ErrorsJSON), &run.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal run errors: %w", err)
		}
	}
	return run, nil
}

// CreateRun inserts a new run. Status defaults to pending and the timestamps
// are populated when zero. A duplicate ID yields ErrConflict.
func (s *Store) CreateRun(ctx context.Context, run *model.PipelineRun) error {
	now := timestamp()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = run.CreatedAt
	if run.Status == "" {
		run.Status = model.RunPending
	}
	if run.Errors == nil {
		run.Errors = []string{}
	}

	row, err := runRowFromModel(run)
	if err != nil {
		return err
	}

	const q = `INSERT INTO pipeline_runs
		(id, channel_id, topic, brand_name, dry_run, skip_media_edit, status,
		 current_step, result_json, errors_json, created_at, updated_at, completed_at)
		VALUES
		(:id, :channel_id, :topic, :brand_name, :dry_run, :skip_media_edit, :status,
		 :current_step, :result_json, :errors_json, :created_at, :updated_at, :completed_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*model.PipelineRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.q("SELECT "+runColumns+" FROM pipeline_runs WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return row.toModel()
}

// ListRuns returns a page of runs matching the filter, newest first, and the
// total number of matching runs. Limit is clamped to [1,100].
func (s *Store) ListRuns(ctx context.Context, f model.RunFilter) ([]*model.PipelineRun, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.ChannelID != "" {
		where = append(where, "channel_id = ?")
		args = append(args, f.ChannelID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, s.q("SELECT COUNT(*) FROM pipeline_runs"+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	limit := clampInt(f.Limit, 1, 100)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + runColumns + " FROM pipeline_runs" + clause +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, s.q(q), append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*model.PipelineRun, 0, len(rows))
	for _, r := range rows {
		run, err := r.toModel()
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, nil
}

// UpdateRun applies patch to the run atomically and returns the new state.
//
// The update is guarded on the status observed when the patch was built, so
// two writers cannot both move a run out of the same status. Terminal runs are
// immutable. Reaching a terminal status stamps completed_at and clears
// current_step; a failed run always carries at least one error.
func (s *Store) UpdateRun(ctx context.Context, id string, patch model.RunPatch) (*model.PipelineRun, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var row runRow
	if err := tx.GetContext(ctx, &row, s.q("SELECT "+runColumns+" FROM pipeline_runs WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run for update: %w", err)
	}
	run, err := row.toModel()
	if err != nil {
		return nil, err
	}

	current := run.Status
	if patch.ExpectStatus != nil && current != *patch.ExpectStatus {
		return nil, fmt.Errorf("%w: run %s is %s, expected %s", ErrStatusConflict, id, current, *patch.ExpectStatus)
	}
	if current.Terminal() {
		return nil, fmt.Errorf("%w: run %s is already %s", ErrStatusConflict, id, current)
	}

	next := current
	if patch.Status != nil && *patch.Status != current {
		if !current.CanTransition(*patch.Status) {
			return nil, fmt.Errorf("%w: cannot move run %s from %s to %s", ErrStatusConflict, id, current, *patch.Status)
		}
		next = *patch.Status
	}

	now := timestamp()
	run.Status = next
	run.UpdatedAt = now
	if patch.CurrentStep != nil {
		step := *patch.CurrentStep
		run.CurrentStep = &step
	}
	if len(patch.Result) > 0 {
		if run.Result == nil {
			run.Result = make(map[string]any, len(patch.Result))
		}
		for k, v := range patch.Result {
			run.Result[k] = v
		}
	}
	run.Errors = append(run.Errors, patch.AppendErrors...)

	if next == model.RunFailed && len(run.Errors) == 0 {
		run.Errors = append(run.Errors, "pipeline failed")
	}
	if next != model.RunRunning {
		run.CurrentStep = nil
	}
	if next.Terminal() {
		run.CompletedAt = &now
	}

	updated, err := runRowFromModel(run)
	if err != nil {
		return nil, err
	}

	const q = `UPDATE pipeline_runs SET
		status = ?, current_step = ?, result_json = ?, errors_json = ?,
		updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`

	result, err := tx.ExecContext(ctx, s.q(q),
		updated.Status, updated.CurrentStep, updated.ResultJSON, updated.ErrorsJSON,
		updated.UpdatedAt, updated.CompletedAt,
		id, string(current))
	if err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update run rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: run %s changed concurrently", ErrStatusConflict, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run update: %w", err)
	}
	return run, nil
}

// ClaimRun moves a pending run to running. Exactly one caller can claim a
// given run; the others get ErrStatusConflict.
func (s *Store) ClaimRun(ctx context.Context, id string) (*model.PipelineRun, error) {
	return s.UpdateRun(ctx, id, model.RunPatch{
		ExpectStatus: model.RunStatusPtr(model.RunPending),
		Status:       model.RunStatusPtr(model.RunRunning),
	})
}

// RunStats returns aggregate run counts and the mean wall-clock duration of
// completed runs (nil when there are none).
func (s *Store) RunStats(ctx context.Context) (model.RunStats, error) {
	var stats model.RunStats

	var counts []struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &counts, "SELECT status, COUNT(*) AS n FROM pipeline_runs GROUP BY status"); err != nil {
		return stats, fmt.Errorf("count runs by status: %w", err)
	}
	for _, c := range counts {
		stats.Total += c.N
		switch model.RunStatus(c.Status) {
		case model.RunPending, model.RunRunning:
			stats.Active += c.N
		case model.RunCompleted:
			stats.Completed += c.N
		case model.RunFailed:
			stats.Failed += c.N
		}
	}

	// Durations are computed here rather than in SQL because date arithmetic
	// differs across the three dialects.
	var spans []struct {
		CreatedAt   time.Time  `db:"created_at"`
		CompletedAt *time.Time `db:"completed_at"`
	}
	q := s.q("SELECT created_at, completed_at FROM pipeline_runs WHERE status = ? AND completed_at IS NOT NULL")
	if err := s.db.SelectContext(ctx, &spans, q, string(model.RunCompleted)); err != nil {
		return stats, fmt.Errorf("select run durations: %w", err)
	}
	if len(spans) > 0 {
		var sum float64
		for _, sp := range spans {
			sum += sp.CompletedAt.Sub(sp.CreatedAt).Seconds()
		}
		avg := sum / float64(len(spans))
		stats.AvgDurationSec = &avg
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// timestamp returns the current UTC time at the precision every supported
// database can store.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
