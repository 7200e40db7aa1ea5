package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{}) // in-memory
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(id, channel string) *model.PipelineRun {
	return &model.PipelineRun{
		ID:        id,
		ChannelID: channel,
		Topic:     "Test Topic",
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(Options{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if _, err := New(Options{Driver: "postgres"}); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func TestRunCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newRun("run-1", "demo")
	run.DryRun = true
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != model.RunPending {
		t.Errorf("got status %q, want %q", run.Status, model.RunPending)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ChannelID != "demo" || got.Topic != "Test Topic" || !got.DryRun {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("pending run should have nil completed_at")
	}
	if got.CurrentStep != nil {
		t.Error("pending run should have nil current_step")
	}
	if len(got.Errors) != 0 {
		t.Errorf("got %d errors, want 0", len(got.Errors))
	}

	// Duplicate ID
	if err := s.CreateRun(ctx, newRun("run-1", "demo")); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate CreateRun: got %v, want ErrConflict", err)
	}

	// Missing
	if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun missing: got %v, want ErrNotFound", err)
	}
	if _, err := s.UpdateRun(ctx, "nope", model.RunPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRun missing: got %v, want ErrNotFound", err)
	}
}

func TestUpdateRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateRun(ctx, newRun("run-1", "demo")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// Pending cannot jump straight to completed.
	_, err := s.UpdateRun(ctx, "run-1", model.RunPatch{Status: model.RunStatusPtr(model.RunCompleted)})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("pending->completed: got %v, want ErrStatusConflict", err)
	}

	run, err := s.ClaimRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}
	if run.Status != model.RunRunning {
		t.Errorf("got status %q, want running", run.Status)
	}

	run, err = s.UpdateRun(ctx, "run-1", model.RunPatch{
		CurrentStep: model.StringPtr("brand_research"),
		Result:      map[string]any{"brand_research": map[string]any{"brand_name": "Acme"}},
	})
	if err != nil {
		t.Fatalf("UpdateRun step: %v", err)
	}
	if run.CurrentStep == nil || *run.CurrentStep != "brand_research" {
		t.Errorf("got current_step %v, want brand_research", run.CurrentStep)
	}

	// Result fragments merge rather than replace.
	_, err = s.UpdateRun(ctx, "run-1", model.RunPatch{
		CurrentStep: model.StringPtr("script_writing"),
		Result:      map[string]any{"script_writing": map[string]any{"title": "T"}},
	})
	if err != nil {
		t.Fatalf("UpdateRun step 2: %v", err)
	}

	run, err = s.UpdateRun(ctx, "run-1", model.RunPatch{Status: model.RunStatusPtr(model.RunCompleted)})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if run.CompletedAt == nil {
		t.Error("completed run should have completed_at")
	}
	if run.CurrentStep != nil {
		t.Error("completed run should have nil current_step")
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if _, ok := got.Result["brand_research"]; !ok {
		t.Error("expected brand_research in merged result")
	}
	if _, ok := got.Result["script_writing"]; !ok {
		t.Error("expected script_writing in merged result")
	}
	if got.CompletedAt == nil {
		t.Error("persisted completed run should have completed_at")
	}

	// Terminal runs are immutable.
	_, err = s.UpdateRun(ctx, "run-1", model.RunPatch{AppendErrors: []string{"late"}})
	if !errors.Is(err, ErrStatusConflict) {
		t.Errorf("update completed run: got %v, want ErrStatusConflict", err)
	}
}

func TestUpdateRunFailedAlwaysHasErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateRun(ctx, newRun("run-1", "demo")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := s.ClaimRun(ctx, "run-1"); err != nil {
		t.Fatalf("ClaimRun: %v", err)
	}
	run, err := s.UpdateRun(ctx, "run-1", model.RunPatch{Status: model.RunStatusPtr(model.RunFailed)})
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if len(run.Errors) == 0 {
		t.Error("failed run should carry at least one error")
	}
	if run.CompletedAt == nil {
		t.Error("failed run should have completed_at")
	}
}

func TestClaimRunRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateRun(ctx, newRun("run-1", "demo")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	const executors = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < executors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClaimRun(ctx, "run-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrStatusConflict):
				conflicts++
			default:
				t.Errorf("ClaimRun: unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("got %d successful claims, want 1", succeeded)
	}
	if conflicts != executors-1 {
		t.Errorf("got %d conflicts, want %d", conflicts, executors-1)
	}
}

func TestListRunsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	seed := []struct {
		id, channel string
		finish      model.RunStatus
	}{
		{"r1", "demo", model.RunCompleted},
		{"r2", "demo", model.RunFailed},
		{"r3", "other", model.RunCompleted},
		{"r4", "demo", model.RunPending},
		{"r5", "demo", model.RunCompleted},
	}
	for i, sd := range seed {
		r := newRun(sd.id, sd.channel)
		r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun %s: %v", sd.id, err)
		}
		if sd.finish == model.RunPending {
			continue
		}
		if _, err := s.ClaimRun(ctx, sd.id); err != nil {
			t.Fatalf("ClaimRun %s: %v", sd.id, err)
		}
		if _, err := s.UpdateRun(ctx, sd.id, model.RunPatch{Status: model.RunStatusPtr(sd.finish)}); err != nil {
			t.Fatalf("finish %s: %v", sd.id, err)
		}
	}

	tests := []struct {
		name    string
		filter  model.RunFilter
		wantIDs []string
		total   int64
	}{
		{"all newest first", model.RunFilter{Limit: 20}, []string{"r5", "r4", "r3", "r2", "r1"}, 5},
		{"by channel", model.RunFilter{ChannelID: "demo", Limit: 20}, []string{"r5", "r4", "r2", "r1"}, 4},
		{"by status", model.RunFilter{Status: model.RunCompleted, Limit: 20}, []string{"r5", "r3", "r1"}, 3},
		{"channel and status", model.RunFilter{ChannelID: "demo", Status: model.RunCompleted, Limit: 20}, []string{"r5", "r1"}, 2},
		{"paged", model.RunFilter{Limit: 2, Offset: 1}, []string{"r4", "r3"}, 5},
		{"no match", model.RunFilter{ChannelID: "ghost", Limit: 20}, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, total, err := s.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if total != tt.total {
				t.Errorf("got total %d, want %d", total, tt.total)
			}
			if len(runs) != len(tt.wantIDs) {
				t.Fatalf("got %d runs, want %d", len(runs), len(tt.wantIDs))
			}
			for i, r := range runs {
				if r.ID != tt.wantIDs[i] {
					t.Errorf("runs[%d] = %q, want %q", i, r.ID, tt.wantIDs[i])
				}
				if tt.filter.Status != "" && r.Status != tt.filter.Status {
					t.Errorf("run %s has status %q, want %q", r.ID, r.Status, tt.filter.Status)
				}
			}
		})
	}
}

func TestRunStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.RunStats(ctx)
	if err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if stats.Total != 0 || stats.AvgDurationSec != nil {
		t.Errorf("empty store stats = %+v, want zero with nil avg", stats)
	}

	// Two completed runs, one failed, one running, one pending.
	for i, finish := range []model.RunStatus{model.RunCompleted, model.RunCompleted, model.RunFailed, model.RunRunning, model.RunPending} {
		id := fmt.Sprintf("r%d", i)
		r := newRun(id, "demo")
		r.CreatedAt = time.Now().UTC().Add(-time.Duration(10*(i+1)) * time.Second)
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		if finish == model.RunPending {
			continue
		}
		if _, err := s.ClaimRun(ctx, id); err != nil {
			t.Fatalf("ClaimRun: %v", err)
		}
		if finish == model.RunRunning {
			continue
		}
		if _, err := s.UpdateRun(ctx, id, model.RunPatch{Status: model.RunStatusPtr(finish), AppendErrors: nil}); err != nil {
			t.Fatalf("finish: %v", err)
		}
	}

	stats, err = s.RunStats(ctx)
	if err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("got total %d, want 5", stats.Total)
	}
	if stats.Active != 2 {
		t.Errorf("got active %d, want 2", stats.Active)
	}
	if stats.Completed != 2 {
		t.Errorf("got completed %d, want 2", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("got failed %d, want 1", stats.Failed)
	}
	if stats.AvgDurationSec == nil {
		t.Fatal("expected avg duration")
	}

	// Mean over completed runs only.
	runs, _, err := s.ListRuns(ctx, model.RunFilter{Status: model.RunCompleted, Limit: 100})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var sum float64
	for _, r := range runs {
		d, _ := r.Duration()
		sum += d.Seconds()
	}
	want := sum / float64(len(runs))
	if diff := *stats.AvgDurationSec - want; diff > 0.001 || diff < -0.001 {
		t.Errorf("got avg %f, want %f", *stats.AvgDurationSec, want)
	}
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

func TestAPIKeyCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := &model.APIKey{
		ID:        "key-1",
		KeyHash:   "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		KeyPrefix: "yaa_secr",
		Name:      "ci",
		Scopes:    model.Scopes{model.ScopeRead, model.ScopeWrite},
		IsActive:  true,
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if key.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := s.GetAPIKeyByHash(ctx, key.KeyHash)
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.ID != "key-1" || got.Name != "ci" {
		t.Errorf("unexpected key: %+v", got)
	}
	if len(got.Scopes) != 2 || got.Scopes[0] != model.ScopeRead || got.Scopes[1] != model.ScopeWrite {
		t.Errorf("got scopes %v, want [read write]", got.Scopes)
	}

	if err := s.UpdateAPIKeyLastUsed(ctx, "key-1"); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, "key-1")
	if got.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}

	if err := s.DeactivateAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("DeactivateAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, "key-1")
	if got.IsActive {
		t.Error("expected key to be inactive")
	}
	if err := s.DeactivateAPIKey(ctx, "key-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second deactivate: got %v, want ErrNotFound", err)
	}

	active, err := s.ListAPIKeys(ctx, false)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("got %d active keys, want 0", len(active))
	}
	all, err := s.ListAPIKeys(ctx, true)
	if err != nil {
		t.Fatalf("ListAPIKeys inactive: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("got %d keys, want 1", len(all))
	}
}

func TestAPIKeyDuplicateHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k1 := &model.APIKey{ID: "a", KeyHash: "h", KeyPrefix: "p", Name: "n", Scopes: model.Scopes{model.ScopeRead}, IsActive: true}
	k2 := &model.APIKey{ID: "b", KeyHash: "h", KeyPrefix: "p", Name: "n", Scopes: model.Scopes{model.ScopeRead}, IsActive: true}
	if err := s.CreateAPIKey(ctx, k1); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := s.CreateAPIKey(ctx, k2); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate hash: got %v, want ErrConflict", err)
	}
}

func TestDeactivateAPIKeyByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key := &model.APIKey{ID: "a", KeyHash: "h1", KeyPrefix: "yaa_abcd", Name: "n", Scopes: model.Scopes{model.ScopeRead}, IsActive: true}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := s.DeactivateAPIKeyByPrefix(ctx, "yaa_abcd"); err != nil {
		t.Fatalf("DeactivateAPIKeyByPrefix: %v", err)
	}
	if err := s.DeactivateAPIKeyByPrefix(ctx, "yaa_abcd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second deactivate: got %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Audit logs
// ---------------------------------------------------------------------------

func TestAuditLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keyID := "key-1"
	entries := []*model.AuditLog{
		{APIKeyID: &keyID, Method: "GET", Path: "/api/v1/pipeline/runs", StatusCode: 200, DurationMs: 1.5},
		{APIKeyID: &keyID, Method: "POST", Path: "/api/v1/pipeline/run", StatusCode: 200, DurationMs: 3},
		{Method: "GET", Path: "/api/v1/pipeline/runs", StatusCode: 401, DurationMs: 0.2},
	}
	for _, e := range entries {
		if err := s.CreateAuditLog(ctx, e); err != nil {
			t.Fatalf("CreateAuditLog: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected non-zero audit id")
		}
	}

	logs, total, err := s.ListAuditLogs(ctx, model.AuditFilter{Limit: 100})
	if err != nil {
		t.Fatalf("ListAuditLogs: %v", err)
	}
	if total != 3 || len(logs) != 3 {
		t.Fatalf("got %d/%d logs, want 3/3", len(logs), total)
	}
	if logs[2].APIKeyID == nil || *logs[2].APIKeyID != keyID {
		t.Errorf("oldest log should carry key id")
	}
	if logs[0].APIKeyID != nil {
		t.Errorf("unauthenticated log should have nil key id")
	}

	logs, total, err = s.ListAuditLogs(ctx, model.AuditFilter{Method: "post", Limit: 100})
	if err != nil {
		t.Fatalf("ListAuditLogs by method: %v", err)
	}
	if total != 1 || logs[0].Method != "POST" {
		t.Errorf("method filter returned %d logs", total)
	}

	_, total, err = s.ListAuditLogs(ctx, model.AuditFilter{APIKeyID: keyID, Limit: 100})
	if err != nil {
		t.Fatalf("ListAuditLogs by key: %v", err)
	}
	if total != 2 {
		t.Errorf("got %d logs for key, want 2", total)
	}
}
