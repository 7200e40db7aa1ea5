package model

import "time"

// RunStatus is the lifecycle state of a pipeline run. Runs move strictly
// along pending -> running -> {completed | failed}.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Valid reports whether s is one of the four known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunFailed:
		return true
	}
	return false
}

// Terminal reports whether s is completed or failed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// CanTransition reports whether a run in status s may move to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunRunning
	case RunRunning:
		return next == RunCompleted || next == RunFailed
	}
	return false
}

// StepName identifies one stage of the content pipeline.
type StepName string

const (
	StepBrandResearch   StepName = "brand_research"
	StepScriptWriting   StepName = "script_writing"
	StepSEOOptimization StepName = "seo_optimization"
	StepMediaGeneration StepName = "media_generation"
	StepMediaEditing    StepName = "media_editing"
	StepPublishing      StepName = "publishing"
)

// Steps lists the pipeline stages in execution order.
var Steps = []StepName{
	StepBrandResearch,
	StepScriptWriting,
	StepSEOOptimization,
	StepMediaGeneration,
	StepMediaEditing,
	StepPublishing,
}

// PipelineRun is the durable record of one execution of the content pipeline.
type PipelineRun struct {
	ID            string         `json:"run_id"`
	ChannelID     string         `json:"channel_id"`
	Topic         string         `json:"topic"`
	BrandName     string         `json:"brand_name,omitempty"`
	DryRun        bool           `json:"dry_run"`
	SkipMediaEdit bool           `json:"skip_media_edit"`
	Status        RunStatus      `json:"status"`
	CurrentStep   *string        `json:"current_step"`
	Result        map[string]any `json:"result,omitempty"`
	Errors        []string       `json:"errors"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
}

// Duration returns the wall-clock time between creation and completion, and
// false when the run has not finished.
func (r *PipelineRun) Duration() (time.Duration, bool) {
	if r.CompletedAt == nil {
		return 0, false
	}
	return r.CompletedAt.Sub(r.CreatedAt), true
}

// RunPatch describes a partial update to a run. Nil fields are left unchanged.
// Result entries are merged key by key into the stored result and AppendErrors
// is appended to the stored error list.
type RunPatch struct {
	Status       *RunStatus
	ExpectStatus *RunStatus // compare-and-swap guard on the current status
	CurrentStep  *string
	Result       map[string]any
	AppendErrors []string
}

// RunFilter narrows a run listing. Empty fields match every run.
type RunFilter struct {
	ChannelID string
	Status    RunStatus
	Limit     int
	Offset    int
}

// RunStats aggregates run counts for the dashboard.
type RunStats struct {
	Total          int64    `json:"total_runs"`
	Active         int64    `json:"active_runs"`
	Completed      int64    `json:"success_runs"`
	Failed         int64    `json:"failed_runs"`
	AvgDurationSec *float64 `json:"avg_duration_sec"`
}

// DashboardSummary is returned by the dashboard summary endpoint.
type DashboardSummary struct {
	RunStats
	EstimatedCostUSD *float64       `json:"estimated_cost_usd"`
	RecentRuns       []*PipelineRun `json:"recent_runs"`
}

// RunStatusPtr returns a pointer to s, for building patches.
func RunStatusPtr(s RunStatus) *RunStatus { return &s }

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
