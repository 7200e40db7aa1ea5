package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// recordingTracker keeps every call in memory.
type recordingTracker struct {
	mu        sync.Mutex
	started   []model.StepName
	completed map[model.StepName]any
	order     []model.StepName
	failed    string
	done      map[string]any
	failErr   error
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{completed: make(map[model.StepName]any)}
}

func (r *recordingTracker) StepStarted(_ context.Context, step model.StepName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, step)
	return nil
}

func (r *recordingTracker) StepCompleted(_ context.Context, step model.StepName, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.completed[step] = out
	r.order = append(r.order, step)
	return nil
}

func (r *recordingTracker) Fail(ctx context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.failed = msg
	return nil
}

func (r *recordingTracker) Complete(_ context.Context, summary map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = summary
	return nil
}

// ---------------------------------------------------------------------------
// Fake collaborators
// ---------------------------------------------------------------------------

type fakeResearcher struct{ calls int }

func (f *fakeResearcher) Research(_ context.Context, channelID, brandName string, _ *model.ChannelSettings) (*model.BrandGuide, error) {
	f.calls++
	if brandName == "" {
		brandName = channelID
	}
	return &model.BrandGuide{BrandName: brandName}, nil
}

type fakeWriter struct{ err error }

func (f fakeWriter) Write(_ context.Context, plan ContentPlan, _ *model.BrandGuide) (*Script, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &Script{Title: plan.Topic, FullText: "hello"}, nil
}

type fakeSEO struct{}

func (fakeSEO) Optimize(_ context.Context, topic string, _ *Script, _ *model.BrandGuide) (*SEOAnalysis, *VideoMetadata, error) {
	return &SEOAnalysis{PrimaryKeywords: []string{topic}}, &VideoMetadata{Title: topic}, nil
}

type fakeMedia struct{}

func (fakeMedia) Generate(_ context.Context, _ *Script, _ *model.BrandGuide, dir string) (*MediaAssets, error) {
	return &MediaAssets{AudioPath: dir + "/narration.mp3", DurationSec: 1}, nil
}

type fakeEditor struct{ calls int }

func (f *fakeEditor) Edit(_ context.Context, p EditProject) (*EditResult, error) {
	f.calls++
	return &EditResult{OutputPath: p.OutputPath}, nil
}

type fakePublisher struct {
	calls  int
	status ContentStatus
}

func (f *fakePublisher) Publish(_ context.Context, req PublishRequest) (*PublishResult, error) {
	f.calls++
	if req.PrivacyStatus != "private" {
		return nil, errors.New("expected private upload")
	}
	return &PublishResult{VideoID: "vid", Status: f.status, Error: "quota"}, nil
}

type memGuides struct {
	guides map[string]*model.BrandGuide
}

func (m *memGuides) HasBrandGuide(id string) bool { _, ok := m.guides[id]; return ok }
func (m *memGuides) LoadBrandGuide(id string) (*model.BrandGuide, error) {
	return m.guides[id], nil
}
func (m *memGuides) SaveBrandGuide(id string, g *model.BrandGuide) error {
	m.guides[id] = g
	return nil
}

func fullAgents() (Agents, *fakeResearcher, *fakeEditor, *fakePublisher, *memGuides) {
	r := &fakeResearcher{}
	e := &fakeEditor{}
	p := &fakePublisher{status: ContentPublished}
	g := &memGuides{guides: map[string]*model.BrandGuide{}}
	return Agents{
		BrandResearcher: r,
		ScriptWriter:    fakeWriter{},
		SEOOptimizer:    fakeSEO{},
		MediaGenerator:  fakeMedia{},
		MediaEditor:     e,
		Publisher:       p,
		Guides:          g,
	}, r, e, p, g
}

func testState(dryRun bool) *State {
	return &State{
		RunID:         "run-1",
		ChannelID:     "demo",
		Topic:         "Test Topic",
		DryRun:        dryRun,
		ContentStatus: ContentDraft,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestSequencerRunsAllStepsInOrder(t *testing.T) {
	agents, researcher, _, pub, guides := fullAgents()
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	if err := seq.Run(context.Background(), testState(false), tr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tr.order) != len(model.Steps) {
		t.Fatalf("got %d completed steps, want %d", len(tr.order), len(model.Steps))
	}
	for i, step := range model.Steps {
		if tr.order[i] != step || tr.started[i] != step {
			t.Errorf("step %d = %q, want %q", i, tr.order[i], step)
		}
	}
	if tr.failed != "" {
		t.Errorf("unexpected failure %q", tr.failed)
	}
	if tr.done["content_status"] != "published" {
		t.Errorf("got content_status %v, want published", tr.done["content_status"])
	}
	if pub.calls != 1 {
		t.Errorf("publisher called %d times, want 1", pub.calls)
	}
	if researcher.calls != 1 {
		t.Errorf("researcher called %d times, want 1", researcher.calls)
	}
	if _, ok := guides.guides["demo"]; !ok {
		t.Error("researched brand guide should be saved to the channel")
	}
}

func TestSequencerDryRunSkipsPublishing(t *testing.T) {
	agents, _, _, pub, _ := fullAgents()
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	if err := seq.Run(context.Background(), testState(true), tr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pub.calls != 0 {
		t.Errorf("publisher called %d times on dry run", pub.calls)
	}
	got, ok := tr.completed[model.StepPublishing].(Skipped)
	if !ok || !got.Skipped || got.Reason != "dry_run" {
		t.Errorf("publishing output = %#v, want skipped dry_run", tr.completed[model.StepPublishing])
	}
	if tr.done["content_status"] != "approved" {
		t.Errorf("got content_status %v, want approved", tr.done["content_status"])
	}
}

func TestSequencerSkipMediaEdit(t *testing.T) {
	agents, _, editor, _, _ := fullAgents()
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	st := testState(true)
	st.SkipMediaEdit = true
	if err := seq.Run(context.Background(), st, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if editor.calls != 0 {
		t.Errorf("editor called %d times", editor.calls)
	}
	if got, ok := tr.completed[model.StepMediaEditing].(Skipped); !ok || got.Reason != "skip_media_edit" {
		t.Errorf("media_editing output = %#v", tr.completed[model.StepMediaEditing])
	}
}

func TestSequencerFailFast(t *testing.T) {
	agents, _, editor, pub, _ := fullAgents()
	agents.ScriptWriter = fakeWriter{err: errors.New("llm unavailable")}
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	err := seq.Run(context.Background(), testState(false), tr)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("got %v, want *StepError", err)
	}
	if stepErr.Step != model.StepScriptWriting {
		t.Errorf("failed step = %q, want script_writing", stepErr.Step)
	}
	if tr.failed != "script_writing: llm unavailable" {
		t.Errorf("got failure %q", tr.failed)
	}
	if len(tr.started) != 2 {
		t.Errorf("started %d steps, want 2 (no step after failure)", len(tr.started))
	}
	if editor.calls != 0 || pub.calls != 0 {
		t.Error("steps after the failure must not run")
	}
	if tr.done != nil {
		t.Error("failed run must not be completed")
	}
}

func TestSequencerMissingAgent(t *testing.T) {
	agents, _, _, _, _ := fullAgents()
	agents.Publisher = nil
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	err := seq.Run(context.Background(), testState(false), tr)
	if !errors.Is(err, ErrAgentNotRegistered) {
		t.Fatalf("got %v, want ErrAgentNotRegistered", err)
	}
	if tr.failed != "publishing: publisher is not registered" {
		t.Errorf("got failure %q", tr.failed)
	}
}

func TestSequencerPublishRejected(t *testing.T) {
	agents, _, _, pub, _ := fullAgents()
	pub.status = ContentFailed
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	if err := seq.Run(context.Background(), testState(false), tr); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(tr.failed, "quota") {
		t.Errorf("got failure %q, want upload error", tr.failed)
	}
}

func TestSequencerReusesChannelBrandGuide(t *testing.T) {
	agents, researcher, _, _, guides := fullAgents()
	guides.guides["demo"] = &model.BrandGuide{BrandName: "Existing"}
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()

	st := testState(true)
	if err := seq.Run(context.Background(), st, tr); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if researcher.calls != 0 {
		t.Errorf("researcher called %d times, want 0", researcher.calls)
	}
	if st.BrandGuide.BrandName != "Existing" {
		t.Errorf("got brand %q, want Existing", st.BrandGuide.BrandName)
	}
}

func TestSequencerTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	steps := []Step{
		{Name: model.StepBrandResearch, Run: func(context.Context, *State) (any, error) { return "ok", nil }},
		{Name: model.StepScriptWriting, Run: func(context.Context, *State) (any, error) {
			<-block // ignores cancellation
			return nil, nil
		}},
		{Name: model.StepSEOOptimization, Run: func(context.Context, *State) (any, error) {
			t.Error("step after timeout must not run")
			return nil, nil
		}},
	}
	seq := NewSequencer(steps, WithTimeout(50*time.Millisecond))
	tr := newRecordingTracker()

	start := time.Now()
	err := seq.Run(context.Background(), testState(false), tr)
	if time.Since(start) > 2*time.Second {
		t.Fatal("Run did not honor the timeout")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if !strings.HasPrefix(tr.failed, "pipeline timed out after") {
		t.Errorf("got failure %q", tr.failed)
	}
	// Output of the step that finished before the deadline stays recorded.
	if _, ok := tr.completed[model.StepBrandResearch]; !ok {
		t.Error("completed step output should remain recorded")
	}
}

func TestSequencerTrackerFailureMarksRunFailed(t *testing.T) {
	agents, _, _, _, _ := fullAgents()
	seq := NewSequencer(DefaultSteps(agents, nil))
	tr := newRecordingTracker()
	tr.failErr = errors.New("db down")

	if err := seq.Run(context.Background(), testState(true), tr); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(tr.failed, "db down") {
		t.Errorf("got failure %q", tr.failed)
	}
}

func TestSequencerRecoversPanic(t *testing.T) {
	steps := []Step{
		{Name: model.StepBrandResearch, Run: func(context.Context, *State) (any, error) { panic("boom") }},
	}
	tr := newRecordingTracker()
	err := NewSequencer(steps).Run(context.Background(), testState(false), tr)
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("got %v, want *StepError", err)
	}
	if !strings.Contains(tr.failed, "panic: boom") {
		t.Errorf("got failure %q", tr.failed)
	}
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *countingObserver) ObserveStep(_ model.StepName, outcome string, _ time.Duration) {
	c.mu.Lock()
	c.outcomes[outcome]++
	c.mu.Unlock()
}

func TestSequencerObserver(t *testing.T) {
	agents, _, _, _, _ := fullAgents()
	obs := &countingObserver{outcomes: map[string]int{}}
	seq := NewSequencer(DefaultSteps(agents, nil), WithObserver(obs))

	if err := seq.Run(context.Background(), testState(true), newRecordingTracker()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if obs.outcomes[OutcomeSucceeded] != 5 || obs.outcomes[OutcomeSkipped] != 1 {
		t.Errorf("got outcomes %v, want 5 succeeded 1 skipped", obs.outcomes)
	}
}
