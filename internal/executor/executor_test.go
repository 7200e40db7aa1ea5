package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/bus"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	err     error
	block   chan struct{}
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeRunner) Execute(ctx context.Context, id string) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.ran = append(f.ran, id)
	f.mu.Unlock()
	return f.err
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ran)
}

func TestInlineRunsAll(t *testing.T) {
	r := &fakeRunner{}
	e := NewInline(r, 2, testLogger())
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := e.Submit(context.Background(), id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.count() != 4 {
		t.Errorf("ran %d runs, want 4", r.count())
	}
	if err := e.Submit(context.Background(), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestInlineConcurrencyLimit(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	e := NewInline(r, 2, testLogger())
	for i := 0; i < 5; i++ {
		if err := e.Submit(context.Background(), "r"); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(r.block)
	if err := e.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.maxSeen.Load(); got > 2 {
		t.Errorf("saw %d concurrent runs, want at most 2", got)
	}
}

func TestInlineCloseTimeout(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	e := NewInline(r, 1, testLogger())
	if err := e.Submit(context.Background(), "slow"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want deadline exceeded", err)
	}
}

type fakePublisher struct {
	err  error
	jobs []bus.Job
}

func (p *fakePublisher) PublishJob(_ context.Context, _ string, job bus.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type recordingExecutor struct{ ids []string }

func (r *recordingExecutor) Submit(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return nil
}

type countingObserver struct{ n int }

func (c *countingObserver) QueueFallback() { c.n++ }

func TestQueuedPublishes(t *testing.T) {
	pub := &fakePublisher{}
	fb := &recordingExecutor{}
	q := NewQueued(pub, "yaa.runs", fb, testLogger(), nil)

	if err := q.Submit(context.Background(), "r1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(pub.jobs) != 1 || pub.jobs[0].RunID != "r1" {
		t.Fatalf("published %v", pub.jobs)
	}
	if pub.jobs[0].SubmittedAt.IsZero() {
		t.Error("job published without a submission time")
	}
	if len(fb.ids) != 0 {
		t.Errorf("fallback used: %v", fb.ids)
	}
}

func TestQueuedFallsBack(t *testing.T) {
	pub := &fakePublisher{err: nats.ErrConnectionClosed}
	fb := &recordingExecutor{}
	obs := &countingObserver{}
	q := NewQueued(pub, "yaa.runs", fb, testLogger(), obs)

	if err := q.Submit(context.Background(), "r1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(fb.ids) != 1 || fb.ids[0] != "r1" {
		t.Errorf("fallback got %v", fb.ids)
	}
	if obs.n != 1 {
		t.Errorf("fallback observed %d times, want 1", obs.n)
	}

	noFallback := NewQueued(pub, "yaa.runs", nil, testLogger(), nil)
	if err := noFallback.Submit(context.Background(), "r2"); err == nil {
		t.Error("expected error without fallback")
	}
}

func TestWorkerHandle(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"ok", nil, false},
		{"already claimed", run.ErrAlreadyClaimed, false},
		{"unknown run", run.ErrNotFound, false},
		{"store down", errors.New("db closed"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{err: tt.err}
			w := NewWorker(nil, r, WorkerConfig{Logger: testLogger()})
			job := bus.Job{RunID: "r1", SubmittedAt: time.Now().Add(-time.Second)}
			err := w.Handle(context.Background(), job, bus.Delivery{Subject: "yaa.runs", Attempt: 2})
			if (err != nil) != tt.wantErr {
				t.Errorf("Handle = %v, wantErr %v", err, tt.wantErr)
			}
			if r.count() != 1 {
				t.Errorf("runner called %d times", r.count())
			}
		})
	}
}

type fakeSubscriber struct {
	cfg    bus.ConsumerConfig
	handle bus.JobHandler
}

func (s *fakeSubscriber) ConsumeJobs(_ context.Context, cfg bus.ConsumerConfig, handle bus.JobHandler) (io.Closer, error) {
	s.cfg, s.handle = cfg, handle
	return io.NopCloser(nil), nil
}

func TestWorkerStart(t *testing.T) {
	sub := &fakeSubscriber{}
	r := &fakeRunner{}
	w := NewWorker(sub, r, WorkerConfig{Subject: "yaa.runs", Durable: "yaa-worker", AckWait: time.Hour, Logger: testLogger()})

	if _, err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sub.cfg.Subject != "yaa.runs" || sub.cfg.Durable != "yaa-worker" || sub.cfg.AckWait != time.Hour {
		t.Errorf("consumer config %+v", sub.cfg)
	}
	if err := sub.handle(context.Background(), bus.Job{RunID: "x"}, bus.Delivery{Attempt: 1}); err != nil {
		t.Fatal(err)
	}
	if r.count() != 1 {
		t.Errorf("runner called %d times", r.count())
	}
}
