// Package audit records one entry per authenticated API request without
// blocking the request on the write.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

const maxFieldLen = 500

// Observer is told about entries that could not be persisted.
type Observer interface {
	AuditDropped(reason string)
}

// Recorder persists audit entries on a background goroutine. Record never
// returns an error: failed writes are logged and dropped.
type Recorder struct {
	store    *store.Store
	logger   *slog.Logger
	observer Observer
	entries  chan *model.AuditLog

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder creates a Recorder with a queue of the given size. A size of
// zero writes each entry synchronously in Record.
func NewRecorder(st *store.Store, size int, logger *slog.Logger, observer Observer) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		store:    st,
		logger:   logger,
		observer: observer,
		done:     make(chan struct{}),
	}
	if size > 0 {
		r.entries = make(chan *model.AuditLog, size)
		go r.loop()
	} else {
		close(r.done)
	}
	return r
}

// Record queues entry for persistence. When the queue is full the entry is
// dropped rather than delaying the caller.
func (r *Recorder) Record(ctx context.Context, entry *model.AuditLog) {
	entry.Path = truncate(entry.Path)
	entry.UserAgent = truncate(entry.UserAgent)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(entry, "closed")
		return
	}
	if r.entries == nil {
		r.write(context.WithoutCancel(ctx), entry)
		return
	}
	select {
	case r.entries <- entry:
	default:
		r.drop(entry, "queue_full")
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for entry := range r.entries {
		r.write(context.Background(), entry)
	}
}

func (r *Recorder) write(ctx context.Context, entry *model.AuditLog) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		r.logger.Warn("audit write failed", "method", entry.Method, "path", entry.Path, "error", err)
		if r.observer != nil {
			r.observer.AuditDropped("write_error")
		}
	}
}

func (r *Recorder) drop(entry *model.AuditLog, reason string) {
	r.logger.Warn("audit entry dropped", "reason", reason, "method", entry.Method, "path", entry.Path)
	if r.observer != nil {
		r.observer.AuditDropped(reason)
	}
}

// Close stops accepting entries and waits until queued entries are written
// or ctx expires.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.entries != nil {
			close(r.entries)
		}
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// truncate keeps the first maxFieldLen characters of s without splitting a
// multi-byte rune.
func truncate(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxFieldLen {
			return s[:i]
		}
		n++
	}
	return s
}
