package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// AuditSink persists one entry per request. *audit.Recorder implements it.
type AuditSink interface {
	Record(ctx context.Context, entry *model.AuditLog)
}

// Audit returns an HTTP middleware that records every request for which
// include reports true, once the response has been written. Requests rejected
// by authentication or rate limiting are recorded too when those layers run
// inside it. A nil include records everything.
func Audit(sink AuditSink, include func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if include != nil && !include(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ctx, holder := ensureHolder(r.Context())
			ww := wrapWriter(w)

			next.ServeHTTP(ww, r.WithContext(ctx))

			entry := &model.AuditLog{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: ww.status,
				IPAddress:  clientIP(r),
				UserAgent:  r.UserAgent(),
				DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
			}
			if holder.keyID != "" && holder.keyID != DevPrincipal.KeyID {
				id := holder.keyID
				entry.APIKeyID = &id
			}
			sink.Record(r.Context(), entry)
		})
	}
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP has
// already replaced with the forwarded address when one was sent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
