package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

// ---------------------------------------------------------------------------
// RequestID middleware tests
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id == "" {
			t.Error("expected non-empty request ID in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID == "" {
		t.Error("expected X-Request-ID in response header")
	}
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDPreservesClientID(t *testing.T) {
	clientID := "my-custom-trace-id-123"

	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := GetRequestID(r.Context())
		if id != clientID {
			t.Errorf("expected context ID %q, got %q", clientID, id)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", clientID)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-ID")
	if respID != clientID {
		t.Errorf("expected response X-Request-ID %q, got %q", clientID, respID)
	}
}

func TestGetRequestIDEmptyContext(t *testing.T) {
	id := GetRequestID(context.Background())
	if id != "" {
		t.Errorf("expected empty string from bare context, got %q", id)
	}
}

func TestRequestIDRejectsUnprintable(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "bad id\twith spaces")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("expected a generated ID, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Authentication tests
// ---------------------------------------------------------------------------

type authFixture struct {
	auth     *service.AuthService
	admin    string
	reader   string
	readerID string
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	st, err := store.New(store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	auth := service.NewAuthService(st, "test-secret", time.Hour)
	_, admin, err := auth.CreateAPIKey(context.Background(), service.CreateKeyParams{
		Name: "admin", Scopes: []model.Scope{model.ScopeAdmin},
	})
	if err != nil {
		t.Fatal(err)
	}
	readerKey, reader, err := auth.CreateAPIKey(context.Background(), service.CreateKeyParams{
		Name: "reader", Scopes: []model.Scope{model.ScopeRead},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &authFixture{auth: auth, admin: admin, reader: reader, readerID: readerKey.ID}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	token, _, err := f.auth.IssueSession(context.Background(), &service.Principal{KeyID: f.readerID})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"no credentials", func(r *http.Request) {}, "/x", http.StatusUnauthorized},
		{"header key", func(r *http.Request) { r.Header.Set("X-API-Key", f.reader) }, "/x", http.StatusOK},
		{"query key", func(r *http.Request) {}, "/x?api_key=" + f.reader, http.StatusOK},
		{"bad key", func(r *http.Request) { r.Header.Set("X-API-Key", "yaa_nope") }, "/x", http.StatusUnauthorized},
		{"session", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, "/x", http.StatusOK},
		{"bad session", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }, "/x", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Authenticate(f.auth, "X-API-Key", false)(okHandler())
			req := httptest.NewRequest("GET", tt.target, nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("got %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestAuthenticateStoreFailure(t *testing.T) {
	st, err := store.New(store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	auth := service.NewAuthService(st, "test-secret", time.Hour)
	_, key, err := auth.CreateAPIKey(context.Background(), service.CreateKeyParams{Name: "ci"})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set("X-API-Key", key)
	rr := httptest.NewRecorder()
	Authenticate(auth, "X-API-Key", false)(okHandler()).ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got %d, want 500 (%s)", rr.Code, rr.Body.String())
	}
}

func TestAuthenticateDisabled(t *testing.T) {
	handler := Authenticate(nil, "", true)(RequireScope(model.ScopeAdmin)(okHandler()))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/x", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want 200", rr.Code)
	}
}

func TestRequireScope(t *testing.T) {
	f := newAuthFixture(t)
	chain := func(scopes ...model.Scope) http.Handler {
		return Authenticate(f.auth, "X-API-Key", false)(RequireScope(scopes...)(okHandler()))
	}

	tests := []struct {
		key    string
		scopes []model.Scope
		want   int
	}{
		{f.reader, []model.Scope{model.ScopeRead}, http.StatusOK},
		{f.reader, []model.Scope{model.ScopeWrite}, http.StatusForbidden},
		{f.reader, []model.Scope{model.ScopeAdmin}, http.StatusForbidden},
		{f.reader, []model.Scope{model.ScopeRead, model.ScopeWrite}, http.StatusForbidden},
		{f.admin, []model.Scope{model.ScopeWrite}, http.StatusOK},
		{f.admin, []model.Scope{model.ScopeRead, model.ScopeWrite}, http.StatusOK},
		{f.admin, []model.Scope{model.ScopeAdmin}, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/x", nil)
		req.Header.Set("X-API-Key", tt.key)
		rr := httptest.NewRecorder()
		chain(tt.scopes...).ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Errorf("scopes %v: got %d, want %d", tt.scopes, rr.Code, tt.want)
		}
	}

	rr := httptest.NewRecorder()
	RequireScope(model.ScopeRead)(okHandler()).ServeHTTP(rr, httptest.NewRequest("GET", "/x", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no principal: got %d, want 401", rr.Code)
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	got := GetPrincipal(context.Background())
	if got != nil {
		t.Error("expected nil principal from bare context")
	}
}

// ---------------------------------------------------------------------------
// Audit tests
// ---------------------------------------------------------------------------

type memorySink struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (m *memorySink) Record(_ context.Context, e *model.AuditLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func TestAuditRecordsKeyAndStatus(t *testing.T) {
	f := newAuthFixture(t)
	sink := &memorySink{}
	handler := Audit(sink, nil)(Authenticate(f.auth, "X-API-Key", false)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		})))

	req := httptest.NewRequest("POST", "/api/v1/pipeline/run", nil)
	req.Header.Set("X-API-Key", f.reader)
	req.Header.Set("User-Agent", "curl/8")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/pipeline/runs", nil))

	if len(sink.entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(sink.entries))
	}
	first := sink.entries[0]
	if first.APIKeyID == nil || *first.APIKeyID != f.readerID {
		t.Errorf("api key id = %v, want %s", first.APIKeyID, f.readerID)
	}
	if first.StatusCode != http.StatusAccepted || first.Method != "POST" || first.UserAgent != "curl/8" {
		t.Errorf("got entry %+v", first)
	}
	if first.IPAddress != "192.0.2.1" {
		t.Errorf("ip = %q", first.IPAddress)
	}
	second := sink.entries[1]
	if second.APIKeyID != nil || second.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated entry = %+v", second)
	}
}

func TestAuditRecordsRecoveredPanic(t *testing.T) {
	sink := &memorySink{}
	handler := Audit(sink, nil)(chimw.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipeline/runs", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want 500", rr.Code)
	}
	if len(sink.entries) != 1 || sink.entries[0].StatusCode != http.StatusInternalServerError {
		t.Errorf("entries = %+v, want one 500 record", sink.entries)
	}
}

func TestAuditInclude(t *testing.T) {
	sink := &memorySink{}
	onlyAPI := func(r *http.Request) bool { return strings.HasPrefix(r.URL.Path, "/api/") }
	handler := Audit(sink, onlyAPI)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/channels/", nil))

	if len(sink.entries) != 1 || sink.entries[0].Path != "/api/v1/channels/" {
		t.Errorf("entries = %+v, want only the API request", sink.entries)
	}
}

// ---------------------------------------------------------------------------
// Rate limit and metrics tests
// ---------------------------------------------------------------------------

func TestRateLimitJSON(t *testing.T) {
	handler := RateLimit(2)(okHandler())
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, httptest.NewRequest("GET", "/x", nil))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", last.Code)
	}
	if !strings.Contains(last.Body.String(), `"code":429`) {
		t.Errorf("body = %s", last.Body.String())
	}
}

func TestRateLimitByKey(t *testing.T) {
	handler := RateLimitByKey(1)(okHandler())
	send := func(keyID string) int {
		req := httptest.NewRequest("GET", "/x", nil)
		req = req.WithContext(withPrincipal(req.Context(), &service.Principal{KeyID: keyID}))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}
	if send("a") != http.StatusOK || send("b") != http.StatusOK {
		t.Fatal("first request per key should pass")
	}
	if got := send("a"); got != http.StatusTooManyRequests {
		t.Errorf("second request for key a: got %d, want 429", got)
	}
}

type routeRecorder struct{ route string }

func (r *routeRecorder) ObserveRequest(_, route string, _ int, _ time.Duration) { r.route = route }

func TestMetricsUsesRoutePattern(t *testing.T) {
	obs := &routeRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(obs))
	r.Get("/runs/{run_id}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runs/abc", nil))
	if obs.route != "/runs/{run_id}" {
		t.Errorf("route = %q", obs.route)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/boom", nil))
	if !strings.Contains(buf.String(), `"level":"ERROR"`) || !strings.Contains(buf.String(), `"status":500`) {
		t.Errorf("log = %s", buf.String())
	}
}
