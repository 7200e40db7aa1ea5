package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

func newTestAuth(t *testing.T) (*AuthService, *store.Store) {
	t.Helper()
	st, err := store.New(store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	auth := NewAuthService(st, "test-secret-key-for-jwt", time.Hour)
	return auth, st
}

func TestCreateAndValidateAPIKey(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	key, plaintext, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "ci"})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if !strings.HasPrefix(plaintext, KeyPrefix) {
		t.Errorf("plaintext %q missing prefix %q", plaintext, KeyPrefix)
	}
	if !strings.HasPrefix(plaintext, key.KeyPrefix) {
		t.Errorf("key prefix %q is not a prefix of the plaintext", key.KeyPrefix)
	}
	if key.KeyHash == plaintext || key.KeyHash != HashAPIKey(plaintext) {
		t.Error("stored hash must be the SHA-256 of the plaintext")
	}
	if len(key.Scopes) != 2 || !key.Scopes.Allows(model.ScopeWrite) {
		t.Errorf("got scopes %v, want default read+write", key.Scopes)
	}

	stored, err := st.GetAPIKey(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if strings.Contains(stored.KeyHash, plaintext) {
		t.Error("plaintext must not be persisted")
	}

	p, err := auth.ValidateAPIKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if p.KeyID != key.ID || p.Name != "ci" {
		t.Errorf("got principal %+v", p)
	}

	if _, err := auth.ValidateAPIKey(ctx, "wrong_key"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, ""); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for empty key, got %v", err)
	}
}

func TestCreateAPIKeySameNameDistinct(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	k1, p1, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "dup"})
	if err != nil {
		t.Fatalf("CreateAPIKey 1: %v", err)
	}
	k2, p2, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "dup"})
	if err != nil {
		t.Fatalf("CreateAPIKey 2: %v", err)
	}
	if k1.ID == k2.ID {
		t.Error("expected distinct key ids")
	}
	if k1.KeyHash == k2.KeyHash || p1 == p2 {
		t.Error("expected distinct secrets")
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateKeyParams
	}{
		{"empty name", CreateKeyParams{Name: "  "}},
		{"unknown scope", CreateKeyParams{Name: "x", Scopes: []model.Scope{"root"}}},
		{"negative expiry", CreateKeyParams{Name: "x", ExpiresIn: -time.Hour}},
		{"long name", CreateKeyParams{Name: strings.Repeat("n", 256)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := auth.CreateAPIKey(ctx, tt.params)
			if !errors.Is(err, ErrInvalidKeyRequest) {
				t.Errorf("got %v, want ErrInvalidKeyRequest", err)
			}
		})
	}
}

func TestAPIKeyRevoked(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	key, plaintext, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "revoke-test"})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := st.DeactivateAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("DeactivateAPIKey: %v", err)
	}

	if _, err := auth.ValidateAPIKey(ctx, plaintext); err != ErrKeyRevoked {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestAPIKeyExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, plaintext, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "short", ExpiresIn: time.Hour})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, plaintext); err != nil {
		t.Fatalf("fresh key should validate: %v", err)
	}

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := auth.ValidateAPIKey(ctx, plaintext); err != ErrKeyExpired {
		t.Errorf("expected ErrKeyExpired, got %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	reader := &Principal{Scopes: model.Scopes{model.ScopeRead}}
	writer := &Principal{Scopes: model.Scopes{model.ScopeWrite}}
	both := &Principal{Scopes: model.Scopes{model.ScopeRead, model.ScopeWrite}}
	admin := &Principal{Scopes: model.Scopes{model.ScopeAdmin}}

	tests := []struct {
		name     string
		p        *Principal
		required []model.Scope
		ok       bool
	}{
		{"read on read", reader, []model.Scope{model.ScopeRead}, true},
		{"read on admin", reader, []model.Scope{model.ScopeAdmin}, false},
		{"write does not imply read", writer, []model.Scope{model.ScopeRead, model.ScopeWrite}, false},
		{"read and write", both, []model.Scope{model.ScopeRead, model.ScopeWrite}, true},
		{"admin implies write", admin, []model.Scope{model.ScopeRead, model.ScopeWrite}, true},
		{"nil principal", nil, []model.Scope{model.ScopeRead}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.p, tt.required...)
			if tt.ok && err != nil {
				t.Errorf("Authorize = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInsufficientScope) {
				t.Errorf("Authorize = %v, want ErrInsufficientScope", err)
			}
		})
	}
}

func TestValidateAPIKeyStoreFailure(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	_, plaintext, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "ci"})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if _, err := auth.ValidateAPIKey(ctx, "yaa_unknown"); !IsCredentialError(err) {
		t.Errorf("unknown key: got %v, want credential error", err)
	}

	st.Close()
	_, err = auth.ValidateAPIKey(ctx, plaintext)
	if err == nil || IsCredentialError(err) {
		t.Errorf("closed store: got %v, want a lookup error", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()

	key, plaintext, err := auth.CreateAPIKey(ctx, CreateKeyParams{Name: "dash", Scopes: []model.Scope{model.ScopeRead}})
	if err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	p, err := auth.ValidateAPIKey(ctx, plaintext)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}

	token, exp, err := auth.IssueSession(ctx, p)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if token == "" || exp.IsZero() {
		t.Fatal("expected token and expiry")
	}

	got, err := auth.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if got.KeyID != key.ID || got.Allows(model.ScopeWrite) {
		t.Errorf("got principal %+v", got)
	}

	// Deactivating the key invalidates its sessions.
	if err := st.DeactivateAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("DeactivateAPIKey: %v", err)
	}
	if _, err := auth.ValidateSession(ctx, token); err != ErrKeyRevoked {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}

func TestSessionExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	auth.sessionTTL = -time.Hour
	token, _, err := auth.IssueSession(ctx, &Principal{KeyID: "k"})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := auth.ValidateSession(ctx, token); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionInvalidToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	if _, err := auth.ValidateSession(context.Background(), "garbage.token.here"); err == nil {
		t.Fatal("expected error for invalid token")
	}
}
