package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// DevPrincipal is attached to every request when authentication is disabled.
var DevPrincipal = &service.Principal{
	KeyID:  "dev",
	Name:   "auth disabled",
	Scopes: model.Scopes{model.ScopeAdmin},
}

// Authenticate returns an HTTP middleware that validates the request's
// credentials. It supports two methods:
//
//  1. API key via the configured header, or the api_key query parameter
//  2. Session JWT via the Authorization: Bearer header
//
// On success, the Principal is attached to the request context. On failure,
// a 401 JSON error response is returned. With disabled set every request
// runs as DevPrincipal.
func Authenticate(authSvc *service.AuthService, header string, disabled bool) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if disabled {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), DevPrincipal)))
				return
			}

			var (
				principal *service.Principal
				err       error
			)
			if key := apiKeyFrom(r, header); key != "" {
				principal, err = authSvc.ValidateAPIKey(r.Context(), key)
			} else if token, ok := bearerToken(r); ok {
				principal, err = authSvc.ValidateSession(r.Context(), token)
			} else {
				writeError(w, http.StatusUnauthorized,
					"Authentication required. Provide "+header+" header or Bearer token.")
				return
			}
			if err != nil {
				if !service.IsCredentialError(err) {
					writeError(w, http.StatusInternalServerError, "Internal server error")
					return
				}
				writeError(w, http.StatusUnauthorized, authMessage(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

func apiKeyFrom(r *http.Request, header string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return r.URL.Query().Get("api_key")
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrKeyRevoked):
		return "API key has been revoked"
	case errors.Is(err, service.ErrKeyExpired):
		return "API key has expired"
	default:
		return "Invalid credentials"
	}
}

// RequireScope returns an HTTP middleware that rejects principals lacking
// every one of the given scopes. It must run after Authenticate.
func RequireScope(scopes ...model.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if err := service.Authorize(principal, scopes...); err != nil {
				writeError(w, http.StatusForbidden, scopeMessage(principal, scopes))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func scopeMessage(p *service.Principal, scopes []model.Scope) string {
	for _, s := range scopes {
		if !p.Allows(s) {
			return "Scope '" + string(s) + "' required"
		}
	}
	return "Insufficient scope"
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *service.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*service.Principal); ok {
		return p
	}
	return nil
}

func withPrincipal(ctx context.Context, p *service.Principal) context.Context {
	if h, ok := ctx.Value(holderKey).(*principalHolder); ok {
		h.keyID = p.KeyID
	}
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

type holderKeyType struct{}

var holderKey holderKeyType

// principalHolder carries the authenticated key ID back up to middleware
// that runs outside Authenticate and never sees the derived context.
type principalHolder struct {
	keyID string
}

func ensureHolder(ctx context.Context) (context.Context, *principalHolder) {
	if h, ok := ctx.Value(holderKey).(*principalHolder); ok {
		return ctx, h
	}
	h := &principalHolder{}
	return context.WithValue(ctx, holderKey, h), h
}
