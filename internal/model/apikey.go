package model

import "time"

// Scope is a named permission level attached to an API key.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeRead || s == ScopeWrite || s == ScopeAdmin
}

// DefaultScopes are granted to a new key when the caller names none.
var DefaultScopes = []Scope{ScopeRead, ScopeWrite}

// Scopes is the set of scopes granted to a key.
type Scopes []Scope

// Allows reports whether the set satisfies the required scope. Admin implies
// every other scope.
func (ss Scopes) Allows(required Scope) bool {
	for _, s := range ss {
		if s == required || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// Strings returns the scopes as plain strings.
func (ss Scopes) Strings() []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// APIKey is a stored credential. The raw key is never stored; only a SHA-256
// hash and a short prefix for identification are persisted.
type APIKey struct {
	ID         string     `json:"key_id"`
	KeyHash    string     `json:"-"` // SHA-256 hash, never expose
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	Scopes     Scopes     `json:"scopes"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
