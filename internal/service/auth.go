package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrKeyExpired         = errors.New("api key expired")
	ErrInsufficientScope  = errors.New("insufficient scope")
	ErrInvalidKeyRequest  = errors.New("invalid api key request")
)

// KeyPrefix is prepended to every generated API key.
const KeyPrefix = "yaa_"

// Principal is the authenticated caller resolved from an API key or a
// session token.
type Principal struct {
	KeyID  string
	Name   string
	Scopes model.Scopes
}

// Allows reports whether the principal holds the required scope.
func (p *Principal) Allows(required model.Scope) bool {
	return p != nil && p.Scopes.Allows(required)
}

type AuthService struct {
	store      *store.Store
	jwtSecret  []byte
	sessionTTL time.Duration
	now        func() time.Time
}

func NewAuthService(st *store.Store, jwtSecret string, sessionTTL time.Duration) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		store:      st,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// ValidateAPIKey checks the provided raw API key against stored key hashes.
// A key that is inactive or past its expiry is rejected even when the hash
// matches.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*Principal, error) {
	if rawKey == "" {
		return nil, ErrInvalidCredentials
	}

	key, err := s.store.GetAPIKeyByHash(ctx, HashAPIKey(rawKey))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if err := s.checkUsable(key); err != nil {
		return nil, err
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

	return principalFor(key), nil
}

// Authorize returns ErrInsufficientScope unless p holds every required
// scope. Admin satisfies any scope; read and write are independent.
func Authorize(p *Principal, required ...model.Scope) error {
	for _, scope := range required {
		if !p.Allows(scope) {
			return fmt.Errorf("%w: %s", ErrInsufficientScope, scope)
		}
	}
	return nil
}

// IsCredentialError reports whether err means the caller presented a bad,
// revoked or expired credential rather than the lookup itself failing.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrKeyRevoked) ||
		errors.Is(err, ErrKeyExpired)
}

// CreateKeyParams describes a new API key.
type CreateKeyParams struct {
	Name      string
	Scopes    []model.Scope
	ExpiresIn time.Duration // zero means the key never expires
}

// CreateAPIKey generates a new key, stores only its hash and returns the
// record together with the plaintext. The plaintext cannot be recovered later.
func (s *AuthService) CreateAPIKey(ctx context.Context, p CreateKeyParams) (*model.APIKey, string, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidKeyRequest)
	}
	if len(name) > 255 {
		return nil, "", fmt.Errorf("%w: name must be at most 255 characters", ErrInvalidKeyRequest)
	}
	if p.ExpiresIn < 0 {
		return nil, "", fmt.Errorf("%w: expiry must be positive", ErrInvalidKeyRequest)
	}

	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = model.DefaultScopes
	}
	seen := make(map[model.Scope]bool, len(scopes))
	var granted model.Scopes
	for _, sc := range scopes {
		if !sc.Valid() {
			return nil, "", fmt.Errorf("%w: unknown scope %q", ErrInvalidKeyRequest, sc)
		}
		if !seen[sc] {
			seen[sc] = true
			granted = append(granted, sc)
		}
	}

	plaintext, prefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", fmt.Errorf("generate key id: %w", err)
	}

	key := &model.APIKey{
		ID:        id.String(),
		KeyHash:   HashAPIKey(plaintext),
		KeyPrefix: prefix,
		Name:      name,
		Scopes:    granted,
		IsActive:  true,
	}
	if p.ExpiresIn > 0 {
		exp := s.now().UTC().Add(p.ExpiresIn).Truncate(time.Microsecond)
		key.ExpiresAt = &exp
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("store api key: %w", err)
	}
	return key, plaintext, nil
}

// IssueSession creates a signed session token for a validated principal. The
// token only carries the key ID; the key is re-checked on every use.
func (s *AuthService) IssueSession(ctx context.Context, p *Principal) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.sessionTTL)
	claims := sessionClaims{
		KeyName: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.KeyID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "yaa",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// ValidateSession verifies a session token and resolves the API key it was
// issued for. Deactivating or expiring that key invalidates the session.
func (s *AuthService) ValidateSession(ctx context.Context, tokenStr string) (*Principal, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer("yaa"))
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}

	key, err := s.store.GetAPIKey(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session key: %w", err)
	}
	if err := s.checkUsable(key); err != nil {
		return nil, err
	}
	return principalFor(key), nil
}

func (s *AuthService) checkUsable(key *model.APIKey) error {
	if !key.IsActive {
		return ErrKeyRevoked
	}
	if key.Expired(s.now()) {
		return ErrKeyExpired
	}
	return nil
}

type sessionClaims struct {
	KeyName string `json:"key_name"`
	jwt.RegisteredClaims
}

func principalFor(key *model.APIKey) *Principal {
	return &Principal{KeyID: key.ID, Name: key.Name, Scopes: key.Scopes}
}

// GenerateAPIKey returns a new random plaintext key and its display prefix.
func GenerateAPIKey() (plaintext, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	plaintext = KeyPrefix + base64.RawURLEncoding.EncodeToString(raw)
	return plaintext, plaintext[:len(KeyPrefix)+8], nil
}

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
