package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

const apiKeyColumns = `id, key_hash, key_prefix, name, scopes, is_active, created_at, expires_at, last_used_at`

type apiKeyRow struct {
	ID         string     `db:"id"`
	KeyHash    string     `db:"key_hash"`
	KeyPrefix  string     `db:"key_prefix"`
	Name       string     `db:"name"`
	Scopes     string     `db:"scopes"`
	IsActive   bool       `db:"is_active"`
	CreatedAt  time.Time  `db:"created_at"`
	ExpiresAt  *time.Time `db:"expires_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
}

func apiKeyRowFromModel(k *model.APIKey) apiKeyRow {
	return apiKeyRow{
		ID:         k.ID,
		KeyHash:    k.KeyHash,
		KeyPrefix:  k.KeyPrefix,
		Name:       k.Name,
		Scopes:     strings.Join(k.Scopes.Strings(), ","),
		IsActive:   k.IsActive,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}

func (r apiKeyRow) toModel() *model.APIKey {
	k := &model.APIKey{
		ID:        r.ID,
		KeyHash:   r.KeyHash,
		KeyPrefix: r.KeyPrefix,
		Name:      r.Name,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
	}
	for _, s := range strings.Split(r.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			k.Scopes = append(k.Scopes, model.Scope(s))
		}
	}
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC()
		k.ExpiresAt = &t
	}
	if r.LastUsedAt != nil {
		t := r.LastUsedAt.UTC()
		k.LastUsedAt = &t
	}
	return k
}

// CreateAPIKey inserts a new API key record. The ID and key_hash must already
// be set. CreatedAt is populated on insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = timestamp()

	const q = `INSERT INTO api_keys
		(id, key_hash, key_prefix, name, scopes, is_active, created_at, expires_at, last_used_at)
		VALUES
		(:id, :key_hash, :key_prefix, :name, :scopes, :is_active, :created_at, :expires_at, :last_used_at)`

	if _, err := s.db.NamedExecContext(ctx, q, apiKeyRowFromModel(key)); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, s.q("SELECT "+apiKeyColumns+" FROM api_keys WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return row.toModel(), nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, s.q("SELECT "+apiKeyColumns+" FROM api_keys WHERE key_hash = ?"), hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return row.toModel(), nil
}

// ListAPIKeys returns API keys newest first. Inactive keys are included only
// when includeInactive is set.
func (s *Store) ListAPIKeys(ctx context.Context, includeInactive bool) ([]*model.APIKey, error) {
	q := "SELECT " + apiKeyColumns + " FROM api_keys"
	var args []any
	if !includeInactive {
		q += " WHERE is_active = ?"
		args = append(args, true)
	}
	q += " ORDER BY created_at DESC, id DESC"

	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows, s.q(q), args...); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]*model.APIKey, len(rows))
	for i, r := range rows {
		keys[i] = r.toModel()
	}
	return keys, nil
}

// DeactivateAPIKey marks an API key as inactive by ID. Keys are never deleted
// so audit records keep a valid reference.
func (s *Store) DeactivateAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE api_keys SET is_active = ? WHERE id = ? AND is_active = ?"), false, id, true)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateAPIKeyByPrefix marks the active key with the given prefix as
// inactive.
func (s *Store) DeactivateAPIKeyByPrefix(ctx context.Context, prefix string) error {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE api_keys SET is_active = ? WHERE key_prefix = ? AND is_active = ?"), false, prefix, true)
	if err != nil {
		return fmt.Errorf("deactivate api key by prefix: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used_at timestamp for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.q("UPDATE api_keys SET last_used_at = ? WHERE id = ?"), timestamp(), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
