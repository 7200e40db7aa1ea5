package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// ---------------------------------------------------------------------------
// Audit logs
// ---------------------------------------------------------------------------

const auditColumns = `id, api_key_id, method, path, status_code, ip_address, user_agent, duration_ms, created_at`

type auditRow struct {
	ID         int64     `db:"id"`
	APIKeyID   *string   `db:"api_key_id"`
	Method     string    `db:"method"`
	Path       string    `db:"path"`
	StatusCode int       `db:"status_code"`
	IPAddress  string    `db:"ip_address"`
	UserAgent  string    `db:"user_agent"`
	DurationMs float64   `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r auditRow) toModel() model.AuditLog {
	return model.AuditLog{
		ID:         r.ID,
		APIKeyID:   r.APIKeyID,
		Method:     r.Method,
		Path:       r.Path,
		StatusCode: r.StatusCode,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// CreateAuditLog appends an audit record. ID and CreatedAt (when zero) are
// populated after insert.
func (s *Store) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = timestamp()
	}
	args := []any{
		entry.APIKeyID, entry.Method, entry.Path, entry.StatusCode,
		entry.IPAddress, entry.UserAgent, entry.DurationMs, entry.CreatedAt,
	}
	const q = `INSERT INTO audit_logs
		(api_key_id, method, path, status_code, ip_address, user_agent, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	// pgx does not implement LastInsertId.
	if s.dialect == DriverPostgres {
		if err := s.db.QueryRowxContext(ctx, s.q(q+" RETURNING id"), args...).Scan(&entry.ID); err != nil {
			return fmt.Errorf("insert audit log: %w", err)
		}
		return nil
	}

	result, err := s.db.ExecContext(ctx, s.q(q), args...)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get audit log id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListAuditLogs returns a page of audit records newest first, plus the total
// number of matching records. Limit is clamped to [1,1000].
func (s *Store) ListAuditLogs(ctx context.Context, f model.AuditFilter) ([]model.AuditLog, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.APIKeyID != "" {
		where = append(where, "api_key_id = ?")
		args = append(args, f.APIKeyID)
	}
	if f.Method != "" {
		where = append(where, "method = ?")
		args = append(args, strings.ToUpper(f.Method))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, s.q("SELECT COUNT(*) FROM audit_logs"+clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	limit := clampInt(f.Limit, 1, 1000)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + auditColumns + " FROM audit_logs" + clause + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, s.q(q), append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	logs := make([]model.AuditLog, len(rows))
	for i, r := range rows {
		logs[i] = r.toModel()
	}
	return logs, total, nil
}
