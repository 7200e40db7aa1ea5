package store

import (
	"fmt"
	"strings"
)

func (s *Store) migrations() []string {
	switch s.dialect {
	case DriverPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS pipeline_runs (
				id VARCHAR(64) PRIMARY KEY,
				channel_id VARCHAR(255) NOT NULL,
				topic TEXT NOT NULL,
				brand_name TEXT NOT NULL DEFAULT '',
				dry_run BOOLEAN NOT NULL DEFAULT FALSE,
				skip_media_edit BOOLEAN NOT NULL DEFAULT FALSE,
				status VARCHAR(16) NOT NULL,
				current_step VARCHAR(64),
				result_json TEXT,
				errors_json TEXT NOT NULL DEFAULT '[]',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				completed_at TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_channel ON pipeline_runs(channel_id)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_created ON pipeline_runs(created_at)`,

			`CREATE TABLE IF NOT EXISTS api_keys (
				id VARCHAR(64) PRIMARY KEY,
				key_hash VARCHAR(64) UNIQUE NOT NULL,
				key_prefix VARCHAR(16) NOT NULL,
				name VARCHAR(255) NOT NULL,
				scopes VARCHAR(64) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ,
				last_used_at TIMESTAMPTZ
			)`,

			`CREATE TABLE IF NOT EXISTS audit_logs (
				id BIGSERIAL PRIMARY KEY,
				api_key_id VARCHAR(64),
				method VARCHAR(10) NOT NULL,
				path VARCHAR(2048) NOT NULL,
				status_code INTEGER NOT NULL,
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				user_agent VARCHAR(500) NOT NULL DEFAULT '',
				duration_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_key ON audit_logs(api_key_id)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at)`,
		}

	case DriverMySQL:
		// MySQL has no CREATE INDEX IF NOT EXISTS; indexes are declared inline.
		return []string{
			`CREATE TABLE IF NOT EXISTS pipeline_runs (
				id VARCHAR(64) PRIMARY KEY,
				channel_id VARCHAR(255) NOT NULL,
				topic TEXT NOT NULL,
				brand_name VARCHAR(255) NOT NULL DEFAULT '',
				dry_run BOOLEAN NOT NULL DEFAULT FALSE,
				skip_media_edit BOOLEAN NOT NULL DEFAULT FALSE,
				status VARCHAR(16) NOT NULL,
				current_step VARCHAR(64) NULL,
				result_json LONGTEXT NULL,
				errors_json LONGTEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				completed_at DATETIME(6) NULL,
				INDEX idx_runs_channel (channel_id),
				INDEX idx_runs_status (status),
				INDEX idx_runs_created (created_at)
			)`,

			`CREATE TABLE IF NOT EXISTS api_keys (
				id VARCHAR(64) PRIMARY KEY,
				key_hash VARCHAR(64) NOT NULL UNIQUE,
				key_prefix VARCHAR(16) NOT NULL,
				name VARCHAR(255) NOT NULL,
				scopes VARCHAR(64) NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at DATETIME(6) NOT NULL,
				expires_at DATETIME(6) NULL,
				last_used_at DATETIME(6) NULL
			)`,

			`CREATE TABLE IF NOT EXISTS audit_logs (
				id BIGINT AUTO_INCREMENT PRIMARY KEY,
				api_key_id VARCHAR(64) NULL,
				method VARCHAR(10) NOT NULL,
				path VARCHAR(2048) NOT NULL,
				status_code INT NOT NULL,
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				user_agent VARCHAR(500) NOT NULL DEFAULT '',
				duration_ms DOUBLE NOT NULL DEFAULT 0,
				created_at DATETIME(6) NOT NULL,
				INDEX idx_audit_key (api_key_id),
				INDEX idx_audit_created (created_at)
			)`,
		}
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			brand_name TEXT NOT NULL DEFAULT '',
			dry_run INTEGER NOT NULL DEFAULT 0,
			skip_media_edit INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			current_step TEXT,
			result_json TEXT,
			errors_json TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_channel ON pipeline_runs(channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON pipeline_runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			key_hash TEXT UNIQUE NOT NULL,
			key_prefix TEXT NOT NULL,
			name TEXT NOT NULL,
			scopes TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			expires_at DATETIME,
			last_used_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS audit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			api_key_id TEXT,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			ip_address TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			duration_ms REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_key ON audit_logs(api_key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_logs(created_at)`,
	}
}

func (s *Store) migrate() error {
	for _, m := range s.migrations() {
		if _, err := s.db.Exec(m); err != nil {
			// Re-running an ALTER TABLE ADD COLUMN is a no-op.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
