package model

import "time"

// AuditLog is one record of an inbound API request.
type AuditLog struct {
	ID         int64     `json:"id"`
	APIKeyID   *string   `json:"api_key_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	APIKeyID string
	Method   string
	Limit    int
	Offset   int
}
