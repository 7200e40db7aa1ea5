package model

// Request and response bodies of the HTTP API that have no storage
// counterpart.

// RunRequest starts a pipeline run.
type RunRequest struct {
	ChannelID     string `json:"channel_id"`
	Topic         string `json:"topic"`
	BrandName     string `json:"brand_name,omitempty"`
	DryRun        bool   `json:"dry_run"`
	SkipMediaEdit bool   `json:"skip_media_edit"`
}

// RunAccepted is returned as soon as a run has been queued.
type RunAccepted struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	ChannelID string    `json:"channel_id"`
	Topic     string    `json:"topic"`
}

// RunStatusResponse is the compact progress view of a run.
type RunStatusResponse struct {
	RunID        string         `json:"run_id"`
	Status       RunStatus      `json:"status"`
	CurrentAgent *string        `json:"current_agent"`
	Errors       []string       `json:"errors"`
	Result       map[string]any `json:"result"`
}

// ChannelRequest creates or updates a channel. On update, only non-nil
// fields are applied.
type ChannelRequest struct {
	ChannelID        string  `json:"channel_id,omitempty"`
	Name             *string `json:"name,omitempty"`
	Category         *string `json:"category,omitempty"`
	Language         *string `json:"language,omitempty"`
	Description      *string `json:"description,omitempty"`
	YouTubeChannelID *string `json:"youtube_channel_id,omitempty"`
}

// ChannelList lists channels.
type ChannelList struct {
	Channels []ChannelInfo `json:"channels"`
	Total    int           `json:"total"`
}

// KeyRequest creates an API key.
type KeyRequest struct {
	Name        string   `json:"name"`
	Scopes      []string `json:"scopes,omitempty"`
	ExpiresDays *int     `json:"expires_days,omitempty"`
}

// KeyCreated carries the plaintext key. It is returned exactly once.
type KeyCreated struct {
	APIKey
	Key string `json:"key"`
}

// SessionResponse carries a dashboard session token.
type SessionResponse struct {
	Token     string `json:"session_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message   string `json:"message"`
	ChannelID string `json:"channel_id,omitempty"`
	KeyID     string `json:"key_id,omitempty"`
}
