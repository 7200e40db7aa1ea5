package pipeline

import (
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// ContentStatus is the editorial state of the content a run produces. It is
// separate from the run status: a dry run completes with approved content.
type ContentStatus string

const (
	ContentDraft     ContentStatus = "draft"
	ContentApproved  ContentStatus = "approved"
	ContentPublished ContentStatus = "published"
	ContentFailed    ContentStatus = "failed"
)

// ContentPlan is the brief handed to the script writer.
type ContentPlan struct {
	ChannelID      string   `json:"channel_id"`
	Topic          string   `json:"topic"`
	ContentType    string   `json:"content_type"`
	TargetKeywords []string `json:"target_keywords,omitempty"`
}

// ScriptSection is one segment of a script.
type ScriptSection struct {
	Heading     string `json:"heading"`
	Body        string `json:"body"`
	VisualNotes string `json:"visual_notes,omitempty"`
	DurationSec int    `json:"duration_seconds"`
}

// Script is the narration produced by the script writer.
type Script struct {
	Title       string          `json:"title"`
	Sections    []ScriptSection `json:"sections"`
	FullText    string          `json:"full_text"`
	DurationSec int             `json:"estimated_duration_seconds"`
}

// SEOAnalysis holds the keyword research for a script.
type SEOAnalysis struct {
	PrimaryKeywords   []string `json:"primary_keywords"`
	SecondaryKeywords []string `json:"secondary_keywords"`
}

// VideoMetadata is what gets attached to the uploaded video.
type VideoMetadata struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	CategoryID    string   `json:"category_id"`
	ThumbnailPath string   `json:"thumbnail_path,omitempty"`
	Language      string   `json:"language"`
}

// MediaAssets are the generated narration audio and still images.
type MediaAssets struct {
	AudioPath   string   `json:"audio_path"`
	DurationSec float64  `json:"duration_seconds"`
	ImagePaths  []string `json:"image_paths,omitempty"`
}

// EditProject describes one render job for the media editor.
type EditProject struct {
	AudioTracks []string       `json:"audio_tracks"`
	Images      []string       `json:"images"`
	OutputPath  string         `json:"output_path"`
	Editing     map[string]any `json:"editing,omitempty"`
}

// EditResult is the rendered video.
type EditResult struct {
	OutputPath  string  `json:"output_path"`
	DurationSec float64 `json:"duration_seconds"`
	Resolution  string  `json:"resolution"`
}

// PublishRequest is an upload request for the publisher.
type PublishRequest struct {
	VideoPath     string        `json:"video_path"`
	Metadata      VideoMetadata `json:"metadata"`
	ChannelID     string        `json:"channel_id"`
	PrivacyStatus string        `json:"privacy_status"`
}

// PublishResult is the outcome of an upload.
type PublishResult struct {
	VideoID  string        `json:"video_id"`
	VideoURL string        `json:"video_url"`
	Status   ContentStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
}

// State is the accumulated run state shared by the steps. Each step reads the
// outputs of the steps before it and fills in its own.
type State struct {
	RunID         string
	ChannelID     string
	Topic         string
	BrandName     string
	DryRun        bool
	SkipMediaEdit bool
	OutputDir     string

	Channel *model.ChannelSettings

	Plan          *ContentPlan
	BrandGuide    *model.BrandGuide
	Script        *Script
	SEO           *SEOAnalysis
	Metadata      *VideoMetadata
	Media         *MediaAssets
	Edit          *EditResult
	Publish       *PublishResult
	ContentStatus ContentStatus
}

// NewState builds the initial state for a run.
func NewState(run *model.PipelineRun, channel *model.ChannelSettings, outputDir string) *State {
	return &State{
		RunID:         run.ID,
		ChannelID:     run.ChannelID,
		Topic:         run.Topic,
		BrandName:     run.BrandName,
		DryRun:        run.DryRun,
		SkipMediaEdit: run.SkipMediaEdit,
		OutputDir:     outputDir,
		Channel:       channel,
		ContentStatus: ContentDraft,
	}
}
