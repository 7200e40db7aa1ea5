package pipeline

import (
	"context"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// BrandResearcher produces a brand guide for a channel.
type BrandResearcher interface {
	Research(ctx context.Context, channelID, brandName string, channel *model.ChannelSettings) (*model.BrandGuide, error)
}

// ScriptWriter turns a content plan into a narration script.
type ScriptWriter interface {
	Write(ctx context.Context, plan ContentPlan, guide *model.BrandGuide) (*Script, error)
}

// SEOOptimizer researches keywords and builds upload metadata.
type SEOOptimizer interface {
	Optimize(ctx context.Context, topic string, script *Script, guide *model.BrandGuide) (*SEOAnalysis, *VideoMetadata, error)
}

// MediaGenerator synthesizes narration audio and images for a script.
type MediaGenerator interface {
	Generate(ctx context.Context, script *Script, guide *model.BrandGuide, outputDir string) (*MediaAssets, error)
}

// MediaEditor renders the final video.
type MediaEditor interface {
	Edit(ctx context.Context, project EditProject) (*EditResult, error)
}

// Publisher uploads a rendered video.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// BrandGuideStore persists brand guides per channel so later runs can skip
// research.
type BrandGuideStore interface {
	HasBrandGuide(channelID string) bool
	LoadBrandGuide(channelID string) (*model.BrandGuide, error)
	SaveBrandGuide(channelID string, guide *model.BrandGuide) error
}

// Agents bundles the step collaborators. A nil collaborator makes its step
// fail with ErrAgentNotRegistered.
type Agents struct {
	BrandResearcher BrandResearcher
	ScriptWriter    ScriptWriter
	SEOOptimizer    SEOOptimizer
	MediaGenerator  MediaGenerator
	MediaEditor     MediaEditor
	Publisher       Publisher
	Guides          BrandGuideStore
}
