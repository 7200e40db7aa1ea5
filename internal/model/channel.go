package model

// ChannelSettings is the parsed config.yaml of a channel directory.
type ChannelSettings struct {
	Channel ChannelProfile `json:"channel" yaml:"channel"`
	SEO     map[string]any `json:"seo,omitempty" yaml:"seo,omitempty"`
	Editing map[string]any `json:"editing,omitempty" yaml:"editing,omitempty"`
}

// ChannelProfile holds the identifying attributes of a channel.
type ChannelProfile struct {
	Name             string `json:"name" yaml:"name"`
	Category         string `json:"category" yaml:"category"`
	Language         string `json:"language" yaml:"language"`
	Description      string `json:"description,omitempty" yaml:"description,omitempty"`
	YouTubeChannelID string `json:"youtube_channel_id,omitempty" yaml:"youtube_channel_id,omitempty"`
}

// ChannelInfo is the API view of a registered channel.
type ChannelInfo struct {
	ChannelID     string `json:"channel_id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Language      string `json:"language"`
	Description   string `json:"description,omitempty"`
	HasBrandGuide bool   `json:"has_brand_guide"`
}

// BrandGuide is the researched brand identity for a channel.
type BrandGuide struct {
	BrandName      string   `json:"brand_name" yaml:"brand_name"`
	Tagline        string   `json:"tagline,omitempty" yaml:"tagline,omitempty"`
	TargetAudience string   `json:"target_audience,omitempty" yaml:"target_audience,omitempty"`
	ToneOfVoice    string   `json:"tone_of_voice,omitempty" yaml:"tone_of_voice,omitempty"`
	KeyMessages    []string `json:"key_messages,omitempty" yaml:"key_messages,omitempty"`
	ColorPalette   []string `json:"color_palette,omitempty" yaml:"color_palette,omitempty"`
	Competitors    []string `json:"competitors,omitempty" yaml:"competitors,omitempty"`
	ContentPillars []string `json:"content_pillars,omitempty" yaml:"content_pillars,omitempty"`
}
