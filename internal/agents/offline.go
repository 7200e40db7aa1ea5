// Package agents provides offline implementations of the pipeline
// collaborators. They derive every artifact from the channel settings and the
// topic without calling external providers, and are used when no provider is
// configured. There is no offline publisher: uploads always need a provider.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/pipeline"
)

// Narration speed used to estimate durations.
const wordsPerMinute = 150

// Offline returns the offline collaborators wired to a brand guide store.
func Offline(guides pipeline.BrandGuideStore) pipeline.Agents {
	return pipeline.Agents{
		BrandResearcher: Researcher{},
		ScriptWriter:    Writer{},
		SEOOptimizer:    SEO{},
		MediaGenerator:  MediaGenerator{},
		MediaEditor:     Editor{},
		Guides:          guides,
	}
}

// ---------------------------------------------------------------------------
// Brand research
// ---------------------------------------------------------------------------

// Researcher builds a brand guide from the channel profile.
type Researcher struct{}

func (Researcher) Research(ctx context.Context, channelID, brandName string, ch *model.ChannelSettings) (*model.BrandGuide, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := &model.BrandGuide{BrandName: brandName}
	category := "general"
	if ch != nil {
		if g.BrandName == "" {
			g.BrandName = ch.Channel.Name
		}
		if ch.Channel.Category != "" {
			category = ch.Channel.Category
		}
	}
	if g.BrandName == "" {
		g.BrandName = channelID
	}
	g.Tagline = fmt.Sprintf("%s, explained clearly", capitalize(category))
	g.TargetAudience = fmt.Sprintf("viewers interested in %s", category)
	g.ToneOfVoice = "friendly and informative"
	g.KeyMessages = []string{
		fmt.Sprintf("%s makes %s approachable", g.BrandName, category),
		"practical takeaways in every video",
	}
	g.ContentPillars = []string{category, "how-to", "news"}
	return g, nil
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// ---------------------------------------------------------------------------
// Script writing
// ---------------------------------------------------------------------------

// Writer produces a three-part script from the content plan.
type Writer struct{}

func (Writer) Write(ctx context.Context, plan pipeline.ContentPlan, guide *model.BrandGuide) (*pipeline.Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(plan.Topic)
	if topic == "" {
		return nil, fmt.Errorf("content plan has no topic")
	}

	sections := []pipeline.ScriptSection{
		{
			Heading: "Intro",
			Body:    fmt.Sprintf("Welcome to %s. Today we look at %s.", guide.BrandName, topic),
		},
		{
			Heading:     "Main",
			Body:        fmt.Sprintf("Here is what you need to know about %s, step by step.", topic),
			VisualNotes: "b-roll matching each key point",
		},
		{
			Heading: "Outro",
			Body:    fmt.Sprintf("Thanks for watching %s. Subscribe for more.", guide.BrandName),
		},
	}
	if len(plan.TargetKeywords) > 0 {
		sections[1].Body += " We also cover " + strings.Join(plan.TargetKeywords, ", ") + "."
	}

	var parts []string
	total := 0
	for i := range sections {
		sections[i].DurationSec = estimateSeconds(sections[i].Body)
		total += sections[i].DurationSec
		parts = append(parts, sections[i].Body)
	}
	return &pipeline.Script{
		Title:       topic,
		Sections:    sections,
		FullText:    strings.Join(parts, "\n\n"),
		DurationSec: total,
	}, nil
}

func estimateSeconds(text string) int {
	words := len(strings.Fields(text))
	secs := words * 60 / wordsPerMinute
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ---------------------------------------------------------------------------
// SEO
// ---------------------------------------------------------------------------

// SEO derives keywords from the topic and builds upload metadata.
type SEO struct{}

const maxTitleLen = 100

func (SEO) Optimize(ctx context.Context, topic string, script *pipeline.Script, guide *model.BrandGuide) (*pipeline.SEOAnalysis, *pipeline.VideoMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	primary := keywords(topic)
	secondary := dedupe(append([]string{strings.ToLower(guide.BrandName)}, guide.ContentPillars...), primary)

	title := script.Title
	if guide.BrandName != "" {
		title = fmt.Sprintf("%s | %s", script.Title, guide.BrandName)
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}

	meta := &pipeline.VideoMetadata{
		Title:       title,
		Description: script.FullText,
		Tags:        dedupe(append(append([]string{}, primary...), secondary...), nil),
		CategoryID:  "22",
		Language:    "ko",
	}
	return &pipeline.SEOAnalysis{PrimaryKeywords: primary, SecondaryKeywords: secondary}, meta, nil
}

func keywords(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, w := range words {
		if len([]rune(w)) > 2 {
			out = append(out, w)
		}
	}
	return dedupe(out, nil)
}

// dedupe drops empty and repeated entries, and entries present in exclude.
func dedupe(in, exclude []string) []string {
	seen := make(map[string]bool, len(in)+len(exclude))
	for _, e := range exclude {
		seen[e] = true
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// MediaGenerator writes the narration text that a speech provider would
// synthesize, and reports it as the audio source.
type MediaGenerator struct{}

func (MediaGenerator) Generate(ctx context.Context, script *pipeline.Script, _ *model.BrandGuide, dir string) (*pipeline.MediaAssets, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, "narration.txt")
	if err := os.WriteFile(path, []byte(script.FullText), 0644); err != nil {
		return nil, fmt.Errorf("write narration: %w", err)
	}
	return &pipeline.MediaAssets{AudioPath: path, DurationSec: float64(script.DurationSec)}, nil
}

// Editor writes an edit decision list next to the requested output path
// instead of rendering video.
type Editor struct{}

func (Editor) Edit(ctx context.Context, p pipeline.EditProject) (*pipeline.EditResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.OutputPath == "" {
		return nil, fmt.Errorf("edit project has no output path")
	}
	if err := os.MkdirAll(filepath.Dir(p.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal edit list: %w", err)
	}
	out := strings.TrimSuffix(p.OutputPath, filepath.Ext(p.OutputPath)) + ".edl.json"
	if err := os.WriteFile(out, b, 0644); err != nil {
		return nil, fmt.Errorf("write edit list: %w", err)
	}
	return &pipeline.EditResult{OutputPath: out, Resolution: "1920x1080"}, nil
}
