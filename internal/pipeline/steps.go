package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// ErrAgentNotRegistered is returned by a step whose collaborator is nil.
var ErrAgentNotRegistered = errors.New("is not registered")

func notRegistered(agent string) error {
	return fmt.Errorf("%s %w", agent, ErrAgentNotRegistered)
}

// Step is one named stage of the pipeline. Run returns the output recorded
// under the step name in the run result. When Skip reports true the step is
// recorded as skipped with the given reason and Run is not called.
type Step struct {
	Name model.StepName
	Run  func(ctx context.Context, st *State) (any, error)
	Skip func(st *State) (reason string, skip bool)
}

// Skipped is the result recorded for a step that did not run.
type Skipped struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

// DefaultSteps wires the six content steps to the given collaborators.
func DefaultSteps(a Agents, logger *slog.Logger) []Step {
	if logger == nil {
		logger = slog.Default()
	}
	return []Step{
		{Name: model.StepBrandResearch, Run: brandResearch(a, logger)},
		{Name: model.StepScriptWriting, Run: scriptWriting(a)},
		{Name: model.StepSEOOptimization, Run: seoOptimization(a)},
		{Name: model.StepMediaGeneration, Run: mediaGeneration(a)},
		{
			Name: model.StepMediaEditing,
			Run:  mediaEditing(a),
			Skip: func(st *State) (string, bool) { return "skip_media_edit", st.SkipMediaEdit },
		},
		{
			Name: model.StepPublishing,
			Run:  publishing(a),
			Skip: func(st *State) (string, bool) {
				if st.DryRun {
					st.ContentStatus = ContentApproved
				}
				return "dry_run", st.DryRun
			},
		},
	}
}

type brandResearchOutput struct {
	Source     string            `json:"source"`
	BrandGuide *model.BrandGuide `json:"brand_guide"`
}

func brandResearch(a Agents, logger *slog.Logger) func(context.Context, *State) (any, error) {
	return func(ctx context.Context, st *State) (any, error) {
		if st.BrandGuide != nil {
			return brandResearchOutput{Source: "state", BrandGuide: st.BrandGuide}, nil
		}

		if a.Guides != nil && a.Guides.HasBrandGuide(st.ChannelID) {
			guide, err := a.Guides.LoadBrandGuide(st.ChannelID)
			if err != nil {
				return nil, fmt.Errorf("load brand guide: %w", err)
			}
			st.BrandGuide = guide
			return brandResearchOutput{Source: "channel", BrandGuide: guide}, nil
		}

		if a.BrandResearcher == nil {
			return nil, notRegistered("brand_researcher")
		}
		guide, err := a.BrandResearcher.Research(ctx, st.ChannelID, st.BrandName, st.Channel)
		if err != nil {
			return nil, err
		}
		st.BrandGuide = guide

		if a.Guides != nil {
			if err := a.Guides.SaveBrandGuide(st.ChannelID, guide); err != nil {
				// The run can still use the guide; only the cache is lost.
				logger.Warn("save brand guide failed", "run_id", st.RunID, "channel_id", st.ChannelID, "error", err)
			}
		}
		return brandResearchOutput{Source: "research", BrandGuide: guide}, nil
	}
}

func scriptWriting(a Agents) func(context.Context, *State) (any, error) {
	return func(ctx context.Context, st *State) (any, error) {
		if a.ScriptWriter == nil {
			return nil, notRegistered("script_writer")
		}
		if st.BrandGuide == nil {
			return nil, errors.New("brand guide missing; brand research must run first")
		}

		plan := st.Plan
		if plan == nil {
			plan = &ContentPlan{ChannelID: st.ChannelID, Topic: st.Topic, ContentType: "long_form"}
			if st.Channel != nil {
				plan.TargetKeywords = stringList(st.Channel.SEO["primary_keywords"])
			}
		}
		script, err := a.ScriptWriter.Write(ctx, *plan, st.BrandGuide)
		if err != nil {
			return nil, err
		}
		st.Plan = plan
		st.Script = script
		return script, nil
	}
}

type seoOutput struct {
	Analysis *SEOAnalysis   `json:"analysis"`
	Metadata *VideoMetadata `json:"metadata"`
}

func seoOptimization(a Agents) func(context.Context, *State) (any, error) {
	return func(ctx context.Context, st *State) (any, error) {
		if a.SEOOptimizer == nil {
			return nil, notRegistered("seo_optimizer")
		}
		if st.Script == nil || st.BrandGuide == nil {
			return nil, errors.New("script or brand guide missing")
		}
		analysis, meta, err := a.SEOOptimizer.Optimize(ctx, st.Topic, st.Script, st.BrandGuide)
		if err != nil {
			return nil, err
		}
		st.SEO = analysis
		st.Metadata = meta
		return seoOutput{Analysis: analysis, Metadata: meta}, nil
	}
}

func mediaGeneration(a Agents) func(context.Context, *State) (any, error) {
	return func(ctx context.Context, st *State) (any, error) {
		if a.MediaGenerator == nil {
			return nil, notRegistered("media_generator")
		}
		if st.Script == nil || st.BrandGuide == nil {
			return nil, errors.New("script or brand guide missing")
		}
		assets, err := a.MediaGenerator.Generate(ctx, st.Script, st.BrandGuide, st.runDir())
		if err != nil {
			return nil, err
		}
		st.Media = assets
		return assets, nil
	}
}

func mediaEditing(a Agents) func(context.Context, *State) (any, error) {
	return func(ctx context.Context, st *State) (any, error) {
		if a.MediaEditor == nil {
			return nil, notRegistered("media_editor")
		}
		project := EditProject{OutputPath: filepath.Join(st.runDir(), "final.mp4")}
		if st.Media != nil {
			if st.Media.AudioPath != "" {
				project.AudioTracks = append(project.AudioTracks, st.Media.AudioPath)
			}
			project.Images = st.Media.ImagePaths
		}
		if st.Channel != nil {
			project.Editing = st.Channel.Editing
		}
		result, err := a.MediaEditor.Edit(ctx, project)
		if err != nil {
			return nil, err
		}
		st.Edit = result
		return result, nil
	}
}

func publishing(a Agents) func(context.Context, *State) (any, error) {
	return func(ctx context.Context, st *State) (any, error) {
		if a.Publisher == nil {
			return nil, notRegistered("publisher")
		}
		if st.Metadata == nil {
			return nil, errors.New("video metadata missing")
		}
		req := PublishRequest{
			Metadata:      *st.Metadata,
			ChannelID:     st.ChannelID,
			PrivacyStatus: "private",
		}
		if st.Edit != nil {
			req.VideoPath = st.Edit.OutputPath
		}
		result, err := a.Publisher.Publish(ctx, req)
		if err != nil {
			return nil, err
		}
		st.Publish = result
		if result.Status != ContentPublished {
			st.ContentStatus = ContentFailed
			return nil, fmt.Errorf("upload rejected: %s", result.Error)
		}
		st.ContentStatus = ContentPublished
		return result, nil
	}
}

func (st *State) runDir() string {
	dir := st.OutputDir
	if dir == "" {
		dir = "output"
	}
	return filepath.Join(dir, st.ChannelID, st.RunID)
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
