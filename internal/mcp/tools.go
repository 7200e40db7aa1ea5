package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/run"
)

// registerTools registers all pipeline MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Channel tools -----

	srv.AddTool(
		mcp.NewTool("yaa_list_channels",
			mcp.WithDescription(
				"List all registered YouTube channels with their name, category, language "+
					"and whether a brand guide has been researched. Use this first to find "+
					"a channel_id before starting a run.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListChannels,
	)

	srv.AddTool(
		mcp.NewTool("yaa_get_channel",
			mcp.WithDescription("Get the settings of one channel."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("channel_id",
				mcp.Required(),
				mcp.Description("Channel identifier (letters, digits, '-' and '_')"),
			),
		),
		s.handleGetChannel,
	)

	// ----- Run tools -----

	srv.AddTool(
		mcp.NewTool("yaa_start_run",
			mcp.WithDescription(
				"Start a content pipeline run for a channel: brand research, script writing, "+
					"SEO optimization, media generation, media editing and publishing. Returns "+
					"immediately with a pending run; poll yaa_get_run for progress. Use dry_run "+
					"to stop before anything is uploaded.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("channel_id",
				mcp.Required(),
				mcp.Description("Channel to produce content for"),
			),
			mcp.WithString("topic",
				mcp.Required(),
				mcp.Description("Video topic, at most 500 characters"),
			),
			mcp.WithString("brand_name",
				mcp.Description("Brand to research when the channel has no brand guide yet"),
			),
			mcp.WithBoolean("dry_run",
				mcp.Description("Skip the publishing step"),
			),
			mcp.WithBoolean("skip_media_edit",
				mcp.Description("Skip the media editing step"),
			),
		),
		s.handleStartRun,
	)

	srv.AddTool(
		mcp.NewTool("yaa_get_run",
			mcp.WithDescription(
				"Get a pipeline run, including its status, current step, accumulated errors "+
					"and the result once it has completed.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("run_id",
				mcp.Required(),
				mcp.Description("Run identifier returned by yaa_start_run"),
			),
		),
		s.handleGetRun,
	)

	srv.AddTool(
		mcp.NewTool("yaa_list_runs",
			mcp.WithDescription("List pipeline runs, newest first, optionally filtered by channel and status."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("channel_id",
				mcp.Description("Only runs for this channel"),
			),
			mcp.WithString("status",
				mcp.Description("Only runs in this status"),
				mcp.Enum(string(model.RunPending), string(model.RunRunning), string(model.RunCompleted), string(model.RunFailed)),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of runs to return (default 20, max 100)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of runs to skip for pagination"),
			),
		),
		s.handleListRuns,
	)

	srv.AddTool(
		mcp.NewTool("yaa_dashboard_summary",
			mcp.WithDescription("Run counts by status, average run duration and the most recent runs."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Number of recent runs to include (default 5)"),
			),
		),
		s.handleDashboardSummary,
	)
}

// handleListChannels returns every visible channel.
func (s *MCPServer) handleListChannels(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	ids, err := s.channels.List()
	if err != nil {
		return toolError("Failed to list channels: %v", err)
	}

	infos := make([]model.ChannelInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.channels.Info(id)
		if err != nil {
			s.logger.Warn("skipping unreadable channel", "channel_id", id, "error", err)
			continue
		}
		infos = append(infos, *info)
	}
	return successJSON(model.ChannelList{Channels: infos, Total: len(infos)})
}

// handleGetChannel returns the full settings of one channel.
func (s *MCPServer) handleGetChannel(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireString(request, "channel_id")
	if err != nil {
		return toolError("%v", err)
	}
	settings, err := s.channels.Resolve(id)
	if err != nil {
		return toolError("Channel %q: %v", id, err)
	}
	return successJSON(settings)
}

// handleStartRun creates a run and hands it to the executor.
func (s *MCPServer) handleStartRun(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	channelID, err := requireString(request, "channel_id")
	if err != nil {
		return toolError("%v", err)
	}
	topic, err := requireString(request, "topic")
	if err != nil {
		return toolError("%v", err)
	}

	r, err := s.runs.CreateRun(ctx, run.CreateParams{
		ChannelID:     channelID,
		Topic:         topic,
		BrandName:     optionalString(request, "brand_name"),
		DryRun:        optionalBool(request, "dry_run"),
		SkipMediaEdit: optionalBool(request, "skip_media_edit"),
	})
	if err != nil {
		return toolError("Failed to start run: %v", err)
	}

	s.logger.Info("run started via mcp", "run_id", r.ID, "channel_id", r.ChannelID)
	return successJSON(model.RunAccepted{
		RunID:     r.ID,
		Status:    r.Status,
		ChannelID: r.ChannelID,
		Topic:     r.Topic,
	})
}

// handleGetRun returns one run.
func (s *MCPServer) handleGetRun(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireString(request, "run_id")
	if err != nil {
		return toolError("%v", err)
	}
	r, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return toolError("Run %q: %v", id, err)
	}
	return successJSON(r)
}

// handleListRuns returns a page of runs.
func (s *MCPServer) handleListRuns(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	f := model.RunFilter{
		ChannelID: optionalString(request, "channel_id"),
		Status:    model.RunStatus(optionalString(request, "status")),
		Limit:     clamp(optionalInt(request, "limit", run.DefaultListLimit), 1, run.MaxListLimit),
		Offset:    max(optionalInt(request, "offset", 0), 0),
	}
	runs, total, err := s.runs.ListRuns(ctx, f)
	if err != nil {
		return toolError("Failed to list runs: %v", err)
	}
	if runs == nil {
		runs = []*model.PipelineRun{}
	}
	return successJSON(model.ListResponse[*model.PipelineRun]{
		Items:  runs,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// handleDashboardSummary returns run statistics and recent runs.
func (s *MCPServer) handleDashboardSummary(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", run.DefaultSummaryLimit), 1, run.MaxListLimit)
	summary, err := s.runs.Summary(ctx, limit)
	if err != nil {
		return toolError("Failed to build summary: %v", err)
	}
	return successJSON(summary)
}
