package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

const (
	channelsURI      = "yaa://channels"
	brandGuidePrefix = "yaa://brand-guide/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// yaa://channels: every registered channel
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			channelsURI,
			"Registered Channels",
			mcp.WithResourceDescription("All registered YouTube channels with their profile fields."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleChannelsResource,
	)

	// -------------------------------------------------------------------
	// yaa://brand-guide/{channel_id}: researched brand guide (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			brandGuidePrefix+"{channel_id}",
			"Brand Guide",
			mcp.WithTemplateDescription(
				"The brand guide researched for a channel: tagline, audience, tone of voice "+
					"and content pillars.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleBrandGuideResource,
	)
}

// handleChannelsResource returns a JSON list of all channels.
func (s *MCPServer) handleChannelsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	ids, err := s.channels.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	infos := make([]model.ChannelInfo, 0, len(ids))
	for _, id := range ids {
		if info, err := s.channels.Info(id); err == nil {
			infos = append(infos, *info)
		}
	}
	return jsonContents(channelsURI, infos)
}

// handleBrandGuideResource returns the brand guide of one channel.
func (s *MCPServer) handleBrandGuideResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	id := strings.TrimPrefix(uri, brandGuidePrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid brand guide URI %q: expected %s{channel_id}", uri, brandGuidePrefix)
	}

	guide, err := s.channels.LoadBrandGuide(id)
	if err != nil {
		return nil, fmt.Errorf("brand guide for %q: %w", id, err)
	}
	return jsonContents(uri, guide)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
