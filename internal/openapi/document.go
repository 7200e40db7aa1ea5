// Package openapi builds the OpenAPI document for the yaa HTTP API.
package openapi

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/VetEngineer/Youtube-AI-Agent-Agency/internal/model"
)

// Options controls the generated document.
type Options struct {
	BaseURL      string
	Version      string
	APIKeyHeader string
}

type route struct {
	method  string
	path    string
	tag     string
	id      string
	summary string
	scopes  []model.Scope // all required; empty for unauthenticated routes
	body    any
	status  int
	result  any
	params  openapi3.Parameters
}

func pathParam(name string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema())}
}

func intQuery(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter(name).
			WithDescription(description).
			WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
	}
}

func stringQuery(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewQueryParameter(name).
			WithDescription(description).
			WithSchema(openapi3.NewStringSchema()),
	}
}

func routes() []route {
	page := openapi3.Parameters{
		intQuery("limit", "Maximum number of items to return (1-100)."),
		intQuery("offset", "Number of items to skip."),
	}
	runFilters := append(openapi3.Parameters{
		stringQuery("channel_id", "Only runs for this channel."),
		stringQuery("status", "Only runs in this status (pending, running, completed, failed)."),
	}, page...)
	auditFilters := openapi3.Parameters{
		stringQuery("api_key_id", "Only requests made with this key."),
		stringQuery("method", "Only requests with this HTTP method."),
		intQuery("limit", "Maximum number of entries to return (1-1000)."),
		intQuery("offset", "Number of entries to skip."),
	}

	return []route{
		{method: http.MethodGet, path: "/api/v1/health", tag: "system", id: "health", summary: "Liveness check",
			status: http.StatusOK, result: map[string]string{}},
		{method: http.MethodPost, path: "/api/v1/auth/session", tag: "auth", id: "createSession",
			summary: "Exchange an API key for a dashboard session token", scopes: []model.Scope{model.ScopeRead},
			status: http.StatusOK, result: model.SessionResponse{}},

		{method: http.MethodPost, path: "/api/v1/pipeline/run", tag: "pipeline", id: "startRun",
			summary: "Start a pipeline run", scopes: []model.Scope{model.ScopeRead, model.ScopeWrite},
			body: model.RunRequest{}, status: http.StatusOK, result: model.RunAccepted{}},
		{method: http.MethodGet, path: "/api/v1/pipeline/runs", tag: "pipeline", id: "listRuns",
			summary: "List pipeline runs, newest first", scopes: []model.Scope{model.ScopeRead}, params: runFilters,
			status: http.StatusOK, result: model.ListResponse[*model.PipelineRun]{}},
		{method: http.MethodGet, path: "/api/v1/pipeline/runs/{run_id}", tag: "pipeline", id: "getRun",
			summary: "Get a pipeline run", scopes: []model.Scope{model.ScopeRead}, params: openapi3.Parameters{pathParam("run_id")},
			status: http.StatusOK, result: model.PipelineRun{}},
		{method: http.MethodGet, path: "/api/v1/status/{run_id}", tag: "pipeline", id: "getRunStatus",
			summary: "Get the progress of a pipeline run", scopes: []model.Scope{model.ScopeRead}, params: openapi3.Parameters{pathParam("run_id")},
			status: http.StatusOK, result: model.RunStatusResponse{}},
		{method: http.MethodGet, path: "/api/v1/dashboard/summary", tag: "dashboard", id: "dashboardSummary",
			summary: "Run statistics and recent runs", scopes: []model.Scope{model.ScopeRead},
			params: openapi3.Parameters{intQuery("limit", "Number of recent runs (default 5).")},
			status: http.StatusOK, result: model.DashboardSummary{}},

		{method: http.MethodGet, path: "/api/v1/channels/", tag: "channels", id: "listChannels",
			summary: "List channels", scopes: []model.Scope{model.ScopeRead}, status: http.StatusOK, result: model.ChannelList{}},
		{method: http.MethodPost, path: "/api/v1/channels/", tag: "channels", id: "createChannel",
			summary: "Create a channel from the template", scopes: []model.Scope{model.ScopeAdmin},
			body: model.ChannelRequest{}, status: http.StatusCreated, result: model.ChannelInfo{}},
		{method: http.MethodPost, path: "/api/v1/channels/{channel_id}", tag: "channels", id: "createChannelWithID",
			summary: "Create a channel under the given ID", scopes: []model.Scope{model.ScopeAdmin}, params: openapi3.Parameters{pathParam("channel_id")},
			body: model.ChannelRequest{}, status: http.StatusCreated, result: model.ChannelInfo{}},
		{method: http.MethodGet, path: "/api/v1/channels/{channel_id}", tag: "channels", id: "getChannel",
			summary: "Get a channel", scopes: []model.Scope{model.ScopeRead}, params: openapi3.Parameters{pathParam("channel_id")},
			status: http.StatusOK, result: model.ChannelInfo{}},
		{method: http.MethodPatch, path: "/api/v1/channels/{channel_id}", tag: "channels", id: "updateChannel",
			summary: "Update channel settings", scopes: []model.Scope{model.ScopeAdmin}, params: openapi3.Parameters{pathParam("channel_id")},
			body: model.ChannelRequest{}, status: http.StatusOK, result: model.ChannelInfo{}},
		{method: http.MethodDelete, path: "/api/v1/channels/{channel_id}", tag: "channels", id: "deleteChannel",
			summary: "Delete a channel", scopes: []model.Scope{model.ScopeAdmin}, params: openapi3.Parameters{pathParam("channel_id")},
			status: http.StatusOK, result: model.MessageResponse{}},

		{method: http.MethodGet, path: "/api/v1/admin/api-keys", tag: "admin", id: "listAPIKeys",
			summary: "List API keys", scopes: []model.Scope{model.ScopeAdmin},
			params: openapi3.Parameters{stringQuery("include_inactive", "Include revoked keys (true/false).")},
			status: http.StatusOK, result: model.ListResponse[*model.APIKey]{}},
		{method: http.MethodPost, path: "/api/v1/admin/api-keys", tag: "admin", id: "createAPIKey",
			summary: "Create an API key; the plaintext key is only returned here", scopes: []model.Scope{model.ScopeAdmin},
			body: model.KeyRequest{}, status: http.StatusCreated, result: model.KeyCreated{}},
		{method: http.MethodDelete, path: "/api/v1/admin/api-keys/{key_id}", tag: "admin", id: "revokeAPIKey",
			summary: "Revoke an API key", scopes: []model.Scope{model.ScopeAdmin}, params: openapi3.Parameters{pathParam("key_id")},
			status: http.StatusOK, result: model.MessageResponse{}},
		{method: http.MethodGet, path: "/api/v1/admin/audit-logs", tag: "admin", id: "listAuditLogs",
			summary: "List audit log entries", scopes: []model.Scope{model.ScopeAdmin}, params: auditFilters,
			status: http.StatusOK, result: model.ListResponse[model.AuditLog]{}},
	}
}

// Build generates the OpenAPI 3.1 document for the HTTP API.
func Build(opts Options) (*openapi3.T, error) {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = "X-API-Key"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "YouTube AI Agent Agency API",
			Description: "Start content pipeline runs, follow their progress and manage channels and API keys.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: opts.APIKeyHeader,
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	errSchema, err := openapi3gen.NewSchemaRefForValue(model.ErrorResponse{}, doc.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("error schema: %w", err)
	}
	doc.Components.Schemas["ErrorResponse"] = errSchema

	doc.Paths = openapi3.NewPaths()
	for _, rt := range routes() {
		op, err := operation(doc, rt)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", rt.method, rt.path, err)
		}
		item := doc.Paths.Value(rt.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(rt.path, item)
		}
		item.SetOperation(rt.method, op)
	}
	return doc, nil
}

func operation(doc *openapi3.T, rt route) (*openapi3.Operation, error) {
	result, err := openapi3gen.NewSchemaRefForValue(rt.result, doc.Components.Schemas)
	if err != nil {
		return nil, err
	}

	op := &openapi3.Operation{
		Tags:        []string{rt.tag},
		Summary:     rt.summary,
		OperationID: rt.id,
		Parameters:  rt.params,
		Responses:   newResponses(rt.status, result, len(rt.scopes) > 0),
	}
	if len(rt.scopes) == 0 {
		op.Security = &openapi3.SecurityRequirements{}
	} else {
		scopes := make([]string, len(rt.scopes))
		for i, sc := range rt.scopes {
			scopes[i] = string(sc)
		}
		op.Security = &openapi3.SecurityRequirements{
			{"apiKey": scopes},
			{"bearerAuth": scopes},
		}
		if op.Extensions == nil {
			op.Extensions = map[string]any{}
		}
		op.Extensions["x-required-scopes"] = scopes
	}
	if rt.body != nil {
		body, err := openapi3gen.NewSchemaRefForValue(rt.body, doc.Components.Schemas)
		if err != nil {
			return nil, err
		}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(body),
		}
	}
	return op, nil
}

func newResponses(status int, schema *openapi3.SchemaRef, authenticated bool) *openapi3.Responses {
	responses := openapi3.NewResponsesWithCapacity(8)
	responses.Set(fmt.Sprint(status), &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(http.StatusText(status)).
			WithJSONSchemaRef(schema),
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	codes := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError}
	if authenticated {
		codes = append(codes, http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests)
	}
	for _, code := range codes {
		responses.Set(fmt.Sprint(code), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(code)).
				WithJSONSchemaRef(errorRef),
		})
	}
	return responses
}
