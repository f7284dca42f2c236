package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/report"
	"github.com/mikeboe/deep-research/pkg/research"
)

const mcpVersion = "1.0.0"

type StartResearchArgs struct {
	Seed          string `json:"seed" jsonschema:"the research question to investigate"`
	MaxIterations int    `json:"max_iterations,omitempty" jsonschema:"upper bound on research iterations"`
}

type ResearchIDArgs struct {
	ID string `json:"id" jsonschema:"the research job id returned by start_research"`
}

// NewMCPServer exposes research jobs and, when tools is set, the indexed
// content search over MCP.
func NewMCPServer(svc *Service, tools *chat.RagToolset) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "deep-research-mcp", Version: mcpVersion}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "start_research",
		Description: "Start a deep research job in the background and return its id.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args StartResearchArgs) (*mcp.CallToolResult, any, error) {
		job, err := svc.CreateJob(ctx, CreateJobRequest{Seed: args.Seed, MaxIterations: args.MaxIterations})
		if err != nil {
			return nil, nil, err
		}
		return textResult(fmt.Sprintf("Started research job %s (status: %s)", job.ID, job.Status)), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_research_report",
		Description: "Get the status of a research job, and its markdown report once finished.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args ResearchIDArgs) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(args.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid job id: %w", err)
		}
		job, err := svc.GetJob(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if len(job.Report) == 0 {
			return textResult(fmt.Sprintf("Research job %s is %s.", job.ID, job.Status)), nil, nil
		}
		var r research.FinalReport
		if err := json.Unmarshal(job.Report, &r); err != nil {
			return nil, nil, fmt.Errorf("failed to decode report: %w", err)
		}
		return textResult(report.RenderMarkdown(&r)), nil, nil
	})

	if tools == nil {
		return srv
	}

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_content",
		Description: "Search content in the research database using semantic search.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args chat.SearchContentArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.SearchContent(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(resp.Results), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_content_by_source",
		Description: "Find all content for a specific source.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args chat.FindSourceArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.FindContentBySource(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(resp.Content), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_content_by_metadata",
		Description: "Find content using complex logical filters on metadata.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args chat.FindMetadataArgs) (*mcp.CallToolResult, any, error) {
		resp, err := tools.FindContentByMetadata(ctx, args)
		if err != nil {
			return nil, nil, err
		}
		return textResult(resp.Content), nil, nil
	})

	return srv
}

// NewMCPHandler serves srv over the streamable HTTP transport.
func NewMCPHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
