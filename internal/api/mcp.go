package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rulechat/rulechat/internal/rag"
)

// MCPSearcher abstracts semantic search over the manual for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]rag.Chunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Searcher MCPSearcher
	Service  Asker
	Index    IndexStats
}

// NewMCPServer creates an MCP server exposing the manual to MCP clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"rulechat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rulechat — question answering over the indexed competition rules manual."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_manual",
			mcp.WithDescription("Semantically search the rules manual and return relevant excerpts with page references."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchManual(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_manual",
			mcp.WithDescription("Answer a question about the rules manual with cited sources."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskManual(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"manual://stats",
			"Index Stats",
			mcp.WithResourceDescription("Vector index snapshot presence and record count"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpSearchManual(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			Text   string  `json:"text"`
			Score  float32 `json:"score"`
			Source string  `json:"source"`
			Page   int     `json:"page"`
		}

		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				Text:   c.Text,
				Score:  c.Score,
				Source: c.Meta.Source,
				Page:   c.Meta.Page,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAskManual(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		if _, err := validateQuestion(question); err != nil {
			return mcpError(err.Error()), nil
		}

		answer, err := deps.Service.Ask(ctx, question, nil, nil)
		if err != nil {
			return mcpError(fmt.Sprintf("could not answer: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"answer":  answer.Text,
			"sources": answer.Sources,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Index.Stats()
		if err != nil {
			return nil, fmt.Errorf("checking index: %w", err)
		}

		payload := map[string]any{
			"indexed": stats.Exists,
			"chunks":  stats.Count,
		}
		if !stats.SavedAt.IsZero() {
			payload["savedAt"] = stats.SavedAt.UTC().Format(time.RFC3339)
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
