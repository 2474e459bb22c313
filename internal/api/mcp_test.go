package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rulechat/rulechat/internal/rag"
	"github.com/rulechat/rulechat/internal/vectorstore"
)

type mockMCPSearcher struct {
	chunks []rag.Chunk
	err    error
}

func (m *mockMCPSearcher) Search(_ context.Context, _ string, _ int) ([]rag.Chunk, error) {
	return m.chunks, m.err
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPSearchManual(t *testing.T) {
	deps := MCPDeps{
		Searcher: &mockMCPSearcher{chunks: []rag.Chunk{
			{
				Text:  "Robots must fit within an 18 inch cube.",
				Score: 0.87,
				Meta:  vectorstore.Metadata{Source: "manual.pdf", Page: 10},
			},
		}},
	}
	handler := mcpSearchManual(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_manual", map[string]interface{}{
		"query": "robot size",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var results []struct {
		Text   string  `json:"text"`
		Score  float32 `json:"score"`
		Source string  `json:"source"`
		Page   int     `json:"page"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if len(results) != 1 || results[0].Source != "manual.pdf" || results[0].Page != 10 {
		t.Errorf("results = %+v", results)
	}
}

func TestMCPSearchManual_MissingQuery(t *testing.T) {
	deps := MCPDeps{Searcher: &mockMCPSearcher{}}
	handler := mcpSearchManual(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_manual", nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing query")
	}
}

func TestMCPSearchManual_EmptyResult(t *testing.T) {
	deps := MCPDeps{Searcher: &mockMCPSearcher{}}
	handler := mcpSearchManual(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_manual", map[string]interface{}{
		"query": "nothing relevant",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("empty search = %q, want []", got)
	}
}

func TestMCPAskManual(t *testing.T) {
	deps := MCPDeps{Service: &fakeService{answer: testAnswer()}}
	handler := mcpAskManual(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_manual", map[string]interface{}{
		"question": "How big can the robot be?",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var payload struct {
		Answer  string       `json:"answer"`
		Sources []rag.Source `json:"sources"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Answer == "" || len(payload.Sources) != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestMCPAskManual_ServiceFailure(t *testing.T) {
	deps := MCPDeps{Service: &fakeService{err: errors.New("backend down")}}
	handler := mcpAskManual(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_manual", map[string]interface{}{
		"question": "anything",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error when the service fails")
	}
}
