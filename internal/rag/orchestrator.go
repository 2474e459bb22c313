package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rulechat/rulechat/internal/llm"
)

const defaultMaxIterations = 3

// ChatClient is the LLM backend surface the orchestrator depends on.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	ChatStream(ctx context.Context, req llm.ChatRequest, onDelta func(string)) (*llm.ChatResponse, error)
}

// Searcher executes the search_manual tool. It returns both the formatted
// text block fed back to the model and the structured chunk list, so the
// caller never has to re-run the query to learn what was retrieved.
type Searcher interface {
	SearchManual(ctx context.Context, query string) (SearchResult, error)
}

// SearchResult is one tool execution's outcome.
type SearchResult struct {
	Text   string
	Chunks []Chunk
}

// EmptyResponseError reports a protocol violation: the model returned
// neither answer text nor a tool call.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string {
	return "model returned neither text nor a tool call"
}

// UnresolvedAnswerError reports that the model produced no answer text even
// on the forced final call after the iteration limit.
type UnresolvedAnswerError struct {
	Iterations int
}

func (e *UnresolvedAnswerError) Error() string {
	return fmt.Sprintf("no answer after %d tool iterations and a forced final call", e.Iterations)
}

// RunHooks lets a caller observe the answer as it is produced. BeforeAnswer
// fires exactly once, before any Delta, when the set of retrieved chunks is
// final; Delta receives answer text fragments in order.
type RunHooks struct {
	BeforeAnswer func(toolChunks []Chunk)
	Delta        func(text string)
}

// RunResult is the terminal state of one orchestrator run.
type RunResult struct {
	Text       string
	ToolChunks []Chunk // retrieved across all tool rounds, in execution order
	Calls      int     // LLM round-trips made
}

// Orchestrator drives the bounded conversational loop with the model. The
// model may request the search_manual tool up to maxIterations times; after
// that one final call is made with tools disabled so the loop always
// terminates with an answer or a surfaced failure.
type Orchestrator struct {
	client        ChatClient
	search        Searcher
	model         string
	maxIterations int
}

// NewOrchestrator creates an Orchestrator. maxIterations <= 0 selects the
// default of 3.
func NewOrchestrator(client ChatClient, search Searcher, model string, maxIterations int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Orchestrator{
		client:        client,
		search:        search,
		model:         model,
		maxIterations: maxIterations,
	}
}

// searchManualTool is the only tool offered to the model.
func searchManualTool() llm.Tool {
	return llm.Tool{
		Name:        "search_manual",
		Description: "Search the indexed rules manual for passages relevant to a query. Use this when the provided excerpts do not cover a rule, section, or cross-reference you need.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query, e.g. a rule number or topic",
				},
			},
			"required": []string{"query"},
		},
	}
}

// Run executes the loop: submit the conversation with the tool schema
// attached, execute any requested searches, feed results back, and repeat
// until the model answers or the iteration budget is spent. Tool results are
// appended in the same order as the requests they answer.
func (o *Orchestrator) Run(ctx context.Context, system string, msgs []llm.Message, hooks RunHooks) (RunResult, error) {
	msgs = slices.Clone(msgs)
	var toolChunks []Chunk
	calls := 0

	for iter := 0; iter < o.maxIterations; iter++ {
		resp, err := o.client.Chat(ctx, llm.ChatRequest{
			Model:    o.model,
			System:   system,
			Messages: msgs,
			Tools:    []llm.Tool{searchManualTool()},
		})
		calls++
		if err != nil {
			return RunResult{}, fmt.Errorf("chat call %d: %w", calls, err)
		}

		if len(resp.ToolCalls) == 0 {
			text := strings.TrimSpace(resp.Content)
			if text == "" {
				return RunResult{}, &EmptyResponseError{}
			}
			o.emitAnswer(hooks, toolChunks, text)
			return RunResult{Text: text, ToolChunks: toolChunks, Calls: calls}, nil
		}

		msgs = append(msgs, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			payload, chunks := o.executeTool(ctx, call)
			toolChunks = append(toolChunks, chunks...)
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    payload,
			})
		}
	}

	// Iteration budget spent: force one final call with tool use disabled so
	// the model must answer from the accumulated context.
	req := llm.ChatRequest{Model: o.model, System: system, Messages: msgs}
	var resp *llm.ChatResponse
	var err error
	if hooks.Delta != nil {
		if hooks.BeforeAnswer != nil {
			hooks.BeforeAnswer(toolChunks)
		}
		resp, err = o.client.ChatStream(ctx, req, hooks.Delta)
	} else {
		resp, err = o.client.Chat(ctx, req)
	}
	calls++
	if err != nil {
		return RunResult{}, fmt.Errorf("final chat call: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return RunResult{}, &UnresolvedAnswerError{Iterations: o.maxIterations}
	}
	return RunResult{Text: text, ToolChunks: toolChunks, Calls: calls}, nil
}

// executeTool runs one requested tool call. Failures are captured and
// returned to the model as a tool-error payload so it can adapt; they never
// abort the run.
func (o *Orchestrator) executeTool(ctx context.Context, call llm.ToolCall) (string, []Chunk) {
	if call.Name != "search_manual" {
		return fmt.Sprintf("Unknown tool %q.", call.Name), nil
	}

	var args struct {
		Query string `json:"query"`
	}
	if err := call.ParseArguments(&args); err != nil {
		return fmt.Sprintf("Tool error: invalid arguments: %v", err), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return "Tool error: query must not be empty.", nil
	}

	result, err := o.search.SearchManual(ctx, args.Query)
	if err != nil {
		return fmt.Sprintf("Tool error: search failed: %v", err), nil
	}
	if len(result.Chunks) == 0 {
		return fmt.Sprintf("No information found in the manual for %q.", args.Query), nil
	}
	return result.Text, result.Chunks
}

// answerFragmentSize bounds re-emitted content fragments when the answer
// arrived in one non-streaming response.
const answerFragmentSize = 256

// emitAnswer delivers an already-complete answer through the hooks: sources
// first, then the text in fragments.
func (o *Orchestrator) emitAnswer(hooks RunHooks, toolChunks []Chunk, text string) {
	if hooks.Delta == nil {
		return
	}
	if hooks.BeforeAnswer != nil {
		hooks.BeforeAnswer(toolChunks)
	}
	runes := []rune(text)
	for start := 0; start < len(runes); start += answerFragmentSize {
		end := min(start+answerFragmentSize, len(runes))
		hooks.Delta(string(runes[start:end]))
	}
}
