package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rulechat/rulechat/internal/llm"
	"github.com/rulechat/rulechat/internal/vectorstore"
)

// ErrNoRelevantContext is returned when no indexed chunk scores above the
// similarity threshold for a question. It is a normal terminal outcome, not
// a failure; callers surface it as a calm "nothing found" response.
var ErrNoRelevantContext = errors.New("no relevant content found in the indexed manual")

// Embedder maps a question or search query to an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex answers top-K similarity queries.
type VectorIndex interface {
	Query(embedding []float32, topK int) ([]vectorstore.ScoredRecord, error)
}

// Options configures the answer pipeline. Zero values select defaults.
type Options struct {
	Model            string
	TopK             int
	MinScore         float32
	MaxContextTokens int
	MaxIterations    int
}

const defaultTopK = 5

// Service ties the pipeline together: embed the question, retrieve and pack
// context, run the tool-calling loop, and assemble the attributed answer.
// It also backs the search_manual tool, so mid-answer retrievals flow
// through the same threshold filtering as the initial round.
type Service struct {
	embedder     Embedder
	index        VectorIndex
	orchestrator *Orchestrator
	selector     Selector
	topK         int
	logger       *slog.Logger
}

// NewService wires a Service from its collaborators.
func NewService(embedder Embedder, index VectorIndex, client ChatClient, opts Options) *Service {
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	s := &Service{
		embedder: embedder,
		index:    index,
		selector: NewSelector(opts.MinScore, opts.MaxContextTokens),
		topK:     topK,
		logger:   slog.Default(),
	}
	s.orchestrator = NewOrchestrator(client, s, opts.Model, opts.MaxIterations)
	return s
}

// StreamHandlers receive the answer incrementally. Sources fires once, with
// the final citation list, before the first Delta.
type StreamHandlers struct {
	Sources func(sources []Source, usage Usage)
	Delta   func(text string)
}

// Answer is the assembled response to one question.
type Answer struct {
	Question       string
	Text           string
	Sources        []Source
	ContextsUsed   int
	TokensEstimate int
	Duration       time.Duration
}

// Search embeds the query and returns the chunks scoring at or above the
// similarity threshold, at most topK of them. A nil result means nothing
// relevant was found.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	if topK <= 0 {
		topK = s.topK
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	scored, err := s.index.Query(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	var chunks []Chunk
	for _, sr := range scored {
		if sr.Score < s.selector.MinScore {
			continue
		}
		chunks = append(chunks, Chunk{Text: sr.Content, Score: sr.Score, Meta: sr.Meta})
	}
	return chunks, nil
}

// SearchManual implements the search_manual tool: one call yields both the
// formatted text block for the model and the structured chunk list for
// source attribution.
func (s *Service) SearchManual(ctx context.Context, query string) (SearchResult, error) {
	chunks, err := s.Search(ctx, query, s.topK)
	if err != nil {
		return SearchResult{}, err
	}
	if len(chunks) == 0 {
		return SearchResult{}, nil
	}
	return SearchResult{Text: formatSearchResult(query, chunks), Chunks: chunks}, nil
}

// Ask answers a question using retrieval plus the tool-calling loop. history
// is the caller-owned prior conversation; it is read, never persisted. When
// stream is non-nil the answer is additionally delivered through it, sources
// first.
//
// Citation policy: only chunks actually shown to the model are cited — the
// budget-packed initial context and the tool-round results injected into the
// conversation.
func (s *Service) Ask(ctx context.Context, question string, history []Turn, stream *StreamHandlers) (*Answer, error) {
	start := time.Now()

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	scored, err := s.index.Query(vec, s.topK)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	retrieved := make([]Chunk, 0, len(scored))
	for _, sr := range scored {
		retrieved = append(retrieved, Chunk{Text: sr.Content, Score: sr.Score, Meta: sr.Meta})
	}
	packed := s.selector.Select(retrieved)
	if len(packed) == 0 {
		return nil, ErrNoRelevantContext
	}

	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: question})

	hooks := RunHooks{}
	if stream != nil {
		hooks.Delta = stream.Delta
		if stream.Sources != nil {
			hooks.BeforeAnswer = func(toolChunks []Chunk) {
				shown := append(append([]Chunk{}, packed...), toolChunks...)
				stream.Sources(DedupeSources(shown), Summarize(shown))
			}
		}
	}

	result, err := s.orchestrator.Run(ctx, buildSystemPrompt(packed), msgs, hooks)
	if err != nil {
		return nil, err
	}

	shown := append(append([]Chunk{}, packed...), result.ToolChunks...)
	usage := Summarize(shown)
	answer := &Answer{
		Question:       question,
		Text:           result.Text,
		Sources:        DedupeSources(shown),
		ContextsUsed:   usage.Contexts,
		TokensEstimate: usage.Tokens,
		Duration:       time.Since(start),
	}

	s.logger.Debug("answer assembled",
		"contexts_used", answer.ContextsUsed,
		"tool_rounds", len(result.ToolChunks),
		"llm_calls", result.Calls,
		"duration_ms", answer.Duration.Milliseconds(),
	)
	return answer, nil
}
