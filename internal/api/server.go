package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rulechat/rulechat/internal/rag"
	"github.com/rulechat/rulechat/internal/storage"
	"github.com/rulechat/rulechat/internal/vectorstore"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxQuestionRunes   = 1000
)

// Asker answers questions against the indexed manual.
type Asker interface {
	Ask(ctx context.Context, question string, history []rag.Turn, stream *rag.StreamHandlers) (*rag.Answer, error)
}

// IndexStats reports snapshot presence and record count.
type IndexStats interface {
	Stats() (vectorstore.Stats, error)
}

// AnswerLog records completed exchanges. Implemented by *storage.Store.
type AnswerLog interface {
	SaveAnswer(a storage.Answer) error
	ListAnswers(limit int) ([]storage.Answer, error)
}

type Deps struct {
	Service    Asker
	Index      IndexStats
	Log        AnswerLog // optional; if nil, answers are not recorded
	Token      string    // optional; if set, requests must carry it as a bearer token
	Model      string
	EmbedModel string
}

// NewHandler returns the HTTP handler for the chat API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	if deps.Token != "" {
		r.Use(BearerAuth(deps.Token))
	}

	r.Post("/chat", handleChat(deps))
	r.Get("/health", handleHealth(deps))
	r.Get("/history", handleHistory(deps))

	return r
}

type ChatRequest struct {
	Question            string     `json:"question"`
	ConversationHistory []turnJSON `json:"conversationHistory"`
	Stream              bool       `json:"stream"`
}

type turnJSON struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Sources  []rag.Source `json:"sources"`
	Metadata chatMetadata `json:"metadata"`
}

type chatMetadata struct {
	ContextsUsed   int   `json:"contextsUsed"`
	TokensEstimate int   `json:"tokensEstimate"`
	DurationMS     int64 `json:"durationMs"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		question, err := validateQuestion(req.Question)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		stats, err := deps.Index.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "checking index: %v", err)
			return
		}
		if stats.Count == 0 {
			httpError(w, http.StatusServiceUnavailable, "not_indexed",
				"the manual has not been indexed yet; run ingestion first")
			return
		}

		history := make([]rag.Turn, 0, len(req.ConversationHistory))
		for _, t := range req.ConversationHistory {
			history = append(history, rag.Turn{Role: t.Role, Content: t.Content})
		}

		if req.Stream {
			streamChat(w, r, deps, question, history)
			return
		}

		answer, err := deps.Service.Ask(r.Context(), question, history, nil)
		if err != nil {
			answerError(w, err)
			return
		}
		recordAnswer(deps.Log, answer)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			Question: answer.Question,
			Answer:   answer.Text,
			Sources:  answer.Sources,
			Metadata: chatMetadata{
				ContextsUsed:   answer.ContextsUsed,
				TokensEstimate: answer.TokensEstimate,
				DurationMS:     answer.Duration.Milliseconds(),
			},
		})
	}
}

// streamChat delivers the answer as server-sent events: one metadata frame,
// content frames, then a done frame. Errors raised before the first frame
// fall back to a plain JSON error response; after that the stream carries
// an error frame instead, since the status line is already gone.
func streamChat(w http.ResponseWriter, r *http.Request, deps Deps, question string, history []rag.Turn) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}
	frame := func(payload any) {
		start()
		b, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
	}

	handlers := &rag.StreamHandlers{
		Sources: func(sources []rag.Source, usage rag.Usage) {
			frame(map[string]any{
				"type":           "metadata",
				"sources":        sources,
				"contextsUsed":   usage.Contexts,
				"tokensEstimate": usage.Tokens,
			})
		},
		Delta: func(text string) {
			frame(map[string]any{"type": "content", "text": text})
		},
	}

	answer, err := deps.Service.Ask(r.Context(), question, history, handlers)
	if err != nil {
		if !started {
			answerError(w, err)
			return
		}
		frame(map[string]any{"type": "error", "error": err.Error()})
		return
	}
	recordAnswer(deps.Log, answer)

	frame(map[string]any{"type": "done", "durationMs": answer.Duration.Milliseconds()})
}

func validateQuestion(q string) (string, error) {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return "", errors.New("question must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxQuestionRunes {
		return "", fmt.Errorf("question exceeds %d characters", maxQuestionRunes)
	}
	return trimmed, nil
}

// answerError maps pipeline failures to HTTP statuses: retrieval-empty is a
// 404 with guidance, everything else a 500.
func answerError(w http.ResponseWriter, err error) {
	if errors.Is(err, rag.ErrNoRelevantContext) {
		httpError(w, http.StatusNotFound, "no_relevant_content",
			"couldn't find relevant information in the manual; try rephrasing or adding rule numbers")
		return
	}
	var unresolved *rag.UnresolvedAnswerError
	if errors.As(err, &unresolved) {
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "answering question: %v", err)
}

func recordAnswer(log AnswerLog, answer *rag.Answer) {
	if log == nil {
		return
	}
	sources, err := json.Marshal(answer.Sources)
	if err != nil {
		sources = []byte("[]")
	}
	_ = log.SaveAnswer(storage.Answer{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now().UTC(),
		Question:     answer.Question,
		Text:         answer.Text,
		Sources:      string(sources),
		ContextsUsed: answer.ContextsUsed,
		DurationMS:   answer.Duration.Milliseconds(),
	})
}

type healthResponse struct {
	Status     string `json:"status"`
	Indexed    bool   `json:"indexed"`
	Chunks     int    `json:"chunks"`
	SavedAt    string `json:"savedAt,omitempty"`
	Model      string `json:"model"`
	EmbedModel string `json:"embedModel"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Index.Stats()
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "checking index: %v", err)
			return
		}

		resp := healthResponse{
			Status:     "ok",
			Indexed:    stats.Exists,
			Chunks:     stats.Count,
			Model:      deps.Model,
			EmbedModel: deps.EmbedModel,
		}
		if !stats.SavedAt.IsZero() {
			resp.SavedAt = stats.SavedAt.UTC().Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type historyEntry struct {
	ID           string          `json:"id"`
	CreatedAt    string          `json:"createdAt"`
	Question     string          `json:"question"`
	Answer       string          `json:"answer"`
	Sources      json.RawMessage `json:"sources"`
	ContextsUsed int             `json:"contextsUsed"`
	DurationMS   int64           `json:"durationMs"`
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Log == nil {
			httpError(w, http.StatusNotFound, "not_found", "answer log is disabled")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		answers, err := deps.Log.ListAnswers(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing answers: %v", err)
			return
		}

		entries := make([]historyEntry, 0, len(answers))
		for _, a := range answers {
			sources := json.RawMessage(a.Sources)
			if !json.Valid(sources) {
				sources = json.RawMessage("[]")
			}
			entries = append(entries, historyEntry{
				ID:           a.ID,
				CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
				Question:     a.Question,
				Answer:       a.Text,
				Sources:      sources,
				ContextsUsed: a.ContextsUsed,
				DurationMS:   a.DurationMS,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
