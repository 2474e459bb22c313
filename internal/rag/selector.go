// Package rag answers questions over the indexed manual: it selects relevant
// chunks under a token budget, drives a bounded tool-calling loop with the
// LLM backend, and assembles the final attributed answer.
package rag

import (
	"sort"

	"github.com/rulechat/rulechat/internal/vectorstore"
)

// Chunk is a retrieved manual fragment with its similarity score. It lives
// only within one retrieval+answer cycle and is never persisted.
type Chunk struct {
	Text  string
	Score float32
	Meta  vectorstore.Metadata
}

// Turn is one prior conversation message, owned by the caller.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	defaultMinScore         = 0.3
	defaultMaxContextTokens = 4000
)

// Selector turns a ranked chunk list into a bounded, relevant context.
type Selector struct {
	MinScore         float32
	MaxContextTokens int
}

// NewSelector creates a Selector, substituting defaults for zero values.
func NewSelector(minScore float32, maxContextTokens int) Selector {
	if minScore <= 0 {
		minScore = defaultMinScore
	}
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return Selector{MinScore: minScore, MaxContextTokens: maxContextTokens}
}

// Select drops chunks scoring below MinScore, sorts the survivors by
// descending score (stable, preserving retrieval order on ties), and greedily
// packs them into the token budget, stopping at the first chunk that would
// overflow it. An empty result means "no relevant content" and is a normal
// outcome for the caller, not an error.
func (s Selector) Select(chunks []Chunk) []Chunk {
	var kept []Chunk
	for _, ch := range chunks {
		if ch.Score >= s.MinScore {
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	var packed []Chunk
	used := 0
	for _, ch := range kept {
		cost := EstimateTokens(ch.Text)
		if used+cost > s.MaxContextTokens {
			break
		}
		packed = append(packed, ch)
		used += cost
	}
	return packed
}

// EstimateTokens provides a rough token count using a 4 chars per token
// heuristic. No real tokenizer is involved.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
