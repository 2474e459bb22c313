package rag

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an assistant answering questions about a competition rules manual.

Rules:
- Answer ONLY from the manual excerpts provided below or returned by the search_manual tool. Do not invent rules.
- When the excerpts reference another rule or section you need (e.g. "see section 10.5.2"), call search_manual with that reference before answering.
- Cite rule numbers and sections when the excerpts contain them.
- If the excerpts and searches do not contain the answer, say so plainly instead of guessing.`

// buildSystemPrompt appends the packed manual excerpts to the base prompt.
func buildSystemPrompt(chunks []Chunk) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n[Manual Excerpts]\n")
	for _, ch := range chunks {
		sb.WriteString(formatChunk(ch))
	}
	return sb.String()
}

// formatSearchResult renders tool-retrieved chunks as the textual payload
// fed back to the model.
func formatSearchResult(query string, chunks []Chunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Manual passages matching %q:\n\n", query)
	for _, ch := range chunks {
		sb.WriteString(formatChunk(ch))
	}
	return sb.String()
}

func formatChunk(ch Chunk) string {
	return fmt.Sprintf("(Score: %.2f, Source: %s p.%d)\n%s\n\n", ch.Score, ch.Meta.Source, ch.Meta.Page, ch.Text)
}
