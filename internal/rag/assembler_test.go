package rag

import (
	"testing"

	"github.com/rulechat/rulechat/internal/vectorstore"
)

func pageChunk(source string, page, index int, score float32) Chunk {
	return Chunk{
		Text:  "some rule text",
		Score: score,
		Meta:  vectorstore.Metadata{Source: source, Page: page, ChunkIndex: index, Length: 14},
	}
}

func TestDedupeSources(t *testing.T) {
	sources := DedupeSources([]Chunk{
		pageChunk("manual.pdf", 10, 0, 0.5),
		pageChunk("manual.pdf", 10, 1, 0.9), // same page, higher score wins
		pageChunk("manual.pdf", 12, 2, 0.7),
		pageChunk("appendix.pdf", 10, 3, 0.6),
	})

	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sources))
	}
	if sources[0].Source != "manual.pdf" || sources[0].Page != 10 || sources[0].Score != 0.9 {
		t.Errorf("sources[0] = %+v, want manual.pdf p10 @0.9", sources[0])
	}
	for i := 1; i < len(sources); i++ {
		if sources[i].Score > sources[i-1].Score {
			t.Errorf("sources not sorted descending at %d", i)
		}
	}
}

func TestDedupeSources_Empty(t *testing.T) {
	if got := DedupeSources(nil); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestSummarize(t *testing.T) {
	a := pageChunk("manual.pdf", 10, 0, 0.5)
	b := pageChunk("manual.pdf", 11, 1, 0.6)
	usage := Summarize([]Chunk{a, b, a}) // a seen twice, counted once

	if usage.Contexts != 2 {
		t.Errorf("contexts = %d, want 2", usage.Contexts)
	}
	want := EstimateTokens(a.Text) + EstimateTokens(b.Text)
	if usage.Tokens != want {
		t.Errorf("tokens = %d, want %d", usage.Tokens, want)
	}
}
