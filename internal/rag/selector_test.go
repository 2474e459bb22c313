package rag

import (
	"strings"
	"testing"

	"github.com/rulechat/rulechat/internal/vectorstore"
)

func chunk(text string, score float32) Chunk {
	return Chunk{
		Text:  text,
		Score: score,
		Meta:  vectorstore.Metadata{Source: "manual.pdf", Page: 1, Length: len(text)},
	}
}

func TestSelect_ThresholdFiltering(t *testing.T) {
	sel := NewSelector(0.3, 1000)
	packed := sel.Select([]Chunk{
		chunk("above", 0.9),
		chunk("below", 0.29),
		chunk("edge", 0.3),
		chunk("negative", -0.5),
	})

	if len(packed) != 2 {
		t.Fatalf("got %d chunks, want 2", len(packed))
	}
	for _, ch := range packed {
		if ch.Score < 0.3 {
			t.Errorf("chunk %q below threshold survived", ch.Text)
		}
	}
}

func TestSelect_EmptyWhenNothingRelevant(t *testing.T) {
	sel := NewSelector(0.3, 1000)
	if packed := sel.Select([]Chunk{chunk("low", 0.1)}); packed != nil {
		t.Errorf("packed = %v, want nil", packed)
	}
	if packed := sel.Select(nil); packed != nil {
		t.Errorf("packed = %v, want nil", packed)
	}
}

func TestSelect_RankingStable(t *testing.T) {
	first := chunk("first retrieved", 0.5)
	second := chunk("second retrieved", 0.5)
	packed := NewSelector(0.3, 1000).Select([]Chunk{first, chunk("top", 0.8), second})

	if len(packed) != 3 {
		t.Fatalf("got %d chunks, want 3", len(packed))
	}
	if packed[0].Text != "top" {
		t.Errorf("packed[0] = %q, want top scorer", packed[0].Text)
	}
	// Equal scores keep retrieval order.
	if packed[1].Text != first.Text || packed[2].Text != second.Text {
		t.Errorf("tie order broken: %q then %q", packed[1].Text, packed[2].Text)
	}
}

func TestSelect_BudgetPacking(t *testing.T) {
	// 100 chars ≈ 25 tokens each; budget of 60 tokens fits two.
	big := strings.Repeat("x", 100)
	sel := NewSelector(0.3, 60)
	packed := sel.Select([]Chunk{
		chunk(big, 0.9),
		chunk(big, 0.8),
		chunk(big, 0.7),
	})

	if len(packed) != 2 {
		t.Fatalf("got %d chunks, want 2", len(packed))
	}
	total := 0
	for _, ch := range packed {
		total += EstimateTokens(ch.Text)
	}
	if total > 60 {
		t.Errorf("packed tokens = %d, exceeds budget 60", total)
	}
}

func TestSelect_OversizeSingleChunk(t *testing.T) {
	// Even the best chunk exceeds the budget: packed set is empty, which
	// callers treat identically to "no relevant content".
	sel := NewSelector(0.3, 10)
	packed := sel.Select([]Chunk{chunk(strings.Repeat("x", 100), 0.95)})
	if packed != nil {
		t.Errorf("packed = %v, want nil", packed)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
