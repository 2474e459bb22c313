package ingest

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1200, 150)
	chunks := c.Split("Robots must fit within an 18 inch cube.")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
}

func TestSplit_Empty(t *testing.T) {
	c := NewChunker(1200, 150)
	if chunks := c.Split("   \n  "); chunks != nil {
		t.Errorf("got %v, want nil", chunks)
	}
}

func TestSplit_RespectsSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Rule G" + strings.Repeat("1", 3) + ": teams must not contact opposing robots in their loading zone. ")
	}
	c := NewChunker(300, 50)
	chunks := c.Split(sb.String())

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > 300+50 { // overlap carry may extend slightly past Size before flush
			t.Errorf("chunk %d is %d chars", i, len(ch))
		}
	}
}

func TestSplit_ParagraphBoundariesPreferred(t *testing.T) {
	para1 := strings.Repeat("a", 200)
	para2 := strings.Repeat("b", 200)
	c := NewChunker(250, 0)
	chunks := c.Split(para1 + "\n\n" + para2)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0], "a") || !strings.HasPrefix(chunks[1], "b") {
		t.Errorf("paragraphs merged across boundary")
	}
}

func TestSplit_OverlapCarried(t *testing.T) {
	sentences := make([]string, 20)
	for i := range sentences {
		sentences[i] = "Sentence number " + strings.Repeat("x", 30) + "."
	}
	text := strings.Join(sentences, " ")
	c := NewChunker(200, 60)
	chunks := c.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	// Consecutive chunks share text from the overlap window.
	tail := chunks[0][len(chunks[0])-20:]
	if !strings.Contains(chunks[1], tail[:10]) {
		t.Errorf("no overlap between chunk 0 and 1:\n%q\n%q", chunks[0], chunks[1])
	}
}

func TestNormalizeText(t *testing.T) {
	got := normalizeText("a  \t b\n\n\n\nc   d\n")
	want := "a b\n\nc d"
	if got != want {
		t.Errorf("normalizeText = %q, want %q", got, want)
	}
}
