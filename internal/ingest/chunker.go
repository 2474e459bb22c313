package ingest

import "strings"

const (
	defaultChunkSize    = 1200 // characters
	defaultChunkOverlap = 150
)

// Chunker splits page text into bounded chunks. It prefers paragraph
// boundaries, falls back to sentence boundaries for long paragraphs, and
// carries a character overlap between consecutive chunks so rules split
// across a boundary stay retrievable.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker creates a Chunker, substituting defaults for non-positive
// values. Overlap is clamped below Size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split breaks text into chunks of at most Size characters.
func (c Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}

	var pieces []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= c.Size {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, splitSentences(para, c.Size)...)
	}

	return c.pack(pieces)
}

// pack greedily merges pieces into groups of at most Size characters, then
// prefixes each group after the first with the tail of its predecessor. The
// resulting chunks are therefore at most Size+Overlap characters long.
func (c Chunker) pack(pieces []string) []string {
	var groups []string
	var sb strings.Builder

	flush := func() {
		if g := strings.TrimSpace(sb.String()); g != "" {
			groups = append(groups, g)
		}
		sb.Reset()
	}

	for _, piece := range pieces {
		if sb.Len() > 0 && sb.Len()+len(piece)+1 > c.Size {
			flush()
		}
		// Hard-split a single piece that exceeds Size on its own.
		for len(piece) > c.Size {
			flush()
			groups = append(groups, strings.TrimSpace(piece[:c.Size]))
			piece = strings.TrimSpace(piece[c.Size:])
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(piece)
	}
	flush()

	if c.Overlap <= 0 || len(groups) < 2 {
		return groups
	}
	chunks := make([]string, len(groups))
	chunks[0] = groups[0]
	for i := 1; i < len(groups); i++ {
		tail := groups[i-1]
		if len(tail) > c.Overlap {
			tail = tail[len(tail)-c.Overlap:]
			// Start the overlap at a word boundary.
			if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
				tail = tail[idx+1:]
			}
		}
		chunks[i] = tail + " " + groups[i]
	}
	return chunks
}

// splitSentences breaks an oversized paragraph at sentence ends, keeping
// each piece under max where possible.
func splitSentences(para string, max int) []string {
	var pieces []string
	var sb strings.Builder
	start := 0
	for i := 0; i < len(para); i++ {
		ch := para[i]
		if ch != '.' && ch != '!' && ch != '?' {
			continue
		}
		if i+1 < len(para) && para[i+1] != ' ' && para[i+1] != '\n' {
			continue
		}
		sentence := strings.TrimSpace(para[start : i+1])
		start = i + 1
		if sentence == "" {
			continue
		}
		if sb.Len()+len(sentence)+1 > max && sb.Len() > 0 {
			pieces = append(pieces, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sentence)
	}
	if rest := strings.TrimSpace(para[start:]); rest != "" {
		if sb.Len()+len(rest)+1 > max && sb.Len() > 0 {
			pieces = append(pieces, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(rest)
	}
	if sb.Len() > 0 {
		pieces = append(pieces, sb.String())
	}
	return pieces
}
