package rag

import "sort"

// Source is a deduplicated citation, keyed by (source, page).
type Source struct {
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float32 `json:"score"`
}

// Usage summarizes the evidence behind an answer, for observability.
type Usage struct {
	Contexts int // distinct chunks shown to the model
	Tokens   int // estimated token cost of those chunks
}

// DedupeSources merges chunks retrieved across all rounds into a stable
// citation list: one entry per (source, page) holding the maximum score seen
// for that page, ordered by descending score.
func DedupeSources(chunks []Chunk) []Source {
	type key struct {
		source string
		page   int
	}
	best := make(map[key]float32)
	for _, ch := range chunks {
		k := key{ch.Meta.Source, ch.Meta.Page}
		if score, ok := best[k]; !ok || ch.Score > score {
			best[k] = ch.Score
		}
	}

	sources := make([]Source, 0, len(best))
	for k, score := range best {
		sources = append(sources, Source{Source: k.source, Page: k.page, Score: score})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Score != sources[j].Score {
			return sources[i].Score > sources[j].Score
		}
		if sources[i].Source != sources[j].Source {
			return sources[i].Source < sources[j].Source
		}
		return sources[i].Page < sources[j].Page
	})
	return sources
}

// Summarize counts distinct chunks and their estimated token cost. Chunks
// are distinct per (source, chunkIndex); a chunk retrieved both initially
// and by a tool round counts once.
func Summarize(chunks []Chunk) Usage {
	type key struct {
		source string
		index  int
	}
	seen := make(map[key]bool)
	var usage Usage
	for _, ch := range chunks {
		k := key{ch.Meta.Source, ch.Meta.ChunkIndex}
		if seen[k] {
			continue
		}
		seen[k] = true
		usage.Contexts++
		usage.Tokens += EstimateTokens(ch.Text)
	}
	return usage
}
