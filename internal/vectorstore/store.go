// Package vectorstore persists embedded manual chunks and answers top-K
// nearest-neighbor queries by cosine similarity.
//
// The store is a brute-force linear scan over an in-memory record slice,
// persisted as a single JSON snapshot. At the target scale (hundreds to low
// thousands of chunks) this beats the complexity of an index structure; an
// ANN-backed implementation could replace it without changing the contract.
package vectorstore

import (
	"container/heap"
	"math"
	"sort"
	"sync"
	"time"
)

// Metadata describes where a chunk came from. Source and Page key the final
// citation list; ChunkIndex is a global monotonic counter assigned at
// ingestion. Extra carries optional fields without loosening the type.
type Metadata struct {
	Source     string            `json:"source"`
	Page       int               `json:"page"`
	ChunkIndex int               `json:"chunkIndex"`
	Length     int               `json:"length"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Record is one indexed chunk. Records are immutable once added; the store
// only supports bulk rebuild or append.
type Record struct {
	Content   string   `json:"content"`
	Embedding []float32 `json:"embedding"`
	Meta      Metadata `json:"metadata"`
}

// ScoredRecord is a Record with its cosine similarity to a query.
type ScoredRecord struct {
	Record
	Score float32
}

// Progress reports batch-add progress. Events are sent every 100 records and
// once at completion.
type Progress struct {
	Added int
	Total int
}

// Stats summarizes the persisted snapshot for health reporting.
type Stats struct {
	Exists  bool
	Count   int
	SavedAt time.Time
}

const progressInterval = 100

// Store holds the in-memory record collection. Queries are read-heavy and
// take the read lock; Add, Rebuild, and Load take the write lock, so a
// rebuild cannot interleave with a query. Rebuild-and-reingest is still
// expected to run offline rather than against live traffic.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []Record
	dim     int
	loaded  bool
}

// Open creates a Store backed by the snapshot at path and loads it if it
// exists. An absent snapshot yields an empty store, not an error.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Count returns the number of in-memory records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Rebuild discards all in-memory records, starting a fresh empty collection.
// Used before a full re-ingestion pass.
func (s *Store) Rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.dim = 0
	s.loaded = true
}

// Add appends a batch of records. All embeddings must share the store's
// dimension; the first record added to an empty store establishes it. If
// progress is non-nil, a Progress event is sent after every 100 records and
// once at completion. Duplicate content is permitted.
func (s *Store) Add(records []Record, progress chan<- Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim {
			return &DimensionMismatchError{Want: dim, Got: len(r.Embedding)}
		}
	}
	s.dim = dim

	total := len(records)
	for i, r := range records {
		s.records = append(s.records, r)
		if progress != nil && (i+1)%progressInterval == 0 && i+1 != total {
			progress <- Progress{Added: i + 1, Total: total}
		}
	}
	if progress != nil {
		progress <- Progress{Added: total, Total: total}
	}
	return nil
}

// Query computes cosine similarity between the query embedding and every
// stored record and returns the topK highest-scoring records in descending
// order. An empty store returns an empty result, never an error.
func (s *Store) Query(embedding []float32, topK int) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, &DimensionMismatchError{Want: s.dim, Got: len(embedding)}
	}
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(embedding)
	if queryNorm == 0 {
		return nil, nil
	}

	h := &indexScoreHeap{}
	heap.Init(h)
	for i := range s.records {
		score := cosine(embedding, s.records[i].Embedding, queryNorm)
		if h.Len() < topK {
			heap.Push(h, indexScore{Index: i, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = indexScore{Index: i, Score: score}
			heap.Fix(h, 0)
		}
	}

	results := make([]ScoredRecord, 0, h.Len())
	for h.Len() > 0 {
		item := heap.Pop(h).(indexScore)
		results = append(results, ScoredRecord{Record: s.records[item.Index], Score: item.Score})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Cosine computes the cosine similarity of two equal-length vectors. Exposed
// for tests and callers that need to compare raw embeddings.
func Cosine(a, b []float32) float32 {
	return cosine(a, b, norm(a))
}

// cosine computes dot(a,b) / (aNorm * ||b||) with float64 accumulation.
// aNorm is the precomputed L2 norm of a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 || aNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// indexScore tracks a record index and its score during the scan phase.
type indexScore struct {
	Index int
	Score float32
}

// indexScoreHeap is a min-heap of indexScore ordered by Score, used to keep
// the running top-K during a scan.
type indexScoreHeap []indexScore

func (h indexScoreHeap) Len() int            { return len(h) }
func (h indexScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h indexScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexScoreHeap) Push(x interface{}) { *h = append(*h, x.(indexScore)) }
func (h *indexScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
