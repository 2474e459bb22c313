package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rulechat/rulechat/internal/vectorstore"
)

// BatchEmbedder generates embeddings for a batch of texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the store surface the ingester writes to.
type VectorIndex interface {
	Rebuild()
	Add(records []vectorstore.Record, progress chan<- vectorstore.Progress) error
	Save() error
}

// Stats summarizes one ingestion run.
type Stats struct {
	Documents int
	Pages     int
	Chunks    int
}

// Ingester rebuilds the vector index from PDF files. An ingestion pass
// replaces the whole index; it is expected to run offline, not concurrently
// with live query traffic.
type Ingester struct {
	embedder BatchEmbedder
	index    VectorIndex
	chunker  Chunker
	logger   *slog.Logger
}

// NewIngester creates an Ingester with the given dependencies.
func NewIngester(embedder BatchEmbedder, index VectorIndex, chunker Chunker) *Ingester {
	return &Ingester{
		embedder: embedder,
		index:    index,
		chunker:  chunker,
		logger:   slog.Default(),
	}
}

// Run extracts the given PDFs and indexes them. The index is rebuilt from
// scratch; prior records are discarded.
func (ing *Ingester) Run(ctx context.Context, paths []string) (Stats, error) {
	var docs []Document
	for _, path := range paths {
		doc, err := ExtractPDF(path)
		if err != nil {
			return Stats{}, err
		}
		ing.logger.Info("extracted document", "source", doc.Source, "pages", len(doc.Pages))
		docs = append(docs, doc)
	}
	return ing.IndexDocuments(ctx, docs)
}

// IndexDocuments chunks, embeds, and indexes already-extracted documents,
// then persists the snapshot.
func (ing *Ingester) IndexDocuments(ctx context.Context, docs []Document) (Stats, error) {
	var stats Stats
	var texts []string
	var metas []vectorstore.Metadata

	chunkIndex := 0
	for _, doc := range docs {
		stats.Documents++
		stats.Pages += len(doc.Pages)

		for _, page := range doc.Pages {
			for _, chunk := range ing.chunker.Split(page.Text) {
				texts = append(texts, chunk)
				metas = append(metas, vectorstore.Metadata{
					Source:     doc.Source,
					Page:       page.Number,
					ChunkIndex: chunkIndex,
					Length:     len(chunk),
				})
				chunkIndex++
			}
		}
	}
	stats.Chunks = len(texts)
	if len(texts) == 0 {
		return stats, fmt.Errorf("no text extracted from %d document(s)", len(docs))
	}

	vectors, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return stats, fmt.Errorf("embedding chunks: %w", err)
	}

	records := make([]vectorstore.Record, len(texts))
	for i := range texts {
		records[i] = vectorstore.Record{
			Content:   texts[i],
			Embedding: vectors[i],
			Meta:      metas[i],
		}
	}

	ing.index.Rebuild()

	progress := make(chan vectorstore.Progress, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			ing.logger.Info("indexing chunks", "added", p.Added, "total", p.Total)
		}
	}()
	err = ing.index.Add(records, progress)
	close(progress)
	<-done
	if err != nil {
		return stats, fmt.Errorf("indexing chunks: %w", err)
	}

	if err := ing.index.Save(); err != nil {
		return stats, fmt.Errorf("saving snapshot: %w", err)
	}
	return stats, nil
}
