package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/rulechat/rulechat/internal/vectorstore"
)

type fakeBatchEmbedder struct {
	dim  int
	err  error
	seen []string
}

func (f *fakeBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.seen = texts
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i] = make([]float32, f.dim)
		vecs[i][i%f.dim] = 1
	}
	return vecs, nil
}

type fakeIndex struct {
	rebuilt bool
	records []vectorstore.Record
	saved   bool
	addErr  error
}

func (f *fakeIndex) Rebuild() { f.rebuilt = true; f.records = nil }

func (f *fakeIndex) Add(records []vectorstore.Record, progress chan<- vectorstore.Progress) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.records = append(f.records, records...)
	if progress != nil {
		progress <- vectorstore.Progress{Added: len(records), Total: len(records)}
	}
	return nil
}

func (f *fakeIndex) Save() error { f.saved = true; return nil }

func TestIndexDocuments_MetadataAssignment(t *testing.T) {
	embedder := &fakeBatchEmbedder{dim: 4}
	index := &fakeIndex{}
	ing := NewIngester(embedder, index, NewChunker(100, 0))

	docs := []Document{{
		Source: "manual.pdf",
		Pages: []Page{
			{Number: 1, Text: "Robots must fit within an 18 inch cube."},
			{Number: 2, Text: "R205: Robots must not exceed 120 pounds."},
		},
	}}
	stats, err := ing.IndexDocuments(context.Background(), docs)
	if err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	if stats.Chunks != 2 || stats.Pages != 2 || stats.Documents != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !index.rebuilt || !index.saved {
		t.Errorf("rebuilt=%v saved=%v, want both", index.rebuilt, index.saved)
	}
	if len(index.records) != 2 {
		t.Fatalf("got %d records, want 2", len(index.records))
	}

	first, second := index.records[0], index.records[1]
	if first.Meta.Source != "manual.pdf" || first.Meta.Page != 1 || first.Meta.ChunkIndex != 0 {
		t.Errorf("first metadata = %+v", first.Meta)
	}
	if second.Meta.Page != 2 || second.Meta.ChunkIndex != 1 {
		t.Errorf("second metadata = %+v", second.Meta)
	}
	if first.Meta.Length != len(first.Content) {
		t.Errorf("length = %d, want %d", first.Meta.Length, len(first.Content))
	}
}

func TestIndexDocuments_ChunkIndexSpansDocuments(t *testing.T) {
	ing := NewIngester(&fakeBatchEmbedder{dim: 4}, &fakeIndex{}, NewChunker(100, 0))

	docs := []Document{
		{Source: "manual.pdf", Pages: []Page{{Number: 1, Text: "Rule one."}}},
		{Source: "addendum.pdf", Pages: []Page{{Number: 1, Text: "Rule two."}}},
	}
	if _, err := ing.IndexDocuments(context.Background(), docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	index := ing.index.(*fakeIndex)
	if index.records[0].Meta.ChunkIndex != 0 || index.records[1].Meta.ChunkIndex != 1 {
		t.Errorf("chunk indexes = %d, %d; want 0, 1",
			index.records[0].Meta.ChunkIndex, index.records[1].Meta.ChunkIndex)
	}
	if index.records[1].Meta.Source != "addendum.pdf" {
		t.Errorf("second source = %q", index.records[1].Meta.Source)
	}
}

func TestRun_NoDocuments(t *testing.T) {
	ing := NewIngester(&fakeBatchEmbedder{dim: 4}, &fakeIndex{}, NewChunker(0, 0))
	if _, err := ing.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty ingestion")
	}
}

func TestRun_MissingPDF(t *testing.T) {
	ing := NewIngester(&fakeBatchEmbedder{dim: 4}, &fakeIndex{}, NewChunker(0, 0))
	_, err := ing.Run(context.Background(), []string{"does-not-exist.pdf"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIndexDocuments_EmbedFailureSurfaced(t *testing.T) {
	embedErr := errors.New("backend down")
	ing := NewIngester(&fakeBatchEmbedder{dim: 4, err: embedErr}, &fakeIndex{}, NewChunker(0, 0))

	docs := []Document{{Source: "manual.pdf", Pages: []Page{{Number: 1, Text: "Some rule text."}}}}
	if _, err := ing.IndexDocuments(context.Background(), docs); !errors.Is(err, embedErr) {
		t.Fatalf("err = %v, want %v", err, embedErr)
	}
}
