package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"embeddings":[[0.1,0.2,0.3]]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewEmbedder(NewClient(srv.URL), "nomic-embed-text")
	vec, err := e.Embed(context.Background(), "robot size limit")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %d dims, want 3", len(vec))
	}
}

func TestEmbedBatch(t *testing.T) {
	var mu sync.Mutex
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		fmt.Fprint(w, `{"embeddings":[[1.0,0.0]]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewEmbedder(NewClient(srv.URL), "nomic-embed-text")
	texts := []string{"a", "b", "c", "d", "e", "f"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	if calls != len(texts) {
		t.Errorf("calls = %d, want %d", calls, len(texts))
	}

	empty, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || empty != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", empty, err)
	}
}

func TestEmbed_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	e := NewEmbedder(NewClient(srv.URL), "nomic-embed-text")
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error from failing backend")
	}
}
