package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/rulechat/rulechat/internal/api"
	"github.com/rulechat/rulechat/internal/config"
	"github.com/rulechat/rulechat/internal/embed"
	"github.com/rulechat/rulechat/internal/llm"
	"github.com/rulechat/rulechat/internal/rag"
	"github.com/rulechat/rulechat/internal/storage"
	"github.com/rulechat/rulechat/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rulechat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func snapshotPath(dataDir string) string {
	return filepath.Join(dataDir, "vectors.json")
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "rulechat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check embedding backend readiness.
	embedClient := embed.NewClient(cfg.Ollama.BaseURL)
	if !embedClient.IsRunning(ctx) {
		return fmt.Errorf("ollama is not reachable at %s; start it before serving", cfg.Ollama.BaseURL)
	}

	// Load the vector index. A malformed snapshot is fatal here rather than
	// silently served as an empty index.
	index, err := vectorstore.Open(snapshotPath(cfg.Storage.DataDir))
	if err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}
	if index.Count() == 0 {
		printWarning("no indexed manual found; run `rulechat ingest <pdf>` first")
	} else {
		slog.Info("vector index loaded", "chunks", index.Count())
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	embedder := embed.NewEmbedder(embedClient, cfg.Ollama.EmbedModel)
	llmClient := llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	svc := rag.NewService(embedder, index, llmClient, rag.Options{
		Model:            cfg.LLM.Model,
		TopK:             cfg.Retrieval.TopK,
		MinScore:         float32(cfg.Retrieval.MinScore),
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		MaxIterations:    cfg.Retrieval.MaxIterations,
	})

	handler := api.NewHandler(api.Deps{
		Service:    svc,
		Index:      index,
		Log:        store,
		Token:      cfg.Server.Token,
		Model:      cfg.LLM.Model,
		EmbedModel: cfg.Ollama.EmbedModel,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio transport alongside HTTP.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Searcher: svc,
		Service:  svc,
		Index:    index,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "rulechat listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
