package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rulechat/rulechat/internal/config"
	"github.com/rulechat/rulechat/internal/embed"
	"github.com/rulechat/rulechat/internal/ingest"
	"github.com/rulechat/rulechat/internal/vectorstore"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf>...",
	Short: "Index one or more PDF manuals into the vector store",
	Long: `Index one or more PDF manuals into the vector store.

The index is rebuilt from scratch on every run; prior records are discarded.
Run this offline, not against a serving instance.

Examples:
  rulechat ingest game-manual.pdf
  rulechat ingest game-manual.pdf addendum.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chunkSize, _ := cmd.Flags().GetInt("chunk-size")
		chunkOverlap, _ := cmd.Flags().GetInt("chunk-overlap")

		cfg := config.LoadForIngest()
		ctx := cmd.Context()

		embedClient := embed.NewClient(cfg.Ollama.BaseURL)
		if !embedClient.IsRunning(ctx) {
			return fmt.Errorf("ollama is not reachable at %s; start it before ingesting", cfg.Ollama.BaseURL)
		}

		index, err := vectorstore.Open(snapshotPath(cfg.Storage.DataDir))
		if err != nil {
			return fmt.Errorf("opening vector index: %w", err)
		}

		embedder := embed.NewEmbedder(embedClient, cfg.Ollama.EmbedModel)
		ingester := ingest.NewIngester(embedder, index, ingest.NewChunker(chunkSize, chunkOverlap))

		printStep("Indexing %d file(s) with %s...", len(args), cfg.Ollama.EmbedModel)
		start := time.Now()
		stats, err := ingester.Run(ctx, args)
		if err != nil {
			return err
		}

		printSuccess("Indexed %d chunks from %d page(s) across %d document(s) in %s",
			stats.Chunks, stats.Pages, stats.Documents, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("chunk-size", 1200, "chunk size in characters")
	ingestCmd.Flags().Int("chunk-overlap", 150, "overlap between consecutive chunks in characters")
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against a running rulechat server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/chat", map[string]any{"question": question})
		if err != nil {
			return err
		}

		var result struct {
			Answer  string `json:"answer"`
			Sources []struct {
				Source string  `json:"source"`
				Page   int     `json:"page"`
				Score  float32 `json:"score"`
			} `json:"sources"`
			Metadata struct {
				ContextsUsed int   `json:"contextsUsed"`
				DurationMS   int64 `json:"durationMs"`
			} `json:"metadata"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Answer)
		if len(result.Sources) > 0 {
			fmt.Fprintln(os.Stdout)
			for _, s := range result.Sources {
				fmt.Fprintf(os.Stdout, "  %s p.%d (%.2f)\n", s.Source, s.Page, s.Score)
			}
		}
		printStatus("Contexts", "%d", result.Metadata.ContextsUsed)
		printStatus("Duration", "%dms", result.Metadata.DurationMS)
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show rulechat system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadForIngest()

		httpClient := &http.Client{Timeout: 2 * time.Second}
		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

		resp, err := httpClient.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			var health struct {
				Indexed    bool   `json:"indexed"`
				Chunks     int    `json:"chunks"`
				SavedAt    string `json:"savedAt"`
				Model      string `json:"model"`
				EmbedModel string `json:"embedModel"`
			}
			decodeErr := decodeJSON(resp, &health)
			if decodeErr != nil {
				printStatus("Server", "error (%v)", decodeErr)
			} else {
				printStatus("Server", "running on port %d", cfg.Server.Port)
				if health.Indexed {
					printStatus("Index", "%d chunks (saved %s)", health.Chunks, health.SavedAt)
				} else {
					printStatus("Index", "empty — run `rulechat ingest`")
				}
				printStatus("Model", "%s", health.Model)
				printStatus("Embed model", "%s", health.EmbedModel)
			}
		}

		ollamaResp, err := httpClient.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently answered questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			CreatedAt  string `json:"createdAt"`
			Question   string `json:"question"`
			Answer     string `json:"answer"`
			DurationMS int64  `json:"durationMs"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stdout, "no recorded answers")
			return nil
		}
		for _, e := range entries {
			fmt.Fprintf(os.Stdout, "%s  %s\n", e.CreatedAt, e.Question)
			fmt.Fprintf(os.Stdout, "    %s\n", firstLine(e.Answer))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
