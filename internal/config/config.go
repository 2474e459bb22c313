package config

import (
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port  int
	Token string // optional bearer token for the HTTP API
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK             int
	MinScore         float64
	MaxContextTokens int
	MaxIterations    int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "qwen/qwen3-30b-a3b-instruct",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MinScore:         0.3,
			MaxContextTokens: 4000,
			MaxIterations:    3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "rulechat-data"
		}
	}
	return filepath.Join(dir, "rulechat")
}

// Load reads configuration from defaults overridden by RULECHAT_* environment
// variables. The LLM API key is required; everything else has a default.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		return Config{}, fmt.Errorf(
			"missing required config: LLM API key. Set it via environment variable RULECHAT_LLM_API_KEY")
	}

	return cfg, nil
}

// LoadForIngest is Load without the API key requirement; ingestion only
// needs the embedding backend and data directory.
func LoadForIngest() Config {
	cfg := defaults()
	applyEnvOverrides(&cfg)
	return cfg
}
