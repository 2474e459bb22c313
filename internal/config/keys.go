package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		typ: kInt, env: "RULECHAT_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		typ: kString, env: "RULECHAT_SERVER_TOKEN",
		apply: func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
	},
	{
		typ: kString, env: "RULECHAT_OLLAMA_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
	},
	{
		typ: kString, env: "RULECHAT_OLLAMA_EMBED_MODEL",
		apply: func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
	},
	{
		typ: kString, env: "RULECHAT_LLM_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
	},
	{
		typ: kString, env: "RULECHAT_LLM_API_KEY",
		apply: func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
	},
	{
		typ: kString, env: "RULECHAT_LLM_MODEL",
		apply: func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
	},
	{
		typ: kString, env: "RULECHAT_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		typ: kInt, env: "RULECHAT_RETRIEVAL_TOP_K",
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		typ: kFloat, env: "RULECHAT_RETRIEVAL_MIN_SCORE",
		apply: func(cfg *Config, v any) { cfg.Retrieval.MinScore = v.(float64) },
	},
	{
		typ: kInt, env: "RULECHAT_RETRIEVAL_MAX_CONTEXT_TOKENS",
		apply: func(cfg *Config, v any) { cfg.Retrieval.MaxContextTokens = v.(int) },
	},
	{
		typ: kInt, env: "RULECHAT_RETRIEVAL_MAX_ITERATIONS",
		apply: func(cfg *Config, v any) { cfg.Retrieval.MaxIterations = v.(int) },
	},
	{
		typ: kString, env: "RULECHAT_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
