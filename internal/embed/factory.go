package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/studyrag/studyrag/internal/config"
)

// Provider identifies an embedding provider.
type Provider string

const (
	// ProviderOpenAI uses the OpenAI embeddings API (default).
	ProviderOpenAI Provider = "openai"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama Provider = "ollama"

	// ProviderStatic uses hash-based embeddings (offline mode, tests).
	ProviderStatic Provider = "static"
)

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{
		string(ProviderOpenAI),
		string(ProviderOllama),
		string(ProviderStatic),
	}
}

// New creates an embedder from configuration and wraps it with the LRU
// cache. A negative cache size disables caching. The OpenAI API key is read
// from the OPENAI_API_KEY environment variable, never from the config.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	timeout, err := requestTimeout(cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var embedder Embedder
	switch Provider(strings.ToLower(cfg.Provider)) {
	case ProviderStatic:
		embedder = NewStaticEmbedder()

	case ProviderOllama:
		host := cfg.OllamaHost
		if env := os.Getenv("STUDYRAG_OLLAMA_HOST"); env != "" {
			host = env
		}
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, err
		}

	case ProviderOpenAI, "":
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:            os.Getenv("OPENAI_API_KEY"),
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			BaseURL:           cfg.OpenAIBaseURL,
			Timeout:           timeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			cfg.Provider, strings.Join(ValidProviders(), ", "))
	}

	if cfg.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

// requestTimeout parses the configured request timeout.
func requestTimeout(s string) (time.Duration, error) {
	if s == "" {
		return DefaultRequestTimeout, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid embeddings.request_timeout %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("embeddings.request_timeout must be positive, got %s", s)
	}
	return d, nil
}
