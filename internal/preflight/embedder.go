package preflight

import (
	"context"
	"fmt"

	"github.com/studyrag/studyrag/internal/embed"
)

// CheckEmbeddingProvider builds the configured embedder and probes its
// readiness. In offline mode the static provider is checked instead, so
// the probe never reaches the network.
func (c *Checker) CheckEmbeddingProvider(ctx context.Context, dataDir string) CheckResult {
	result := CheckResult{
		Name:     "embedding_provider",
		Required: false,
	}

	cfg, err := c.loadConfig(dataDir)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "skipped (configuration invalid)"
		return result
	}

	embedCfg := cfg.Embeddings
	if c.offline {
		embedCfg.Provider = string(embed.ProviderStatic)
	}

	embedder, err := embed.New(ctx, embedCfg)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s provider not usable: %v", embedCfg.Provider, err)
		result.Details = providerHint(embedCfg.Provider)
		return result
	}
	defer func() { _ = embedder.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, embed.ProbeTimeout)
	defer cancel()

	if !embedder.Available(probeCtx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s provider not reachable", embedCfg.Provider)
		result.Details = providerHint(embedCfg.Provider)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s ready (%s, %d dimensions)",
		embedCfg.Provider, embedder.ModelName(), embedder.Dimensions())
	return result
}

// providerHint suggests a fix for an unusable provider.
func providerHint(provider string) string {
	switch embed.Provider(provider) {
	case embed.ProviderOpenAI:
		return "Set OPENAI_API_KEY, or switch embeddings.provider to ollama or static"
	case embed.ProviderOllama:
		return "Start Ollama, or set STUDYRAG_OLLAMA_HOST to a reachable server"
	default:
		return ""
	}
}
