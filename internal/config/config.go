package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete StudyRAG configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Segment    SegmentConfig    `yaml:"segment" json:"segment"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SegmentConfig configures document chunking.
type SegmentConfig struct {
	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the trailing context carried into the next chunk,
	// in characters. Must be smaller than ChunkSize.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// SearchConfig configures hybrid retrieval parameters.
type SearchConfig struct {
	// Alpha is the semantic weight in score fusion (0.0-1.0).
	// The lexical weight is 1 - Alpha.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// MMRLambda trades relevance against diversity in result selection
	// (1.0 = pure relevance, 0.0 = pure diversity).
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`

	// MinScore is the fused-score threshold used for quality assessment.
	// It classifies result sets; it never filters results out.
	MinScore float64 `yaml:"min_score" json:"min_score"`

	// CandidatePool is the number of top hits taken from each signal
	// before fusion. The fused candidate set is the union of both pools.
	CandidatePool int `yaml:"candidate_pool" json:"candidate_pool"`

	// DefaultK is the result count when the caller does not specify one.
	DefaultK int `yaml:"default_k" json:"default_k"`

	// SnippetLength caps citation snippets, in runes.
	SnippetLength int `yaml:"snippet_length" json:"snippet_length"`

	// LexicalBackend selects the BM25 index backend.
	// Options: "memory" (default, exact scoring) or "bleve" (on-disk index).
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// VectorBackend selects the semantic index backend.
	// Options: "exact" (default, brute-force cosine) or "hnsw" (approximate).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// BM25K1 and BM25B are the BM25 scoring constants, tuned for
	// short-passage retrieval.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B  float64 `yaml:"bm25_b" json:"bm25_b"`

	Quality QualityConfig `yaml:"quality" json:"quality"`
}

// QualityConfig configures the retrieval quality bands. These are policy
// constants, kept configurable until validated against a real corpus.
type QualityConfig struct {
	// HighScore is the minimum top fused score for the "high" band.
	HighScore float64 `yaml:"high_score" json:"high_score"`
	// MediumScore is the minimum top fused score for the "medium" band.
	MediumScore float64 `yaml:"medium_score" json:"medium_score"`
	// HighCount is the minimum number of results at or above the
	// min-score threshold for the "high" band.
	HighCount int `yaml:"high_count" json:"high_count"`
	// MediumCount is the equivalent for the "medium" band.
	MediumCount int `yaml:"medium_count" json:"medium_count"`
}

// EmbeddingsConfig configures the embedding provider.
// API keys are never stored here; the OpenAI provider reads
// OPENAI_API_KEY from the environment.
type EmbeddingsConfig struct {
	// Provider selects the embedding provider: "openai", "ollama", or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the provider-specific embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the expected vector dimensionality. 0 means take the
	// provider's native dimensionality.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is the number of texts per provider request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the LRU embedding cache capacity (entries). Zero takes
	// the default; a negative value disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// RequestTimeout bounds a single provider call (e.g. "30s").
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
	// RequestsPerMinute rate-limits hosted providers. 0 means unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	// OllamaHost is the Ollama API endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// OpenAIBaseURL overrides the OpenAI API base URL (for proxies).
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`
}

// IngestConfig configures the ingest pipeline.
type IngestConfig struct {
	// Workers is the size of the embedding worker pool used while
	// ingesting a document's chunk batches.
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
	// File enables logging to <data>/logs/studyrag.log in addition to stderr.
	File bool `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Segment: SegmentConfig{
			ChunkSize:    1000,
			ChunkOverlap: 500,
		},
		Search: SearchConfig{
			Alpha:          0.7,
			MMRLambda:      0.7,
			MinScore:       0.3,
			CandidatePool:  30,
			DefaultK:       8,
			SnippetLength:  200,
			LexicalBackend: "memory",
			VectorBackend:  "exact",
			// k1=1.5, b=0.75: standard constants for short-passage BM25
			BM25K1: 1.5,
			BM25B:  0.75,
			Quality: QualityConfig{
				HighScore:   0.6,
				MediumScore: 0.3,
				HighCount:   3,
				MediumCount: 1,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			Dimensions:        0, // take the provider's native dimensionality
			BatchSize:         32,
			CacheSize:         4096,
			RequestTimeout:    "30s",
			RequestsPerMinute: 0,
			OllamaHost:        "",
			OpenAIBaseURL:     "",
		},
		Ingest: IngestConfig{
			Workers: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  false,
		},
	}
}

// DefaultDataDir returns the default data directory (~/.studyrag).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".studyrag")
	}
	return filepath.Join(home, ".studyrag")
}

// Path returns the config file path inside a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, "config.yaml")
}

// Load loads configuration for a data directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. <dataDir>/config.yaml (or .yml)
//  3. Environment variables (STUDYRAG_*)
func Load(dataDir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromDir(dataDir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit file path instead of a data
// directory. The file must exist. Environment overrides still apply.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir attempts to load configuration from config.yaml or config.yml.
func (c *Config) loadFromDir(dataDir string) error {
	yamlPath := Path(dataDir)
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dataDir, "config.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
// Zero is not a practical value for any of these fields, so only set
// fields override the defaults.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Segment.ChunkSize != 0 {
		c.Segment.ChunkSize = other.Segment.ChunkSize
	}
	if other.Segment.ChunkOverlap != 0 {
		c.Segment.ChunkOverlap = other.Segment.ChunkOverlap
	}

	if other.Search.Alpha != 0 {
		c.Search.Alpha = other.Search.Alpha
	}
	if other.Search.MMRLambda != 0 {
		c.Search.MMRLambda = other.Search.MMRLambda
	}
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}
	if other.Search.CandidatePool != 0 {
		c.Search.CandidatePool = other.Search.CandidatePool
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}
	if other.Search.SnippetLength != 0 {
		c.Search.SnippetLength = other.Search.SnippetLength
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}
	if other.Search.VectorBackend != "" {
		c.Search.VectorBackend = other.Search.VectorBackend
	}
	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if other.Search.Quality.HighScore != 0 {
		c.Search.Quality.HighScore = other.Search.Quality.HighScore
	}
	if other.Search.Quality.MediumScore != 0 {
		c.Search.Quality.MediumScore = other.Search.Quality.MediumScore
	}
	if other.Search.Quality.HighCount != 0 {
		c.Search.Quality.HighCount = other.Search.Quality.HighCount
	}
	if other.Search.Quality.MediumCount != 0 {
		c.Search.Quality.MediumCount = other.Search.Quality.MediumCount
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.RequestTimeout != "" {
		c.Embeddings.RequestTimeout = other.Embeddings.RequestTimeout
	}
	if other.Embeddings.RequestsPerMinute != 0 {
		c.Embeddings.RequestsPerMinute = other.Embeddings.RequestsPerMinute
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.OpenAIBaseURL != "" {
		c.Embeddings.OpenAIBaseURL = other.Embeddings.OpenAIBaseURL
	}

	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File {
		c.Logging.File = true
	}
}

// applyEnvOverrides applies STUDYRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STUDYRAG_ALPHA"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Search.Alpha = f
		}
	}
	if v := os.Getenv("STUDYRAG_MMR_LAMBDA"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Search.MMRLambda = f
		}
	}
	if v := os.Getenv("STUDYRAG_CANDIDATE_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.CandidatePool = n
		}
	}
	if v := os.Getenv("STUDYRAG_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("STUDYRAG_VECTOR_BACKEND"); v != "" {
		c.Search.VectorBackend = v
	}
	if v := os.Getenv("STUDYRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("STUDYRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("STUDYRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("STUDYRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Segment.ChunkSize <= 0 {
		return fmt.Errorf("segment.chunk_size must be positive, got %d", c.Segment.ChunkSize)
	}
	if c.Segment.ChunkOverlap < 0 || c.Segment.ChunkOverlap >= c.Segment.ChunkSize {
		return fmt.Errorf("segment.chunk_overlap must be in [0, chunk_size), got %d", c.Segment.ChunkOverlap)
	}

	if c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return fmt.Errorf("search.alpha must be between 0 and 1, got %f", c.Search.Alpha)
	}
	if c.Search.MMRLambda < 0 || c.Search.MMRLambda > 1 {
		return fmt.Errorf("search.mmr_lambda must be between 0 and 1, got %f", c.Search.MMRLambda)
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between 0 and 1, got %f", c.Search.MinScore)
	}
	if c.Search.CandidatePool <= 0 {
		return fmt.Errorf("search.candidate_pool must be positive, got %d", c.Search.CandidatePool)
	}
	if c.Search.DefaultK <= 0 {
		return fmt.Errorf("search.default_k must be positive, got %d", c.Search.DefaultK)
	}
	if c.Search.BM25K1 <= 0 {
		return fmt.Errorf("search.bm25_k1 must be positive, got %f", c.Search.BM25K1)
	}
	if c.Search.BM25B < 0 || c.Search.BM25B > 1 {
		return fmt.Errorf("search.bm25_b must be between 0 and 1, got %f", c.Search.BM25B)
	}

	validLexical := map[string]bool{"memory": true, "bleve": true}
	if !validLexical[strings.ToLower(c.Search.LexicalBackend)] {
		return fmt.Errorf("search.lexical_backend must be 'memory' or 'bleve', got %s", c.Search.LexicalBackend)
	}
	validVector := map[string]bool{"exact": true, "hnsw": true}
	if !validVector[strings.ToLower(c.Search.VectorBackend)] {
		return fmt.Errorf("search.vector_backend must be 'exact' or 'hnsw', got %s", c.Search.VectorBackend)
	}

	validProviders := map[string]bool{"openai": true, "ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'openai', 'ollama', or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
