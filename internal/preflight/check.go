package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/studyrag/studyrag/internal/collection"
	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs preflight validation checks.
type Checker struct {
	offline    bool
	verbose    bool
	configPath string
	output     io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline forces the static embedding provider, so the provider check
// never reaches the network.
func WithOffline(offline bool) Option {
	return func(c *Checker) {
		c.offline = offline
	}
}

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithConfigPath sets an explicit config file to check instead of the data
// directory's config.yaml.
func WithConfigPath(path string) Option {
	return func(c *Checker) {
		c.configPath = path
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks against a data directory and returns
// the results.
func (c *Checker) RunAll(ctx context.Context, dataDir string) []CheckResult {
	var results []CheckResult

	results = append(results, c.CheckDiskSpace(dataDir))
	results = append(results, c.CheckWritePermissions(dataDir))
	results = append(results, c.CheckConfig(dataDir))

	// Non-critical: ingest and query fail loudly on their own when the
	// provider is down, and offline commands never need one.
	results = append(results, c.CheckEmbeddingProvider(ctx, dataDir))

	results = append(results, c.CheckCollections(dataDir))

	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "StudyRAG System Check")
	_, _ = fmt.Fprintln(c.output, "=====================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	status := c.SummaryStatus(results)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(status))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// loadConfig loads the effective configuration the way the commands do:
// an explicit config file when one was set, the data directory otherwise.
func (c *Checker) loadConfig(dataDir string) (*config.Config, error) {
	if c.configPath != "" {
		return config.LoadFile(c.configPath)
	}
	return config.Load(dataDir)
}

// CheckWritePermissions checks if we can write to the data directory,
// creating it if it does not exist yet.
func (c *Checker) CheckWritePermissions(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	// Try to create a temp file
	testFile := filepath.Join(dataDir, ".studyrag-preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "OK"
	result.Details = fmt.Sprintf("Data directory: %s", dataDir)
	return result
}

// CheckConfig validates the effective configuration.
func (c *Checker) CheckConfig(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}

	cfg, err := c.loadConfig(dataDir)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}

	result.Status = StatusPass
	result.Message = "OK"
	result.Details = fmt.Sprintf("provider=%s model=%s lexical=%s vector=%s",
		cfg.Embeddings.Provider, cfg.Embeddings.Model,
		cfg.Search.LexicalBackend, cfg.Search.VectorBackend)
	return result
}

// CheckCollections inventories the collections under the data directory.
func (c *Checker) CheckCollections(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "collections",
		Required: false,
	}

	collRoot := filepath.Join(dataDir, collection.CollectionsDirName)
	entries, err := os.ReadDir(collRoot)
	if err != nil {
		if os.IsNotExist(err) {
			result.Status = StatusPass
			result.Message = "none yet"
			return result
		}
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot read collections directory: %v", err)
		return result
	}

	var total, broken int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		total++
		chunkDB := store.ChunkStorePath(filepath.Join(collRoot, entry.Name()))
		if _, err := os.Stat(chunkDB); err != nil {
			broken++
		}
	}

	switch {
	case total == 0:
		result.Status = StatusPass
		result.Message = "none yet"
	case broken > 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d collection(s), %d missing a chunk store", total, broken)
		result.Details = fmt.Sprintf("Collections directory: %s", collRoot)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d collection(s)", total)
		result.Details = fmt.Sprintf("Collections directory: %s", collRoot)
	}
	return result
}
