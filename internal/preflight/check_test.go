package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyrag/studyrag/internal/store"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{
			name:     "required pass is not critical",
			result:   CheckResult{Status: StatusPass, Required: true},
			expected: false,
		},
		{
			name:     "required fail is critical",
			result:   CheckResult{Status: StatusFail, Required: true},
			expected: true,
		},
		{
			name:     "optional fail is not critical",
			result:   CheckResult{Status: StatusFail, Required: false},
			expected: false,
		},
		{
			name:     "required warn is not critical",
			result:   CheckResult{Status: StatusWarn, Required: true},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestChecker_New(t *testing.T) {
	// Given: default options
	checker := New()

	// Then: checker is created with defaults
	assert.NotNil(t, checker)
	assert.False(t, checker.offline)
	assert.False(t, checker.verbose)
}

func TestChecker_NewWithOptions(t *testing.T) {
	// Given: custom options
	buf := &bytes.Buffer{}
	checker := New(
		WithOffline(true),
		WithVerbose(true),
		WithConfigPath("/tmp/custom.yaml"),
		WithOutput(buf),
	)

	// Then: options are applied
	assert.True(t, checker.offline)
	assert.True(t, checker.verbose)
	assert.Equal(t, "/tmp/custom.yaml", checker.configPath)
	assert.Equal(t, buf, checker.output)
}

func TestChecker_HasCriticalFailures(t *testing.T) {
	checker := New()

	tests := []struct {
		name     string
		results  []CheckResult
		expected bool
	}{
		{
			name:     "no results",
			results:  []CheckResult{},
			expected: false,
		},
		{
			name: "all pass",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusPass, Required: true},
			},
			expected: false,
		},
		{
			name: "warning only",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusWarn, Required: false},
			},
			expected: false,
		},
		{
			name: "optional failure",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusFail, Required: false},
			},
			expected: false,
		},
		{
			name: "required failure",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusFail, Required: true},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_CheckWritePermissions_Writable(t *testing.T) {
	// Given: a writable directory
	tmpDir := t.TempDir()

	// When: checking write permissions
	checker := New()
	result := checker.CheckWritePermissions(tmpDir)

	// Then: passes
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "write_permissions", result.Name)
	assert.True(t, result.Required)
}

func TestChecker_CheckWritePermissions_CreatesDataDir(t *testing.T) {
	// Given: a data directory that does not exist yet
	dataDir := filepath.Join(t.TempDir(), "fresh", ".studyrag")

	// When: checking write permissions
	checker := New()
	result := checker.CheckWritePermissions(dataDir)

	// Then: passes and the directory was created
	assert.Equal(t, StatusPass, result.Status)
	assert.DirExists(t, dataDir)
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	// Given: a read-only directory (skip on CI/root)
	if os.Getuid() == 0 {
		t.Skip("Skipping read-only test when running as root")
	}

	tmpDir := t.TempDir()
	readOnlyDir := filepath.Join(tmpDir, "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0555))
	defer func() { _ = os.Chmod(readOnlyDir, 0755) }() // Restore for cleanup

	// When: checking write permissions
	checker := New()
	result := checker.CheckWritePermissions(readOnlyDir)

	// Then: fails
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "permission denied")
}

func TestChecker_CheckDiskSpace(t *testing.T) {
	// Given: an existing directory
	tmpDir := t.TempDir()

	// When: checking disk space
	checker := New()
	result := checker.CheckDiskSpace(tmpDir)

	// Then: reports a result either way
	assert.Equal(t, "disk_space", result.Name)
	assert.True(t, result.Required)
	assert.Contains(t, result.Message, "minimum: 100 MB")
}

func TestChecker_CheckDiskSpace_MissingDirUsesAncestor(t *testing.T) {
	// Given: a data directory that does not exist yet
	dataDir := filepath.Join(t.TempDir(), "not", "created", "yet")

	// When: checking disk space
	checker := New()
	result := checker.CheckDiskSpace(dataDir)

	// Then: the check still reports real numbers
	assert.NotEqual(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "free")
}

func TestChecker_CheckConfig_Defaults(t *testing.T) {
	// Given: a data directory with no config file
	tmpDir := t.TempDir()

	// When: checking configuration
	checker := New()
	result := checker.CheckConfig(tmpDir)

	// Then: defaults are valid
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "config", result.Name)
	assert.Contains(t, result.Details, "provider=openai")
}

func TestChecker_CheckConfig_InvalidFile(t *testing.T) {
	// Given: a config file with an out-of-range alpha
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  alpha: 1.5\n"), 0644))

	// When: checking configuration
	checker := New()
	result := checker.CheckConfig(tmpDir)

	// Then: fails with the validation message
	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "alpha")
}

func TestChecker_CheckConfig_ExplicitPath(t *testing.T) {
	// Given: an explicit config file outside the data directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "elsewhere.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  alpha: 0.5\n"), 0644))

	// When: checking with WithConfigPath
	checker := New(WithConfigPath(configPath))
	result := checker.CheckConfig(tmpDir)

	// Then: the explicit file is used
	assert.Equal(t, StatusPass, result.Status)
}

func TestChecker_CheckCollections_NoneYet(t *testing.T) {
	// Given: a fresh data directory
	tmpDir := t.TempDir()

	// When: checking collections
	checker := New()
	result := checker.CheckCollections(tmpDir)

	// Then: passes with "none yet"
	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "none yet", result.Message)
}

func TestChecker_CheckCollections_CountsChunkStores(t *testing.T) {
	// Given: two collections, one missing its chunk store
	tmpDir := t.TempDir()
	good := filepath.Join(tmpDir, "collections", "sb_aaaaaaaaaaaaaaaaaaaaaaaa")
	broken := filepath.Join(tmpDir, "collections", "sb_bbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, os.MkdirAll(good, 0755))
	require.NoError(t, os.MkdirAll(broken, 0755))
	require.NoError(t, os.WriteFile(store.ChunkStorePath(good), []byte("x"), 0644))

	// When: checking collections
	checker := New()
	result := checker.CheckCollections(tmpDir)

	// Then: warns about the broken one
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "2 collection(s)")
	assert.Contains(t, result.Message, "1 missing a chunk store")
}

func TestChecker_CheckEmbeddingProvider_Offline(t *testing.T) {
	// Given: offline mode
	tmpDir := t.TempDir()
	checker := New(WithOffline(true))

	// When: checking the provider
	result := checker.CheckEmbeddingProvider(context.Background(), tmpDir)

	// Then: the static provider is always ready
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "static")
	assert.False(t, result.Required)
}

func TestChecker_RunAll_ReturnsAllChecks(t *testing.T) {
	// Given: a valid directory
	tmpDir := t.TempDir()
	checker := New(WithOffline(true)) // Run in offline mode

	// When: running all checks
	ctx := context.Background()
	results := checker.RunAll(ctx, tmpDir)

	// Then: returns multiple check results
	assert.NotEmpty(t, results)

	// Verify expected checks are present
	checkNames := make(map[string]bool)
	for _, r := range results {
		checkNames[r.Name] = true
	}

	assert.True(t, checkNames["disk_space"], "disk_space check missing")
	assert.True(t, checkNames["write_permissions"], "write_permissions check missing")
	assert.True(t, checkNames["config"], "config check missing")
	assert.True(t, checkNames["embedding_provider"], "embedding_provider check missing")
	assert.True(t, checkNames["collections"], "collections check missing")
}

func TestChecker_PrintResults(t *testing.T) {
	// Given: some check results
	results := []CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "50 GB free"},
		{Name: "embedding_provider", Status: StatusWarn, Message: "ollama provider not reachable"},
		{Name: "config", Status: StatusFail, Message: "invalid alpha", Required: true},
	}

	buf := &bytes.Buffer{}
	checker := New(WithOutput(buf))

	// When: printing results
	checker.PrintResults(results)

	// Then: output contains formatted results
	output := buf.String()
	assert.Contains(t, output, "[PASS]")
	assert.Contains(t, output, "[WARN]")
	assert.Contains(t, output, "[FAIL]")
	assert.Contains(t, output, "disk_space")
	assert.Contains(t, output, "Status: FAILED")
	assert.Contains(t, output, "1 error(s):")
	assert.Contains(t, output, "1 warning(s):")
}

func TestChecker_SummaryStatus(t *testing.T) {
	checker := New()

	tests := []struct {
		name     string
		results  []CheckResult
		expected string
	}{
		{
			name: "all pass",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusPass},
			},
			expected: "ready",
		},
		{
			name: "with warnings",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusWarn},
			},
			expected: "ready_with_warnings",
		},
		{
			name: "with critical failure",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusFail, Required: true},
			},
			expected: "failed",
		},
		{
			name: "with optional failure",
			results: []CheckResult{
				{Status: StatusPass},
				{Status: StatusFail, Required: false},
			},
			expected: "ready_with_warnings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.SummaryStatus(tt.results))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{500, "500 bytes"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBytes(tt.bytes))
		})
	}
}
