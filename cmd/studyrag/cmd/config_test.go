package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitCmd_CreatesFile(t *testing.T) {
	dataDir := t.TempDir()

	output, err := execute(t, "config", "init", "--data", dataDir)

	require.NoError(t, err)
	assert.Contains(t, output, "Created configuration")

	configPath := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size")
	assert.Contains(t, string(data), "alpha")
	assert.Contains(t, string(data), "provider")
}

func TestConfigInitCmd_RefusesToOverwrite(t *testing.T) {
	dataDir := t.TempDir()

	_, err := execute(t, "config", "init", "--data", dataDir)
	require.NoError(t, err)

	configPath := filepath.Join(dataDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1\n"), 0644))

	output, err := execute(t, "config", "init", "--data", dataDir)
	require.NoError(t, err)
	assert.Contains(t, output, "already exists")
	assert.Contains(t, output, "--force")

	// The hand-edited file is untouched.
	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInitCmd_ForceOverwrites(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1\n"), 0644))

	output, err := execute(t, "config", "init", "--data", dataDir, "--force")

	require.NoError(t, err)
	assert.Contains(t, output, "Created configuration")

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size")
}

func TestConfigShowCmd_Merged(t *testing.T) {
	dataDir := t.TempDir()

	output, err := execute(t, "config", "show", "--data", dataDir)

	require.NoError(t, err)
	assert.Contains(t, output, "merged")
	assert.Contains(t, output, "alpha: 0.7")
	assert.Contains(t, output, "provider: openai")
}

func TestConfigShowCmd_MergedHonorsFile(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  alpha: 0.5\n"), 0644))

	output, err := execute(t, "config", "show", "--data", dataDir)

	require.NoError(t, err)
	assert.Contains(t, output, "alpha: 0.5")
}

func TestConfigShowCmd_JSON(t *testing.T) {
	dataDir := t.TempDir()

	output, err := execute(t, "config", "show", "--data", dataDir, "--json")
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &cfg))
	assert.Contains(t, cfg, "search")
	assert.Contains(t, cfg, "embeddings")
	assert.Contains(t, cfg, "segment")
}

func TestConfigShowCmd_FileSourceWithoutFile(t *testing.T) {
	dataDir := t.TempDir()

	output, err := execute(t, "config", "show", "--data", dataDir, "--source", "file")

	require.NoError(t, err)
	assert.Contains(t, output, "No configuration file found")
	assert.Contains(t, output, "config init")
}

func TestConfigShowCmd_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(dataDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  alpha: 0.5\n"), 0644))

	// The defaults view ignores the file on disk.
	output, err := execute(t, "config", "show", "--data", dataDir, "--source", "defaults")

	require.NoError(t, err)
	assert.Contains(t, output, "defaults")
	assert.Contains(t, output, "alpha: 0.7")
}

func TestConfigShowCmd_InvalidSource(t *testing.T) {
	dataDir := t.TempDir()

	_, err := execute(t, "config", "show", "--data", dataDir, "--source", "bogus")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source")
}

func TestConfigPathCmd(t *testing.T) {
	dataDir := t.TempDir()

	output, err := execute(t, "config", "path", "--data", dataDir)

	require.NoError(t, err)
	assert.Contains(t, output, filepath.Join(dataDir, "config.yaml"))
}

func TestConfigPathCmd_ExplicitConfigFlag(t *testing.T) {
	output, err := execute(t, "config", "path", "--config", "/etc/studyrag.yaml")

	require.NoError(t, err)
	assert.Contains(t, output, "/etc/studyrag.yaml")
}
