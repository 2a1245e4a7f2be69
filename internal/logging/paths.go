package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.studyrag/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".studyrag", "logs")
	}
	return filepath.Join(home, ".studyrag", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "studyrag.log")
}

// PathInDir returns the log file path under a specific data directory,
// for callers that override the data root with --data.
func PathInDir(dataDir string) string {
	return filepath.Join(dataDir, "logs", "studyrag.log")
}
