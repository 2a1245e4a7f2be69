// Package cmd provides the CLI commands for StudyRAG.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/logging"
	"github.com/studyrag/studyrag/internal/profiling"
	"github.com/studyrag/studyrag/pkg/version"
)

// Global flags shared by every subcommand.
var (
	dataDirFlag    string
	configPathFlag string
	debugMode      bool
	offlineMode    bool
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

var loggingCleanup func()

// NewRootCmd creates the root command for the studyrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "studyrag",
		Short: "Hybrid retrieval over course documents",
		Long: `StudyRAG ingests course documents and retrieves study passages using
hybrid search (BM25 + semantic) with diversity-aware result selection
and page-level citations.

Each (user, course) pair gets its own isolated collection under the
data directory. Ingest documents first, then query them:

  studyrag ingest --user alice --course bio101 notes.txt
  studyrag query --user alice --course bio101 "krebs cycle steps"`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("studyrag version {{.Version}}\n")

	// Global flags
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data", "", "Data directory (default ~/.studyrag)")
	cmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Config file path (default <data>/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to <data>/logs/")
	cmd.PersistentFlags().BoolVar(&offlineMode, "offline", false, "Use static embeddings (no provider calls)")

	// Profiling flags
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	// Setup profiling and logging hooks
	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	// Add subcommands
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging loads .env, installs the logger, and starts
// CPU/trace profiling if the flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error

	// Secrets like OPENAI_API_KEY may live in a local .env file.
	// A missing file is fine.
	_ = godotenv.Load()

	if err := setupLogging(); err != nil {
		return err
	}

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// setupLogging installs the default slog logger for the invocation.
// Diagnostics go to <data>/logs/studyrag.log when file logging is on;
// otherwise only warnings and errors reach stderr, so command output
// stays clean. The --debug flag forces file logging at debug level and
// mirrors it to stderr.
func setupLogging() error {
	level := "info"
	toFile := false
	if cfg, err := loadConfig(); err == nil {
		level = cfg.Logging.Level
		toFile = cfg.Logging.File
	}

	logCfg := logging.Config{
		Level:         level,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: debugMode,
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	if debugMode || toFile {
		logCfg.FilePath = logging.PathInDir(resolveDataDir())
	} else if logging.LevelFromString(logCfg.Level) < slog.LevelWarn {
		logCfg.Level = "warn"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// File logging is best effort; stay on the default stderr logger.
		slog.Warn("log_setup_failed", slog.String("error", err.Error()))
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if debugMode {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

// stopProfilingAndLogging stops profiling and logging, writes the memory
// profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// resolveDataDir returns the data directory from the --data flag, falling
// back to the default location.
func resolveDataDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	return config.DefaultDataDir()
}

// loadConfig loads configuration honoring the --config and --offline flags.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPathFlag != "" {
		cfg, err = config.LoadFile(configPathFlag)
	} else {
		cfg, err = config.Load(resolveDataDir())
	}
	if err != nil {
		return nil, err
	}

	if offlineMode {
		cfg.Embeddings.Provider = "static"
	}
	return cfg, nil
}
