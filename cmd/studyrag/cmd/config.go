package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/studyrag/studyrag/configs"
	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the configuration file for the data directory.

The configuration file tunes chunking, retrieval, and embedding settings
that apply to every collection under the data directory, such as:
  - Chunk size and overlap
  - Fusion weight (alpha) and MMR lambda
  - Embedding provider and model
  - Index backends (memory/bleve, exact/hnsw)

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. Data-dir config (<data-dir>/config.yaml)
  3. Environment variables (STUDYRAG_*)`,
		Example: `  # Create config from template
  studyrag config init

  # Show effective configuration (merged from all sources)
  studyrag config show

  # Print config file path
  studyrag config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create configuration file",
		Long: `Create the configuration file from a template.

The configuration file is created at <data-dir>/config.yaml
(default ~/.studyrag/config.yaml, or the directory given with --data).

The template spells out every setting with its default and a short
explanation, so editing it is self-guided.`,
		Example: `  # Create config
  studyrag config init

  # Overwrite existing config
  studyrag config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources.

By default, shows the merged configuration from:
  1. Hardcoded defaults
  2. Data-dir config (<data-dir>/config.yaml)
  3. Environment variables`,
		Example: `  # Show merged configuration
  studyrag config show

  # Show as JSON
  studyrag config show --json

  # Show only the config file contents
  studyrag config show --source file`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, file, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print config file path",
		Long:  `Print the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), configFilePath())
			return nil
		},
	}
}

// configFilePath resolves the config file the other subcommands act on:
// the --config flag if given, otherwise the data directory's config.yaml.
func configFilePath() string {
	if configPathFlag != "" {
		return configPathFlag
	}
	return config.Path(resolveDataDir())
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	configPath := configFilePath()

	if _, err := os.Stat(configPath); err == nil && !force {
		out.Warning("Configuration already exists")
		out.Statusf("📁", "Location: %s", configPath)
		out.Newline()
		out.Status("💡", "Use --force to overwrite with the current template")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configs.ConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", configPath)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit the file to customize settings")
	out.Status("", "  2. Set OPENAI_API_KEY (or switch to the ollama provider)")
	out.Status("", "  3. Run 'studyrag config show' to verify")

	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var cfg *config.Config
	var sourceDesc string

	switch source {
	case "merged":
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		sourceDesc = "merged (defaults + file + env)"

	case "file":
		configPath := configFilePath()
		if _, err := os.Stat(configPath); err != nil {
			out.Warning("No configuration file found")
			out.Statusf("📁", "Expected at: %s", configPath)
			out.Status("💡", "Run 'studyrag config init' to create one")
			return nil
		}

		cfg = config.NewConfig()
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		sourceDesc = fmt.Sprintf("file (%s)", configPath)

	case "defaults":
		cfg = config.NewConfig()
		sourceDesc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, file, defaults)", source)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else {
		out.Statusf("📋", "Configuration source: %s", sourceDesc)
		out.Newline()

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}

	return nil
}
