package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var opts collectionFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats --user USER --course COURSE",
		Short: "Show collection statistics",
		Long: `Display document and chunk counts for a (user, course) collection,
plus the embedding model and index backends it runs on.

Example:
  studyrag stats --user alice --course bio101`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, opts, jsonOutput)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// statsOutput is the JSON output format for collection stats.
type statsOutput struct {
	Collection     string   `json:"collection"`
	Directory      string   `json:"directory"`
	Documents      int      `json:"documents"`
	Chunks         int      `json:"chunks"`
	DocumentIDs    []string `json:"document_ids"`
	EmbeddingModel string   `json:"embedding_model,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
	LexicalBackend string   `json:"lexical_backend"`
	VectorBackend  string   `json:"vector_backend"`
	Provider       string   `json:"provider"`
}

func runStats(ctx context.Context, cmd *cobra.Command, opts collectionFlags, jsonOutput bool) error {
	key, err := opts.key()
	if err != nil {
		return err
	}

	manager, cfg, err := openManagerLocal(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	stats, err := manager.Stats(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	out := statsOutput{
		Collection:     key.String(),
		Directory:      manager.Dir(key),
		Documents:      stats.TotalDocuments,
		Chunks:         stats.TotalChunks,
		DocumentIDs:    stats.DocumentIDs,
		EmbeddingModel: stats.EmbeddingModel,
		Dimensions:     stats.Dimensions,
		LexicalBackend: cfg.Search.LexicalBackend,
		VectorBackend:  cfg.Search.VectorBackend,
		Provider:       cfg.Embeddings.Provider,
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	return printStatsFormatted(cmd, out)
}

func printStatsFormatted(cmd *cobra.Command, out statsOutput) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Collection Statistics")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Collection: %s\n", out.Collection)
	fmt.Fprintf(w, "Directory:  %s\n", out.Directory)
	fmt.Fprintf(w, "Documents:  %d\n", out.Documents)
	fmt.Fprintf(w, "Chunks:     %d\n", out.Chunks)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Embeddings:")
	fmt.Fprintf(w, "  Provider:   %s\n", out.Provider)
	if out.EmbeddingModel != "" {
		fmt.Fprintf(w, "  Model:      %s\n", out.EmbeddingModel)
	} else {
		fmt.Fprintln(w, "  Model:      (nothing ingested yet)")
	}
	if out.Dimensions > 0 {
		fmt.Fprintf(w, "  Dimensions: %d\n", out.Dimensions)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Backends:")
	fmt.Fprintf(w, "  Lexical: %s\n", out.LexicalBackend)
	fmt.Fprintf(w, "  Vector:  %s\n", out.VectorBackend)

	return nil
}
