package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/output"
	"github.com/studyrag/studyrag/internal/retry"
	"github.com/studyrag/studyrag/internal/search"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	collectionFlags
	k         int
	alpha     float64
	lambda    float64
	threshold float64
	pool      int
	format    string
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query --user USER --course COURSE QUERY...",
		Short: "Retrieve study passages for a question",
		Long: `Retrieve passages from a (user, course) collection using hybrid search.

BM25 and semantic scores are normalized and blended, then results are
diversified so the top passages do not all repeat the same content.
Each result carries a page-level citation, and the whole set gets a
quality label (high, medium, low, insufficient).

Examples:
  studyrag query --user alice --course bio101 "krebs cycle steps"
  studyrag query --user alice --course bio101 -k 4 "membrane transport"
  studyrag query --user alice --course bio101 --format json "photosynthesis"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			query := strings.Join(args, " ")
			return runQuery(ctx, cmd, query, opts)
		},
	}

	opts.collectionFlags.register(cmd)
	cmd.Flags().IntVarP(&opts.k, "limit", "k", 0, "Number of results (default from config: 8)")
	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0, "Semantic weight in score fusion, 0-1 (default from config: 0.7)")
	cmd.Flags().Float64Var(&opts.lambda, "lambda", 0, "MMR relevance/diversity trade-off, 0-1 (default from config: 0.7)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Quality-assessment score threshold (default from config: 0.3)")
	cmd.Flags().IntVar(&opts.pool, "pool", 0, "Per-signal candidate pool size (default from config: 30)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, query string, opts queryOptions) error {
	key, err := opts.key()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	manager, _, err := openManager(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	slog.Info("query_started",
		slog.String("collection", key.String()),
		slog.String("query", query),
		slog.Int("k", opts.k))

	retrieveOpts := search.RetrieveOptions{
		K:        opts.k,
		Alpha:    opts.alpha,
		Lambda:   opts.lambda,
		MinScore: opts.threshold,
		PoolSize: opts.pool,
	}

	result, err := retry.DoValue(ctx, embedRetryConfig(), func() (*search.RetrievalResult, error) {
		return manager.Retrieve(ctx, key, query, retrieveOpts)
	})
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	slog.Info("query_complete",
		slog.String("collection", key.String()),
		slog.Int("results", len(result.Results)),
		slog.String("quality", string(result.Quality)))

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		return formatQueryText(out, result)
	}
}

// formatQueryText renders results for a terminal.
func formatQueryText(out *output.Writer, result *search.RetrievalResult) error {
	if len(result.Results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", result.Query))
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q (quality: %s)", len(result.Results), result.Query, result.Quality)
	out.Newline()

	for i, r := range result.Results {
		out.Statusf("", "%d. %s, page %d (score: %.3f)", i+1, r.Citation.Title, r.Page, r.Score)
		out.Indent(r.Citation.Snippet)
		out.Newline()
	}

	if result.Quality == search.QualityLow {
		out.Warning("All results scored weakly; try rephrasing the question.")
	}
	return nil
}
