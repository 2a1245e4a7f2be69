package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/output"
	"github.com/studyrag/studyrag/internal/retry"
	"github.com/studyrag/studyrag/internal/search"
	"github.com/studyrag/studyrag/internal/store"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	collectionFlags
	title string
	docID string
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest --user USER --course COURSE FILE...",
		Short: "Ingest documents into a course collection",
		Long: `Ingest text files into a (user, course) collection.

Each file becomes one document. Multi-page documents use the form-feed
character as the page delimiter, which is what pdftotext emits between
pages. Re-ingesting an existing document id replaces it atomically.

Examples:
  studyrag ingest --user alice --course bio101 notes.txt
  studyrag ingest --user alice --course bio101 --title "Lecture 3" --id lec3 lecture3.txt
  studyrag ingest --user alice --course bio101 chapters/*.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C must cancel in-flight embedding batches.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if len(args) > 1 && (opts.title != "" || opts.docID != "") {
				return fmt.Errorf("--title and --id apply to a single file")
			}
			return runIngest(ctx, cmd, args, opts)
		},
	}

	opts.collectionFlags.register(cmd)
	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (default: file base name)")
	cmd.Flags().StringVar(&opts.docID, "id", "", "Document id (default: random)")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, files []string, opts ingestOptions) error {
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

	slog.Info("ingest_started",
		slog.String("collection", key.String()),
		slog.Int("files", len(files)))

	retryCfg := embedRetryConfig()
	ingested := 0
	totalChunks := 0

	for _, file := range files {
		req, err := readDocument(file, opts.title, opts.docID)
		if err != nil {
			return err
		}

		stats, err := retry.DoValue(ctx, retryCfg, func() (search.IngestStats, error) {
			return manager.Ingest(ctx, key, req)
		})
		if errors.Is(err, store.ErrEmptyDocument) {
			out.Warningf("%s: no extractable text, skipped", file)
			slog.Warn("ingest_empty_document", slog.String("file", file))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", file, err)
		}

		out.Statusf("📄", "%s: %d chunks (document %s)", file, stats.ChunkCount, stats.DocumentID)
		ingested++
		totalChunks += stats.ChunkCount
	}

	slog.Info("ingest_complete",
		slog.String("collection", key.String()),
		slog.Int("documents", ingested),
		slog.Int("chunks", totalChunks))

	out.Successf("Ingested %d document(s), %d chunks into %s", ingested, totalChunks, key.String())
	return nil
}

// readDocument loads a file into an ingest request. Pages are split on
// form-feed; a file without form-feeds is a single page.
func readDocument(file, title, docID string) (search.IngestRequest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return search.IngestRequest{}, fmt.Errorf("failed to read %s: %w", file, err)
	}

	if title == "" {
		title = filepath.Base(file)
	}
	if docID == "" {
		docID = uuid.NewString()[:8]
	}

	return search.IngestRequest{
		DocumentID: docID,
		Title:      title,
		Pages:      strings.Split(string(data), "\f"),
	}, nil
}
