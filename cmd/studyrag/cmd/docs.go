package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newDocsCmd() *cobra.Command {
	var opts collectionFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "docs --user USER --course COURSE",
		Short: "List ingested documents",
		Long: `List the documents in a (user, course) collection with their page and
chunk counts.

Example:
  studyrag docs --user alice --course bio101`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDocs(cmd.Context(), cmd, opts, jsonOutput)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDocs(ctx context.Context, cmd *cobra.Command, opts collectionFlags, jsonOutput bool) error {
	key, err := opts.key()
	if err != nil {
		return err
	}

	manager, _, err := openManagerLocal(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	docs, err := manager.Documents(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if jsonOutput {
		type docJSON struct {
			ID         string    `json:"id"`
			Title      string    `json:"title"`
			Pages      int       `json:"pages"`
			Chunks     int       `json:"chunks"`
			IngestedAt time.Time `json:"ingested_at"`
		}
		list := make([]docJSON, 0, len(docs))
		for _, d := range docs {
			list = append(list, docJSON{
				ID:         d.ID,
				Title:      d.Title,
				Pages:      d.Pages,
				Chunks:     d.ChunkCount,
				IngestedAt: d.IngestedAt,
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(docs) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No documents in %s.\n\n", key.String())
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Ingest one with: studyrag ingest --user %s --course %s FILE\n", key.UserID, key.CourseID)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTITLE\tPAGES\tCHUNKS\tINGESTED")
	_, _ = fmt.Fprintln(w, "--\t-----\t-----\t------\t--------")

	for _, d := range docs {
		title := d.Title
		if runes := []rune(title); len(runes) > 40 {
			title = string(runes[:37]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			d.ID, title, d.Pages, d.ChunkCount, formatTimeAgo(d.IngestedAt))
	}
	return w.Flush()
}

// formatTimeAgo formats a time as a human-readable "time ago" string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}
