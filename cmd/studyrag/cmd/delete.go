package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/output"
	"github.com/studyrag/studyrag/internal/store"
)

func newDeleteCmd() *cobra.Command {
	var opts collectionFlags
	var docID string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete --user USER --course COURSE [--doc ID]",
		Short: "Delete a document or a whole collection",
		Long: `Delete one document from a (user, course) collection, or with no --doc
flag the entire collection including its indexes.

Deletion is permanent. The command asks for confirmation unless --yes
is given.

Examples:
  studyrag delete --user alice --course bio101 --doc lec3
  studyrag delete --user alice --course bio101 --yes`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDelete(cmd.Context(), cmd, opts, docID, yes)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&docID, "doc", "", "Delete only this document id")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, opts collectionFlags, docID string, yes bool) error {
	key, err := opts.key()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	if !yes {
		prompt := fmt.Sprintf("Delete collection %s and all its documents?", key.String())
		if docID != "" {
			prompt = fmt.Sprintf("Delete document %q from %s?", docID, key.String())
		}
		ok, err := confirm(cmd, prompt)
		if err != nil {
			return err
		}
		if !ok {
			out.Status("", "Aborted.")
			return nil
		}
	}

	manager, _, err := openManagerLocal(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = manager.Close() }()

	if docID != "" {
		if err := manager.DeleteDocument(ctx, key, docID); err != nil {
			if errors.Is(err, store.ErrDocumentNotFound) {
				return fmt.Errorf("document %q not found in %s", docID, key.String())
			}
			return fmt.Errorf("failed to delete document: %w", err)
		}
		out.Successf("Deleted document %q from %s", docID, key.String())
		return nil
	}

	if err := manager.DeleteCollection(ctx, key); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	out.Successf("Deleted collection %s", key.String())
	return nil
}

// confirm prompts on stdout and reads a yes/no answer from stdin. EOF
// counts as no.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
