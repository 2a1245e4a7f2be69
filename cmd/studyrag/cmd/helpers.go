package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyrag/studyrag/internal/collection"
	"github.com/studyrag/studyrag/internal/config"
	"github.com/studyrag/studyrag/internal/embed"
	"github.com/studyrag/studyrag/internal/retry"
)

// collectionFlags identify the collection a command operates on.
type collectionFlags struct {
	user   string
	course string
}

func (f *collectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "User identifier (required)")
	cmd.Flags().StringVarP(&f.course, "course", "c", "", "Course identifier (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("course")
}

func (f *collectionFlags) key() (collection.Key, error) {
	key := collection.Key{UserID: f.user, CourseID: f.course}
	if err := key.Validate(); err != nil {
		return collection.Key{}, err
	}
	return key, nil
}

// openManager builds the collection manager from the global flags and
// returns it with the loaded configuration. The caller closes the manager.
func openManager(ctx context.Context) (*collection.Manager, *config.Config, error) {
	return newManager(ctx, false)
}

// openManagerLocal is openManager with the static embedder regardless of
// configuration. Commands that never embed (listing, stats, deletes) must
// not require a live provider to touch local data.
func openManagerLocal(ctx context.Context) (*collection.Manager, *config.Config, error) {
	return newManager(ctx, true)
}

func newManager(ctx context.Context, localOnly bool) (*collection.Manager, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	embedCfg := cfg.Embeddings
	if localOnly {
		embedCfg.Provider = "static"
	}

	embedder, err := embed.New(ctx, embedCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	manager, err := collection.NewManager(resolveDataDir(), cfg, embedder)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, err
	}
	return manager, cfg, nil
}

// embedRetryConfig retries only outages of the embedding provider.
// Anything else (dimension mismatch, empty document, bad input) is
// permanent and fails on the first attempt.
func embedRetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.RetryIf = func(err error) bool {
		return errors.Is(err, embed.ErrProviderUnavailable)
	}
	return cfg
}
