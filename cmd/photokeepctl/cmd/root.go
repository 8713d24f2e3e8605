// Package cmd is photokeepctl's command tree: an operator CLI over the same
// store and task engine the server uses, grounded on the examples pack's
// cobra-based operator CLI layout (cmd/hortator/cmd's one-file-per-command
// shape and root.go's PersistentPreRunE connection setup).
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"photokeep/internal/config"
	"photokeep/internal/database"
	"photokeep/internal/store"
)

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "photokeepctl",
	Short: "Operator CLI for the photokeep local media intelligence engine",
	Long: `photokeepctl drives the same metadata store and task engine the
photokeep server uses, for one-off operator actions: triggering a library
scan, rebuilding the vector index, requeueing a dead-lettered task, or
merging person clusters.

Examples:
  photokeepctl ingest --root /photos/2024
  photokeepctl index rebuild --modality image
  photokeepctl tasks requeue --id 3fb1...
  photokeepctl persons merge --target 11a2... --source 99bc...,44de...`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

// appContext bundles the store handles every subcommand needs, opened once
// per invocation and never kept open across commands.
type appContext struct {
	cfg    *config.Config
	db     *database.DB
	assets *store.AssetRepository
	tasks  *store.TaskRepository
	faces  *store.FaceRepository
	persons *store.PersonRepository
}

func newAppContext(ctx context.Context) (*appContext, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("photokeepctl: load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("photokeepctl: connect to database: %w", err)
	}
	closeFn := func() { db.Close() }

	return &appContext{
		cfg:     cfg,
		db:      db,
		assets:  store.NewAssetRepository(db),
		tasks:   store.NewTaskRepository(db),
		faces:   store.NewFaceRepository(db),
		persons: store.NewPersonRepository(db),
	}, closeFn, nil
}
