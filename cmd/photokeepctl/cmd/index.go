package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"photokeep/internal/store"
)

var rebuildModality string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Vector index maintenance",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Enqueue a full vector index rebuild from persisted embeddings",
	Long: `rebuild enqueues an index_rebuild task that streams every persisted
embedding for the configured model identity back into the vector index
(spec's "index rebuild from source of truth" recovery path), run by
whichever server instance is polling the task queue.`,
	RunE: runIndexRebuild,
}

func init() {
	indexRebuildCmd.Flags().StringVar(&rebuildModality, "modality", "image", "embedding modality to rebuild (image)")
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	if rebuildModality != "image" {
		return fmt.Errorf("photokeepctl: only the image modality has a wired embedder; got %q", rebuildModality)
	}

	ctx := context.Background()
	app, closeFn, err := newAppContext(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	// "stub" is the only wired IMAGE_EMBED_PROVIDER today and always
	// reports version "v1" (see providers.BuildSet / cmd/server/main.go).
	modelName := string(app.cfg.ImageEmbedProvider)
	modelVersion := "v1"

	payload, _ := json.Marshal(map[string]string{
		"modality":      rebuildModality,
		"model_name":    modelName,
		"model_version": modelVersion,
	})
	created, err := app.tasks.EnqueueTask(ctx, &store.Task{
		Type:    store.TaskIndexRebuild,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("photokeepctl: enqueue index_rebuild: %w", err)
	}

	if outputFormat == "json" {
		data, _ := json.MarshalIndent(map[string]any{"enqueued": created, "modality": rebuildModality}, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("index_rebuild enqueued for modality=%s model=%s/%s\n", rebuildModality, modelName, modelVersion)
	return nil
}
