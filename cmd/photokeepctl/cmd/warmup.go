package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"photokeep/internal/metrics"
	"photokeep/internal/providers"
	"photokeep/internal/vectorindex"
)

var warmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Verify the store, providers, and vector index snapshot are ready",
	Long: `warmup builds the same dependency set the server would at startup
(database connection, provider set, vector index snapshot) and reports
readiness without binding a port — useful to validate a deployment before
pointing traffic at it.`,
	RunE: runWarmup,
}

func init() {
	rootCmd.AddCommand(warmupCmd)
}

func runWarmup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, closeFn, err := newAppContext(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	set, err := providers.BuildSet(app.cfg, nil)
	if err != nil {
		return fmt.Errorf("photokeepctl: build provider set: %w", err)
	}

	identity := vectorindex.Identity{
		ModelName:    string(app.cfg.ImageEmbedProvider),
		ModelVersion: "v1",
		Dim:          set.ImageEmbedder.Dim(),
	}
	indexPath := app.cfg.DerivedPath + "/index/image-" + identity.ModelName + "-" + identity.ModelVersion + ".gob"

	var index *vectorindex.Index
	loaded, matched, loadErr := vectorindex.Load(indexPath, identity)
	switch {
	case loadErr != nil:
		index = vectorindex.New(identity)
	case !matched:
		index = vectorindex.New(identity)
	default:
		index = loaded
	}

	checker := metrics.NewHealthChecker(app.db, index, set)
	result := checker.Check(ctx)

	if outputFormat == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("ready:        %v\n", result.Ready)
		fmt.Printf("store:        %s %s\n", result.Store.Status, result.Store.Detail)
		fmt.Printf("vector index: %s %s\n", result.Index.Status, result.Index.Detail)
		for name, ph := range result.Providers {
			fmt.Printf("provider %-16s %s %s\n", name, ph.Status, ph.Detail)
		}
	}

	if !result.Ready {
		return fmt.Errorf("photokeepctl: system not ready")
	}
	return nil
}
