package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"photokeep/internal/cluster"
)

var (
	mergeTarget  string
	mergeSources string
)

var personsCmd = &cobra.Command{
	Use:   "persons",
	Short: "Person cluster operations",
}

var personsMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge one or more source persons into a target person",
	Long: `merge reassigns every face and asset link from the given source
persons onto the target and deactivates the now-empty sources (spec's manual
correction path for two clusters that should have been one person).`,
	RunE: runPersonsMerge,
}

func init() {
	personsMergeCmd.Flags().StringVar(&mergeTarget, "target", "", "target person id (required)")
	personsMergeCmd.Flags().StringVar(&mergeSources, "source", "", "comma-separated source person ids (required)")
	personsCmd.AddCommand(personsMergeCmd)
	rootCmd.AddCommand(personsCmd)
}

func runPersonsMerge(cmd *cobra.Command, args []string) error {
	if mergeTarget == "" || mergeSources == "" {
		return errors.New("photokeepctl: --target and --source are required")
	}
	targetID, err := uuid.Parse(mergeTarget)
	if err != nil {
		return fmt.Errorf("photokeepctl: invalid --target %q: %w", mergeTarget, err)
	}
	var sourceIDs []uuid.UUID
	for _, raw := range strings.Split(mergeSources, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("photokeepctl: invalid source id %q: %w", raw, err)
		}
		sourceIDs = append(sourceIDs, id)
	}

	ctx := context.Background()
	app, closeFn, err := newAppContext(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	svc := cluster.New(app.persons, app.faces, app.tasks)
	person, err := svc.Merge(ctx, targetID, sourceIDs)
	if err != nil {
		return fmt.Errorf("photokeepctl: merge persons: %w", err)
	}

	if outputFormat == "json" {
		data, _ := json.MarshalIndent(person, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	name := "unnamed"
	if person.DisplayName != nil {
		name = *person.DisplayName
	}
	fmt.Printf("merged %d source(s) into %s (%s)\n", len(sourceIDs), person.ID, name)
	return nil
}
