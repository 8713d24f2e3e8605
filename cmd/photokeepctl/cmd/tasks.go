package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"photokeep/internal/store"
)

var requeueTaskID string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Task queue operations",
}

var tasksRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Requeue a dead-lettered task for another attempt",
	Long: `requeue resets a task in the dead-letter state back to pending with a
fresh retry budget (spec's manual recovery path for a permanently-failed
task an operator has fixed the root cause of).`,
	RunE: runTasksRequeue,
}

func init() {
	tasksRequeueCmd.Flags().StringVar(&requeueTaskID, "id", "", "task id to requeue (required)")
	tasksCmd.AddCommand(tasksRequeueCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasksRequeue(cmd *cobra.Command, args []string) error {
	if requeueTaskID == "" {
		return errors.New("photokeepctl: --id is required")
	}
	id, err := uuid.Parse(requeueTaskID)
	if err != nil {
		return fmt.Errorf("photokeepctl: invalid task id %q: %w", requeueTaskID, err)
	}

	ctx := context.Background()
	app, closeFn, err := newAppContext(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := app.tasks.Requeue(ctx, id); err != nil {
		return fmt.Errorf("photokeepctl: requeue task %s: %w", id, err)
	}

	if outputFormat == "json" {
		data, _ := json.MarshalIndent(map[string]any{"id": id, "state": store.TaskPending}, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("task %s requeued\n", id)
	return nil
}
