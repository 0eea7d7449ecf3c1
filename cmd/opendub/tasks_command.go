package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/scwf/open-dubbing/internal/task"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage dubbing tasks",
	}

	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksStatusCommand(ctx))
	tasksCmd.AddCommand(newTasksCancelCommand(ctx))
	tasksCmd.AddCommand(newTasksClearCommand(ctx))

	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dubbing tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *task.Store) error {
				var statuses []task.Status
				for _, raw := range statusFilters {
					status, ok := task.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, status)
				}

				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						string(item.Status),
						fmt.Sprintf("%.0f%%", item.ProgressPercent),
						filepath.Base(item.SubtitlePath),
						item.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Status", "Progress", "Subtitle", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Only show tasks with these statuses")
	return cmd
}

func newTasksStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *task.Store) error {
				item, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("task %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", item.ID)
				fmt.Fprintf(out, "Status:    %s\n", item.Status)
				fmt.Fprintf(out, "Subtitle:  %s\n", item.SubtitlePath)
				fmt.Fprintf(out, "Engine:    %s\n", item.Engine)
				fmt.Fprintf(out, "Progress:  %.0f%% (%s)\n", item.ProgressPercent, item.ProgressStage)
				if item.ProgressMessage != "" {
					fmt.Fprintf(out, "Message:   %s\n", item.ProgressMessage)
				}
				if item.CueCount > 0 {
					fmt.Fprintf(out, "Cues:      %d (%d escalated)\n", item.CueCount, item.EscalatedCues)
				}
				if item.ResultPath != "" {
					fmt.Fprintf(out, "Result:    %s\n", item.ResultPath)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", item.ErrorMessage)
				}
				fmt.Fprintf(out, "Created:   %s\n", item.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Updated:   %s\n", item.UpdatedAt.Local().Format(time.DateTime))
				return nil
			})
		},
	}
}

func newTasksCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *task.Store) error {
				ok, err := store.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("task %s already finished", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %s\n", args[0])
				return nil
			})
		},
	}
}

func newTasksClearCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *task.Store) error {
				var removed int64
				var err error
				if clearAll {
					removed, err = store.Clear(cmd.Context())
				} else {
					removed, err = store.ClearTerminal(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tasks\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every task, including queued and running ones")
	return cmd
}
