package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scwf/open-dubbing/internal/deps"
	"github.com/scwf/open-dubbing/internal/task"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency health and task counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			ffmpeg := deps.CheckFFmpeg(cfg.FFmpegBinary())
			state := "ok"
			if !ffmpeg.Available {
				state = "missing (optional)"
			}
			depRows := [][]string{{ffmpeg.Name, ffmpeg.Command, state, ffmpeg.Detail}}
			fmt.Fprintln(out, renderTable(out,
				[]string{"Dependency", "Command", "State", "Detail"},
				depRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			return ctx.withStore(func(store *task.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats))
				var total int
				for _, status := range task.AllStatuses() {
					count := stats[status]
					total += count
					if count == 0 {
						continue
					}
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
				if total == 0 {
					fmt.Fprintln(out, "No tasks")
					return nil
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
