package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scwf/open-dubbing/internal/dubbing"
	"github.com/scwf/open-dubbing/internal/subtitle"
	"github.com/scwf/open-dubbing/internal/timing"
)

func newOptimizeCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "optimize <subtitle-file>",
		Short: "Retime cues and resolve over-long lines, without synthesizing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.quietLogger()
			if err != nil {
				return err
			}

			retimer, err := dubbing.NewRetimer(cfg, logger)
			if err != nil {
				return err
			}
			optimized, decisions, result, err := retimer.Optimize(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}

			windows := make(map[int]subtitle.Cue, len(optimized))
			for _, cue := range optimized {
				windows[cue.Index] = cue
			}

			rows := make([][]string, 0, len(decisions))
			var borrowed, escalated, invalid int
			for _, decision := range decisions {
				switch decision.(type) {
				case timing.TimeBorrow:
					borrowed++
				case timing.NeedEscalation:
					escalated++
				case timing.InvalidCue:
					invalid++
				}
				cue := windows[decision.CueIndex()]
				rows = append(rows, []string{
					strconv.Itoa(decision.CueIndex()),
					fmt.Sprintf("%d-%dms", cue.StartMS, cue.EndMS),
					fmt.Sprintf("%dms", timing.MinRequiredMS(cue.Text, cfg.Timing)),
					decision.Describe(),
				})
			}

			if len(rows) == 0 {
				fmt.Fprintln(out, "No cues found")
				return nil
			}

			fmt.Fprintln(out, renderTable(out,
				[]string{"Cue", "Window", "Required", "Decision"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d cues: %d borrowed, %d simplified, %d still too tight, %d invalid\n",
				len(optimized), borrowed, result.SimplifiedCues, escalated, invalid)

			if target := strings.TrimSpace(outputPath); target != "" {
				if err := subtitle.WriteSRTFile(target, optimized); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote retimed subtitles to %s\n", target)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the retimed subtitle file to this path")
	return cmd
}

func parseSubtitleArg(path string) ([]subtitle.Cue, []string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		return subtitle.ParseTextFile(path)
	}
	return subtitle.ParseSRTFile(path)
}
