package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/scwf/open-dubbing/internal/timing"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "validate <subtitle-file>",
		Short: "Check whether each cue's window covers its estimated speaking time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			cues, warnings, err := parseSubtitleArg(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, warning := range warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			if len(cues) == 0 {
				return fmt.Errorf("no cues found in %s", args[0])
			}

			var rows [][]string
			var tight, invalid int
			for _, cue := range cues {
				if err := cue.Validate(); err != nil {
					invalid++
					rows = append(rows, []string{
						strconv.Itoa(cue.Index), "-", "-", "invalid: " + err.Error(),
					})
					continue
				}
				required := timing.MinRequiredMS(cue.Text, cfg.Timing)
				fits := required <= cue.DurationMS()
				if !fits {
					tight++
				}
				if !fits || showAll {
					rows = append(rows, []string{
						strconv.Itoa(cue.Index),
						fmt.Sprintf("%dms", cue.DurationMS()),
						fmt.Sprintf("%dms", required),
						"fits: " + yesNo(fits),
					})
				}
			}

			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out,
					[]string{"Cue", "Window", "Required", "Result"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
				))
			}
			fmt.Fprintf(out, "%d cues: %d too tight, %d invalid\n", len(cues), tight, invalid)
			if invalid > 0 {
				return fmt.Errorf("%d invalid cues in %s", invalid, args[0])
			}
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false, "List every cue instead of only problem cues")
	return cmd
}
