package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scwf/open-dubbing/internal/dubbing"
)

func newDubCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var engine string
	var voice string

	cmd := &cobra.Command{
		Use:   "dub <subtitle-file>",
		Short: "Synthesize a dubbed audio track from a subtitle file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(engine) != "" {
				cfg.Synthesis.Engine = strings.TrimSpace(engine)
			}
			if strings.TrimSpace(voice) != "" {
				cfg.Synthesis.Voice = strings.TrimSpace(voice)
			}

			logger, err := ctx.quietLogger()
			if err != nil {
				return err
			}
			orchestrator, err := dubbing.NewDefault(cfg, logger)
			if err != nil {
				return err
			}

			subtitlePath := args[0]
			target := strings.TrimSpace(outputPath)
			if target == "" {
				base := strings.TrimSuffix(filepath.Base(subtitlePath), filepath.Ext(subtitlePath))
				target = filepath.Join(cfg.Paths.OutputDir, base+".wav")
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			report := func(stage string, percent float64, message string) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "[%3.0f%%] %s: %s\n", percent, stage, message)
			}

			result, err := orchestrator.Process(runCtx, subtitlePath, target, report)
			if err != nil {
				return err
			}

			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			fmt.Fprintf(out, "Dubbed %d cues", result.CueCount)
			if result.EscalatedCues > 0 {
				fmt.Fprintf(out, " (%d over their windows, %d simplified)", result.EscalatedCues, result.SimplifiedCues)
			}
			fmt.Fprintf(out, "\nOutput: %s\n", result.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination for the dubbed WAV file")
	cmd.Flags().StringVar(&engine, "engine", "", "Synthesis engine override (tts_api or polly)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice override for the selected engine")
	return cmd
}
