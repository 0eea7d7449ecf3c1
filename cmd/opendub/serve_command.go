package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scwf/open-dubbing/internal/deps"
	"github.com/scwf/open-dubbing/internal/dubbing"
	"github.com/scwf/open-dubbing/internal/logging"
	"github.com/scwf/open-dubbing/internal/server"
	"github.com/scwf/open-dubbing/internal/task"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP task server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			for _, status := range deps.CheckBinaries(deps.For(cfg)) {
				if !status.Available {
					logger.Warn("dependency unavailable",
						logging.String("dependency", status.Name),
						logging.String("detail", status.Detail))
				}
			}

			store, err := task.Open(cfg)
			if err != nil {
				logger.Error("open task store", logging.Error(err))
				return err
			}
			defer store.Close()

			orchestrator, err := dubbing.NewDefault(cfg, logger)
			if err != nil {
				return fmt.Errorf("create orchestrator: %w", err)
			}

			srv, err := server.New(cfg, store, orchestrator, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			if err := srv.Start(signalCtx); err != nil {
				return err
			}
			defer srv.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", srv.Addr())
			<-signalCtx.Done()
			logger.Info("server shutting down")
			return nil
		},
	}
}
