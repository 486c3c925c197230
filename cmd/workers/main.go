package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdfund/portal-backend/internal/app"
	"crowdfund/portal-backend/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "workers",
		Short:         "Background workers for the crowdfund portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the JSON config file")

	root.AddCommand(newReconcileCmd(&configPath))
	return root
}

func newReconcileCmd(configPath *string) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair journaled campaigns and settle submitted records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := app.NewLogger(cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			worker := NewReconciliationWorker(a.Reconciler, logger.Named("worker"), ReconciliationWorkerConfig{
				Schedule:    cfg.Reconciler.Schedule,
				PassTimeout: 5 * time.Minute,
			})

			if once {
				report := worker.RunOnce(ctx)
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			}

			if err := worker.Start(ctx); err != nil {
				return fmt.Errorf("failed to start reconciliation worker: %w", err)
			}
			<-ctx.Done()
			logger.Info("Shutting down workers...", zap.Error(ctx.Err()))
			worker.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and print the report")
	return cmd
}
