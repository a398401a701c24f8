package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"billingsync/internal/cli"
	"billingsync/internal/log"
	"billingsync/internal/worker"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume period events and run stage 2 after imports",
		Long: `Consume period events from AMQP. With AUTO_PROCESS enabled, a completed
import triggers stage 2 for the same period. Expired import sessions and
period locks are purged every MAINTENANCE_INTERVAL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if appConfig.AMQPURL == "" {
				return errors.New("worker needs AMQP_URL")
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			wlog := logger.WithComponent(log.ComponentWorker)
			wlog.Info("Starting billingsync worker",
				"auto_process", appConfig.AutoProcess,
				"maintenance_interval", appConfig.MaintenanceInterval)

			w := worker.NewStageWorker(app.Processor, app.Repo, appConfig.AutoProcess)

			// Failures here are recovered by later events and maintenance runs.
			wlog.Info("Performing startup check...")
			if err := w.StartupCheck(ctx); err != nil {
				wlog.Error("Failed startup check", "error", err)
			}

			go maintain(ctx, wlog, w, appConfig.MaintenanceInterval)

			return cli.RunUntilDone(ctx, logger, shutdownTimeout,
				func() error { return app.Broker.ConsumePeriodEvents(ctx, w.HandlePeriodEvent) },
				func(context.Context) error { cancel(); return nil },
				context.Canceled)
		},
	}
}

func maintain(ctx context.Context, logger *log.Logger, w *worker.StageWorker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Maintain(ctx); err != nil {
				logger.Error("Periodic maintenance failed", "error", err)
			}
		}
	}
}
