package main

import (
	nethttp "net/http"
	"time"

	"github.com/spf13/cobra"

	"billingsync/internal/cli"
	"billingsync/internal/http"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var stageTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the import and processing API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := http.NewServer(":"+appConfig.Port, http.Services{
				Importer:  app.Importer,
				Processor: app.Processor,
				Status:    app.Inspector,
				Ready:     app.Repo,
			}, http.Options{
				Logger:             logger,
				RateLimitPerMinute: appConfig.RateLimitPerMinute,
				StageTimeout:       stageTimeout,
			})

			logger.Info("Starting billingsync server",
				"port", appConfig.Port,
				"backend", appConfig.DataBackend,
				"events", app.Broker != nil)
			return cli.RunUntilDone(ctx, logger, shutdownTimeout,
				srv.ListenAndServe,
				srv.Shutdown,
				nethttp.ErrServerClosed)
		},
	}
	cmd.Flags().DurationVar(&stageTimeout, "stage-timeout", 10*time.Minute, "upper bound for one import or processing run (0 disables)")
	return cmd
}
