package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"billingsync/internal/cli"
	"billingsync/internal/log"
)

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <raw tab>",
		Short: "Run Additional Processing",
		Long: `Copy "<Mon-YY> (RAW)" to "<Mon-YY> (STG1)", trim and substitute entity
names, add the classification column and mark the tracking row.`,
		Example: `  billingsync process "Feb-25 (RAW)"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			var alert log.Alert
			p := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			p.Spin("Processing...", func() {
				alert = app.Processor.Process(ctx, args[0])
			})
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderAlert(alert))
			if alert.Level == log.AlertError {
				return exitError{msg: alert.Message}
			}
			return nil
		},
	}
}
