package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"billingsync/internal/cli"
)

func importCmd() *cobra.Command {
	var in cli.ImportInput
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import XLS for Billing Month",
		Long: `Resolve last month's billing period on the tracking sheet, ask for the
source file link and copy its first sheet into "<Mon-YY> (RAW)".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			p := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			out, err := cli.RunImportDialog(ctx, p, app.Importer, in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderOutcome(out))
			if !out.Success {
				return exitError{msg: out.Message}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Sheet, "sheet", "", "tracking sheet name (default from config)")
	cmd.Flags().StringVarP(&in.Label, "label", "l", "", "billing month such as Feb-25 (asked when empty)")
	cmd.Flags().StringVarP(&in.SourceURL, "url", "u", "", "source file link or id (asked when empty)")
	cmd.Flags().BoolVarP(&in.Yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
