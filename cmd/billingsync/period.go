package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"billingsync/internal/core"
)

func periodCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "period [Mon-YY]",
		Short: "Show the pipeline state of a billing month",
		Long: `Show the recorded state of a billing month next to the state the workbook
implies. Without an argument the previous month is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if all {
				states, err := app.Repo.ListStates(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "PERIOD\tSTATE\tSHEET\tUPDATED")
				for _, st := range states {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Label, st.State, st.Sheet, st.UpdatedAt.Format(time.RFC3339))
				}
				return nil
			}

			var label core.PeriodLabel
			if len(args) == 1 {
				if label, err = core.ParsePeriodLabel(args[0]); err != nil {
					return err
				}
			} else {
				loc, err := appConfig.Location()
				if err != nil {
					return err
				}
				label = core.LastMonth(time.Now().In(loc))
			}

			st, err := app.Inspector.Inspect(ctx, label)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Period\t%s\n", st.Label)
			fmt.Fprintf(w, "Recorded state\t%s\n", st.State)
			fmt.Fprintf(w, "Workbook state\t%s\n", st.Inferred)
			if !st.Consistent() {
				fmt.Fprintf(w, "Warning\trecorded and workbook states differ\n")
			}
			if st.Row > 0 {
				fmt.Fprintf(w, "Tracking row\t%d (%q)\n", st.Row, st.TrackingStatus)
			} else {
				fmt.Fprintf(w, "Tracking row\tnone\n")
			}
			fmt.Fprintf(w, "Raw tab\t%t\n", st.RawSheet)
			fmt.Fprintf(w, "Staged tab\t%t\n", st.StagedSheet)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every recorded period")
	return cmd
}
