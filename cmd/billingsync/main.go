// Command billingsync imports monthly billing files into a spreadsheet and
// cleans and classifies them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"billingsync/internal/cli"
	"billingsync/internal/config"
	"billingsync/internal/log"
)

var (
	cfgFile string
	version = "dev"

	// Set by the persistent pre-run.
	appConfig *config.Config
	logger    *log.Logger

	rootCmd = &cobra.Command{
		Use:   "billingsync",
		Short: "Monthly billing ingestion into a shared spreadsheet",
		Long: `billingsync imports the monthly billing file into a "<Mon-YY> (RAW)" tab,
then trims, substitutes and classifies entity names into "<Mon-YY> (STG1)",
recording progress on the tracking sheet.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		Version:           version,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./billingsync.yaml)")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(periodCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(authCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	cli.LoadEnvFile()
	cfg, err := cli.LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg
	logger = cli.SetupLogger(cfg)
	return nil
}

// openApp wires the pipeline for one command run.
func openApp(ctx context.Context) (*cli.App, error) {
	return cli.NewApp(ctx, appConfig, logger)
}

// exitError reports a failed stage whose details were already printed.
type exitError struct{ msg string }

func (e exitError) Error() string { return e.msg }
