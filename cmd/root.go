package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	a := &app{}
	var verbose bool

	cmd := &cobra.Command{
		Use:   "tbr-deals",
		Short: "Track audiobook deals for the books on your TBR list",
		Long: `tbr-deals checks the books on your to-be-read list against online sellers
and reports the ones that are on sale.

Every price it sees is kept in a local history, so each run can tell which
deals are new since the last run and which are still active.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if verbose {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Directory holding config.yaml and the deal database (default $TBR_DEALS_PATH or ~/.tbr_deal_finder)")

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newLatestCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}
