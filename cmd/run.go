package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/WillNye/tbr-deal-finder/internal/config"
	"github.com/WillNye/tbr-deal-finder/internal/finder"
	"github.com/WillNye/tbr-deal-finder/internal/report"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
	"github.com/WillNye/tbr-deal-finder/internal/tbr"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		exportPaths []string
		sellers     []string
		maxPrice    float64
		minDiscount int
		locale      string
		concurrency int
		format      string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check every tracked seller for deals on your TBR list",
		Long: `Loads your TBR exports, looks up every book with every tracked seller,
records the prices in the deal history and prints the deals that meet your
price and discount limits. Deals not seen in the previous run are marked NEW.

Flags override the values in config.yaml for this run only.`,
		Example: `  # Run with the saved configuration
  tbr-deals run

  # Run against a one-off export without saving anything
  tbr-deals run --export ~/Downloads/goodreads_library_export.csv --dry-run

  # Only Chirp, at most $5 and 50% off, as YAML
  tbr-deals run --seller chirp --max-price 5 --min-discount 50 --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}

			cfg, err := a.loadConfig()
			if err != nil {
				if !errors.Is(err, config.ErrNotConfigured) || len(exportPaths) == 0 {
					return err
				}
				cfg = config.Default()
			}

			flags := cmd.Flags()
			if flags.Changed("export") {
				cfg.ExportPaths = exportPaths
			}
			if flags.Changed("seller") {
				cfg.TrackedSellers = sellers
			}
			if flags.Changed("max-price") {
				cfg.MaxPrice = maxPrice
			}
			if flags.Changed("min-discount") {
				cfg.MinDiscount = minDiscount
			}
			if flags.Changed("locale") {
				cfg.Locale = locale
			}
			if flags.Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := a.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			var st store.Store = db
			if dryRun {
				if st, err = scratchCopy(ctx, db); err != nil {
					return err
				}
				slog.Info("Dry run, nothing will be saved")
			}

			logger := slog.Default()
			clients := buildClients(cfg.Sellers(), cfg.MarketLocale(), logger)
			if len(clients) == 0 {
				return fmt.Errorf("none of the tracked sellers %v can be searched, choose from: %s, %s", cfg.TrackedSellers, seller.Audible, seller.Chirp)
			}

			svc := finder.NewService(st, tbr.NewLoader(cfg.ExportPaths...), clients,
				finder.WithCriteria(cfg.Criteria()),
				finder.WithConcurrency(cfg.Concurrency),
				finder.WithLogger(logger),
			)
			result, err := svc.Run(ctx)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			return report.Write(cmd.OutOrStdout(), report.FromResult(result), outFormat)
		},
	}

	cmd.Flags().StringSliceVar(&exportPaths, "export", nil, "TBR export CSV (StoryGraph, Goodreads or custom); repeatable")
	cmd.Flags().StringSliceVar(&sellers, "seller", nil, "Seller to check (audible, chirp); repeatable")
	cmd.Flags().Float64Var(&maxPrice, "max-price", 8.00, "Highest price worth reporting")
	cmd.Flags().IntVar(&minDiscount, "min-discount", 35, "Lowest discount worth reporting, in percent")
	cmd.Flags().StringVar(&locale, "locale", "us", "Marketplace locale")
	cmd.Flags().IntVar(&concurrency, "concurrency", 10, "Number of concurrent seller lookups")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, yaml, json or csv")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and report without saving to the deal history")

	return cmd
}
