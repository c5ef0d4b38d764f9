package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/WillNye/tbr-deal-finder/internal/finder"
	"github.com/WillNye/tbr-deal-finder/internal/report"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

func newLatestCmd(a *app) *cobra.Command {
	var (
		asOf   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the current deals from the saved history",
		Long: `Shows the deals in the saved history without contacting any seller.

By default this is the state after the last run. With --as-of it is the state
after the last run at or before that moment. NEW and ACTIVE are marked the way
that run marked them.`,
		Example: `  tbr-deals latest
  tbr-deals latest --as-of 2025-06-01 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			var at *time.Time
			if asOf != "" {
				t, err := parseTime(asOf)
				if err != nil {
					return err
				}
				at = &t
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			resolution, ref, err := finder.Latest(cmd.Context(), st, at, cfg.Criteria())
			if errors.Is(err, store.ErrNoRuns) {
				return fmt.Errorf("no runs yet, start with: tbr-deals run")
			}
			if err != nil {
				return err
			}

			r := report.FromDeals(resolution.Deals)
			r.Timepoint = ref.UTC().Format(time.RFC3339)
			for _, w := range resolution.Warnings {
				r.Warnings = append(r.Warnings, w.Error())
			}
			return report.Write(cmd.OutOrStdout(), r, outFormat)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "Show the state at this time (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, yaml, json or csv")

	return cmd
}
