package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/WillNye/tbr-deal-finder/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or show the saved configuration",
	}

	cmd.AddCommand(newConfigInitCmd(a))
	cmd.AddCommand(newConfigShowCmd(a))

	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		force bool
		cfg   = config.Default()
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a new config.yaml",
		Example: `  tbr-deals config init --export ~/Downloads/storygraph_export.csv
  tbr-deals config init --export a.csv --export b.csv --locale uk --max-price 5 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to check config: %w", err)
			}

			for _, p := range cfg.ExportPaths {
				if _, err := os.Stat(p); err != nil {
					return fmt.Errorf("export file %s: %w", p, err)
				}
			}

			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&cfg.ExportPaths, "export", nil, "TBR export CSV (StoryGraph, Goodreads or custom); repeatable")
	cmd.Flags().StringSliceVar(&cfg.TrackedSellers, "seller", cfg.TrackedSellers, "Sellers to track")
	cmd.Flags().Float64Var(&cfg.MaxPrice, "max-price", cfg.MaxPrice, "Highest price worth reporting")
	cmd.Flags().IntVar(&cfg.MinDiscount, "min-discount", cfg.MinDiscount, "Lowest discount worth reporting, in percent")
	cmd.Flags().StringVar(&cfg.Locale, "locale", cfg.Locale, "Marketplace locale (us, ca, uk, au, fr, de, jp, it, in, es, br)")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Number of concurrent seller lookups")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	_ = cmd.MarkFlagRequired("export")

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the saved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.configPath()
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
			return nil
		},
	}
}
