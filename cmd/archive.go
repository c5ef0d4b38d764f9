package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WillNye/tbr-deal-finder/internal/store/archive"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the full deal history to a Parquet or JSONL file",
		Long: `Writes every recorded observation, including deleted markers, in insertion
order. The file type follows the extension: .parquet, .jsonl or .json.`,
		Example: `  tbr-deals export deals.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := archive.Export(cmd.Context(), st, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", n, args[0])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append a previously exported deal history",
		Long: `Appends every record of an export to the deal history. Records keep their
original timepoints, so the latest view after an import into an empty
database matches the one that was exported.`,
		Example: `  tbr-deals import deals.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := archive.Import(cmd.Context(), args[0], st)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s\n", n, args[0])
			return nil
		},
	}
}
