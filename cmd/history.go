package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		sellerName string
		formatName string
	)

	cmd := &cobra.Command{
		Use:   "history <title> <authors>",
		Short: "Show every recorded price for a book",
		Long: `Prints the full price history of one book, oldest first, for every seller
or just the one given with --seller. Deleted entries mark the points where a
deal stopped being offered.`,
		Example: `  tbr-deals history "Project Hail Mary" "Andy Weir"
  tbr-deals history "Piranesi" "Susanna Clarke" --seller chirp`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := book.Normalize(args[0], args[1])
			if id.IsZero() {
				return fmt.Errorf("title and authors must not be empty")
			}
			format, err := seller.ParseFormat(formatName)
			if err != nil {
				return err
			}

			sellers := seller.All()
			if sellerName != "" {
				sel, err := seller.Parse(sellerName)
				if err != nil {
					return err
				}
				sellers = []seller.Seller{sel}
			}

			ctx := cmd.Context()
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			found := 0
			for _, sel := range sellers {
				key := deal.Key{Title: id.Title, Authors: id.Authors, Seller: sel, Format: format}
				views, err := st.History(ctx, key)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					continue
				}
				found += len(views)

				fmt.Fprintf(out, "%s %s at %s\n", views[0].Title, format, sel)
				for _, v := range views {
					seen := v.Timepoint.Local().Format(time.DateTime)
					if v.Deleted {
						fmt.Fprintf(out, "  %s  no longer offered\n", seen)
						continue
					}
					fmt.Fprintf(out, "  %s  %s (list %s, %s%% off)\n",
						seen, v.Price, v.ListPrice.StringFixed(2), v.Discount().Shift(2).Floor().String())
				}
				fmt.Fprintln(out)
			}

			if found == 0 {
				fmt.Fprintf(out, "No history for %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sellerName, "seller", "", "Only show this seller")
	cmd.Flags().StringVar(&formatName, "format", string(seller.Audiobook), "Book format: audiobook or ebook")

	return cmd
}
