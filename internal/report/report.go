// Package report renders resolved deals for the console or for other tools.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/finder"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

// Format selects the output encoding.
type Format string

const (
	Text Format = "text"
	YAML Format = "yaml"
	JSON Format = "json"
	CSV  Format = "csv"
)

const maxTitleLen = 75

// ParseFormat resolves an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case Text, YAML, JSON, CSV:
		return f, nil
	case "":
		return Text, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use text, yaml, json or csv)", s)
}

// Deal is the presentation form of a resolved deal. Amounts are strings so
// every encoder prints them exactly.
type Deal struct {
	Title          string `yaml:"title" json:"title"`
	Authors        string `yaml:"authors" json:"authors"`
	Format         string `yaml:"format" json:"format"`
	Seller         string `yaml:"seller" json:"seller"`
	Price          string `yaml:"price" json:"price"`
	Currency       string `yaml:"currency" json:"currency"`
	ListPrice      string `yaml:"list_price" json:"list_price"`
	Discount       int    `yaml:"discount_pct" json:"discount_pct"`
	Classification string `yaml:"classification" json:"classification"`
	Seen           string `yaml:"seen" json:"seen"`
	DealID         string `yaml:"deal_id" json:"deal_id"`
}

// Report is everything one rendering shows.
type Report struct {
	RunID          string   `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Timepoint      string   `yaml:"timepoint,omitempty" json:"timepoint,omitempty"`
	Books          int      `yaml:"books,omitempty" json:"books,omitempty"`
	SkippedSellers []string `yaml:"skipped_sellers,omitempty" json:"skipped_sellers,omitempty"`
	Unmatched      []string `yaml:"unmatched,omitempty" json:"unmatched,omitempty"`
	Warnings       []string `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Deals          []Deal   `yaml:"deals" json:"deals"`
}

// FromDeals builds a report of deals alone.
func FromDeals(deals []deal.ResolvedDeal) Report {
	r := Report{Deals: make([]Deal, 0, len(deals))}
	for _, d := range deals {
		r.Deals = append(r.Deals, toDeal(d))
	}
	return r
}

// FromResult builds a report of a finder run.
func FromResult(res *finder.Result) Report {
	r := FromDeals(res.Deals)
	r.RunID = res.RunID.String()
	r.Timepoint = res.Timepoint.Format(time.RFC3339)
	r.Books = res.Books
	for _, s := range res.SkippedSellers {
		r.SkippedSellers = append(r.SkippedSellers, s.String())
	}
	for _, b := range res.Unmatched {
		r.Unmatched = append(r.Unmatched, fmt.Sprintf("%s by %s", b.Title, b.Authors))
	}
	for _, w := range res.Warnings {
		r.Warnings = append(r.Warnings, w.Error())
	}
	return r
}

func toDeal(d deal.ResolvedDeal) Deal {
	v := d.View
	return Deal{
		Title:          v.Title,
		Authors:        v.Authors,
		Format:         v.Format.String(),
		Seller:         v.Seller.String(),
		Price:          v.Price.Amount.StringFixed(2),
		Currency:       v.Price.Currency,
		ListPrice:      v.ListPrice.StringFixed(2),
		Discount:       int(d.Discount.Shift(2).Floor().IntPart()),
		Classification: string(d.Classification),
		Seen:           v.Timepoint.Format(time.RFC3339),
		DealID:         d.Key.String(),
	}
}

// Write renders r to w.
func Write(w io.Writer, r Report, format Format) error {
	switch format {
	case Text, "":
		return writeText(w, r)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&r); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return nil
	case CSV:
		return writeCSV(w, r)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// Line formats one deal the way the console report prints it.
func Line(d Deal) string {
	title := d.Title
	if len([]rune(title)) > maxTitleLen {
		title = string([]rune(title)[:maxTitleLen]) + "..."
	}
	line := fmt.Sprintf("%s %s by %s - %s%s - %d%% Off at %s",
		title, d.Format, d.Authors, seller.SymbolFor(d.Currency), d.Price, d.Discount, d.Seller)
	if d.Classification == string(deal.New) {
		line += " [NEW]"
	}
	return line
}

// writeText prints one line per deal with a blank line between books.
func writeText(w io.Writer, r Report) error {
	ew := &errWriter{w: w}

	if r.RunID != "" {
		ew.printf("Run %s at %s: %d books checked\n", r.RunID, r.Timepoint, r.Books)
		for _, s := range r.SkippedSellers {
			ew.printf("  Skipped %s: seller unavailable\n", s)
		}
		ew.printf("\n")
	}

	if len(r.Deals) == 0 {
		ew.printf("No deals found.\n")
	}
	prior := ""
	for i, d := range r.Deals {
		group := d.Title + "\x00" + d.Authors + "\x00" + d.Format
		if i > 0 && group != prior {
			ew.printf("\n")
		}
		prior = group
		ew.printf("%s\n", Line(d))
	}

	if len(r.Unmatched) > 0 {
		ew.printf("\n")
		for _, u := range r.Unmatched {
			ew.printf("%s not found\n", u)
		}
	}
	if len(r.Warnings) > 0 {
		ew.printf("\n%d warnings:\n", len(r.Warnings))
		for _, warning := range r.Warnings {
			ew.printf("  - %s\n", warning)
		}
	}
	return ew.err
}

func writeCSV(w io.Writer, r Report) error {
	cw := csv.NewWriter(w)
	header := []string{"Title", "Authors", "Format", "Seller", "Price", "Currency", "List Price", "Discount", "Classification", "Seen"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, d := range r.Deals {
		row := []string{d.Title, d.Authors, d.Format, d.Seller, d.Price, d.Currency, d.ListPrice,
			strconv.Itoa(d.Discount), d.Classification, d.Seen}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
