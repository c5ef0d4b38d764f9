package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/finder"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/tbr"
)

var seen = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

func resolved(title, authors string, sel seller.Seller, price, list string, class deal.Classification) deal.ResolvedDeal {
	r := deal.Record{
		Title:     title,
		Authors:   authors,
		Seller:    sel,
		Format:    seller.Audiobook,
		Price:     deal.Money{Amount: decimal.RequireFromString(price), Currency: "USD"},
		ListPrice: decimal.RequireFromString(list),
		Timepoint: seen,
	}
	return deal.ResolvedDeal{
		View:           deal.View{Record: r, Seq: 1},
		Key:            r.Key(),
		Identity:       r.Identity(),
		Discount:       r.Discount(),
		Classification: class,
	}
}

func sampleDeals() []deal.ResolvedDeal {
	return []deal.ResolvedDeal{
		resolved("Dune", "Frank Herbert", seller.Audible, "4.99", "20.00", deal.New),
		resolved("Dune", "Frank Herbert", seller.Chirp, "5.00", "20.00", deal.Active),
		resolved("Piranesi", "Susanna Clarke", seller.Chirp, "3.99", "24.99", deal.Active),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: Text},
		{in: "YAML", want: YAML},
		{in: " json ", want: JSON},
		{in: "csv", want: CSV},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLine(t *testing.T) {
	d := toDeal(sampleDeals()[0])
	want := "Dune Audiobook by Frank Herbert - $4.99 - 75% Off at Audible [NEW]"
	if got := Line(d); got != want {
		t.Errorf("Line() = %q, want %q", got, want)
	}

	d.Classification = string(deal.Active)
	d.Title = strings.Repeat("x", 80)
	got := Line(d)
	if !strings.HasPrefix(got, strings.Repeat("x", 75)+"... Audiobook") {
		t.Errorf("long title not truncated: %q", got)
	}
	if strings.HasSuffix(got, "[NEW]") {
		t.Errorf("active deal marked new: %q", got)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FromDeals(sampleDeals()), Text); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := "Dune Audiobook by Frank Herbert - $4.99 - 75% Off at Audible [NEW]\n" +
		"Dune Audiobook by Frank Herbert - $5.00 - 75% Off at Chirp\n" +
		"\n" +
		"Piranesi Audiobook by Susanna Clarke - $3.99 - 84% Off at Chirp\n"
	if buf.String() != want {
		t.Errorf("text output mismatch\ngot:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FromDeals(nil), Text); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.String() != "No deals found.\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestFromResult(t *testing.T) {
	res := &finder.Result{
		RunID:          uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2"),
		Timepoint:      seen,
		Books:          3,
		Deals:          sampleDeals()[:1],
		SkippedSellers: []seller.Seller{seller.Chirp},
		Unmatched:      []tbr.Book{{Title: "Piranesi", Authors: "Susanna Clarke", Identity: book.Normalize("Piranesi", "Susanna Clarke")}},
		Warnings:       []error{errors.New("chirp unavailable")},
	}

	var buf bytes.Buffer
	if err := Write(&buf, FromResult(res), Text); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Run 7d444840-9dc0-11d1-b245-5ffdce74fad2 at 2025-06-01T07:00:00Z: 3 books checked",
		"Skipped Chirp: seller unavailable",
		"Dune Audiobook by Frank Herbert - $4.99 - 75% Off at Audible [NEW]",
		"Piranesi by Susanna Clarke not found",
		"1 warnings:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStructured(t *testing.T) {
	r := FromDeals(sampleDeals())

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, r, YAML); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var got Report
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		if len(got.Deals) != 3 || got.Deals[0].Price != "4.99" || got.Deals[0].Classification != "NEW" {
			t.Errorf("unexpected deals %+v", got.Deals)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, r, JSON); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		var got Report
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if got.Deals[2].ListPrice != "24.99" || got.Deals[2].Discount != 84 {
			t.Errorf("unexpected deal %+v", got.Deals[2])
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, r, CSV); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 4 {
			t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
		}
		if !strings.HasPrefix(lines[1], "Dune,Frank Herbert,Audiobook,Audible,4.99,USD,20.00,75,NEW,") {
			t.Errorf("unexpected row %q", lines[1])
		}
	})
}
