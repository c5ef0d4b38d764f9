// Package archive exports the full deal history to a file and imports it
// back, so history can be moved between machines or inspected with
// analytic tools. Parquet and JSONL are supported, chosen by extension.
package archive

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

// Row is the on-disk shape of one history record.
type Row struct {
	Seq         int64  `json:"seq" parquet:"seq"`
	Title       string `json:"title" parquet:"title"`
	Authors     string `json:"authors" parquet:"authors"`
	Seller      string `json:"seller" parquet:"seller"`
	Format      string `json:"format" parquet:"format"`
	Price       string `json:"price" parquet:"price"`
	Currency    string `json:"currency" parquet:"currency"`
	ListPrice   string `json:"list_price" parquet:"list_price"`
	TimepointNS int64  `json:"timepoint_ns" parquet:"timepoint_ns"`
	Deleted     bool   `json:"deleted" parquet:"deleted"`
}

func toRow(v deal.View) Row {
	return Row{
		Seq:         v.Seq,
		Title:       v.Title,
		Authors:     v.Authors,
		Seller:      string(v.Seller),
		Format:      string(v.Format),
		Price:       v.Price.Amount.String(),
		Currency:    v.Price.Currency,
		ListPrice:   v.ListPrice.String(),
		TimepointNS: v.Timepoint.UnixNano(),
		Deleted:     v.Deleted,
	}
}

func (r Row) record() (deal.Record, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return deal.Record{}, fmt.Errorf("row %d: parse price: %w", r.Seq, err)
	}
	listPrice := decimal.Zero
	if r.ListPrice != "" {
		if listPrice, err = decimal.NewFromString(r.ListPrice); err != nil {
			return deal.Record{}, fmt.Errorf("row %d: parse list price: %w", r.Seq, err)
		}
	}
	sel := seller.Seller(r.Seller)
	if !sel.Valid() {
		return deal.Record{}, fmt.Errorf("row %d: unknown seller %q", r.Seq, r.Seller)
	}
	format := seller.Format(r.Format)
	if !format.Valid() {
		return deal.Record{}, fmt.Errorf("row %d: unknown format %q", r.Seq, r.Format)
	}

	return deal.Record{
		Title:     r.Title,
		Authors:   r.Authors,
		Seller:    sel,
		Format:    format,
		Price:     deal.Money{Amount: price, Currency: r.Currency},
		ListPrice: listPrice,
		Timepoint: time.Unix(0, r.TimepointNS).UTC(),
		Deleted:   r.Deleted,
	}, nil
}

// Export writes the whole history of s to path and returns the row count.
func Export(ctx context.Context, s store.Store, path string) (int, error) {
	var write func(io.Writer, []Row) error
	switch format(path) {
	case ".parquet":
		write = writeParquet
	case ".jsonl":
		write = writeJSONL
	default:
		return 0, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", filepath.Ext(path))
	}

	views, err := s.AllRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read history: %w", err)
	}

	rows := make([]Row, len(views))
	for i, v := range views {
		rows[i] = toRow(v)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := write(file, rows); err != nil {
		return 0, err
	}

	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close export file: %w", err)
	}

	slog.Debug("Exported deal history", "path", path, "rows", len(rows))
	return len(rows), nil
}

// Import appends every row of the file at path to s, preserving the
// original insertion order so timepoint ties resolve the same way.
func Import(ctx context.Context, path string, s store.Store) (int, error) {
	var (
		rows []Row
		err  error
	)
	switch format(path) {
	case ".parquet":
		rows, err = readParquet(path)
	case ".jsonl":
		rows, err = readJSONL(path)
	default:
		err = fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl)", filepath.Ext(path))
	}
	if err != nil {
		return 0, err
	}

	slices.SortStableFunc(rows, func(a, b Row) int { return cmp.Compare(a.Seq, b.Seq) })

	records := make([]deal.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return 0, err
		}
		records = append(records, rec)
	}

	if err := s.Append(ctx, records); err != nil {
		return 0, err
	}

	slog.Debug("Imported deal history", "path", path, "rows", len(records))
	return len(records), nil
}

func format(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		return ".jsonl"
	}
	return ext
}

func writeParquet(w io.Writer, rows []Row) error {
	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

func readParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened", "path", path, "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var rows []Row
	batch := make([]Row, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return rows, nil
}

func writeJSONL(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", r.Seq, err)
		}
	}
	return bw.Flush()
}

func readJSONL(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r Row
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}
	return rows, nil
}
