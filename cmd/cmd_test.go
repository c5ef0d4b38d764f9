package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillNye/tbr-deal-finder/internal/config"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
	"github.com/WillNye/tbr-deal-finder/internal/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedStore(t *testing.T, dataDir string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(config.DBPath(dataDir), testLogger())
	require.NoError(t, err)
	defer st.Close()

	rec := deal.Record{
		Title:     "Dune",
		Authors:   "Frank Herbert",
		Seller:    seller.Chirp,
		Format:    seller.Audiobook,
		Price:     deal.Money{Amount: decimal.RequireFromString("4.99"), Currency: "USD"},
		ListPrice: decimal.RequireFromString("20.00"),
		Timepoint: at,
	}
	require.NoError(t, st.Append(ctx, []deal.Record{rec}))
	run := store.NewRun(at)
	run.Sellers = []seller.Seller{seller.Chirp}
	run.Records = 1
	require.NoError(t, st.RecordRun(ctx, run))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-06-01T07:00:00Z", want: time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)},
		{in: "2025-06-01", want: time.Date(2025, 6, 1, 23, 59, 59, 999999999, time.UTC)},
		{in: "June 1st", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestConfigInitAndShow(t *testing.T) {
	dataDir := t.TempDir()
	export := filepath.Join(t.TempDir(), "storygraph.csv")
	require.NoError(t, os.WriteFile(export, []byte("Title,Authors,Read Status\nDune,Frank Herbert,to-read\n"), 0644))

	out, err := execute(t, "--data-dir", dataDir, "config", "init", "--export", export, "--max-price", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved")

	_, err = execute(t, "--data-dir", dataDir, "config", "init", "--export", export)
	assert.Error(t, err, "init refuses to overwrite without --force")

	out, err = execute(t, "--data-dir", dataDir, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_price: 5")
	assert.Contains(t, out, export)
}

func TestLatest(t *testing.T) {
	dataDir := t.TempDir()
	export := filepath.Join(t.TempDir(), "storygraph.csv")
	require.NoError(t, os.WriteFile(export, []byte("Title,Authors,Read Status\nDune,Frank Herbert,to-read\n"), 0644))
	_, err := execute(t, "--data-dir", dataDir, "config", "init", "--export", export)
	require.NoError(t, err)

	seedStore(t, dataDir, time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC))

	out, err := execute(t, "--data-dir", dataDir, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "Dune Audiobook by Frank Herbert - $4.99 - 75% Off at Chirp [NEW]")

	out, err = execute(t, "--data-dir", dataDir, "latest", "--as-of", "2025-05-31")
	require.NoError(t, err)
	assert.Contains(t, out, "No deals found.")
}

func TestHistory(t *testing.T) {
	dataDir := t.TempDir()
	seedStore(t, dataDir, time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC))

	out, err := execute(t, "--data-dir", dataDir, "history", "Dune", "Frank Herbert")
	require.NoError(t, err)
	assert.Contains(t, out, "Dune Audiobook at Chirp")
	assert.Contains(t, out, "$4.99 (list 20.00, 75% off)")

	out, err = execute(t, "--data-dir", dataDir, "history", "Piranesi", "Susanna Clarke")
	require.NoError(t, err)
	assert.Contains(t, out, "No history for")
}

func TestExportImport(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	seedStore(t, src, time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC))
	file := filepath.Join(t.TempDir(), "deals.jsonl")

	out, err := execute(t, "--data-dir", src, "export", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 records")

	out, err = execute(t, "--data-dir", dst, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 records")

	st, err := sqlite.Open(config.DBPath(dst), testLogger())
	require.NoError(t, err)
	defer st.Close()
	views, err := st.LatestView(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Dune", views[0].Title)
}
