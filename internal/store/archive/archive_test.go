package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store/memory"
	"github.com/WillNye/tbr-deal-finder/internal/store/storetest"
)

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	dune := storetest.Record("Dune", "Frank Herbert", seller.Audible, "5.00", storetest.At(0))
	require.NoError(t, s.Append(ctx, []deal.Record{
		dune,
		storetest.Record("Dune", "Frank Herbert", seller.Audible, "4.00", storetest.At(1)),
		storetest.Record("Dune", "Frank Herbert", seller.Audible, "3.00", storetest.At(1)),
		storetest.Record("Emma", "Jane Austen", seller.Chirp, "2.50", storetest.At(0)),
		storetest.Record("Emma", "Jane Austen", seller.Chirp, "2.50", storetest.At(0)).Tombstone(storetest.At(2)),
		storetest.Record("Les Misérables", "Victor Hugo", seller.Chirp, "1.99", storetest.At(2)),
	}))
	return s
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range []string{".parquet", ".jsonl"} {
		t.Run(ext, func(t *testing.T) {
			ctx := context.Background()
			src := seed(t)
			path := filepath.Join(t.TempDir(), "history"+ext)

			n, err := Export(ctx, src, path)
			require.NoError(t, err)
			assert.Equal(t, 6, n)

			dst := memory.New()
			n, err = Import(ctx, path, dst)
			require.NoError(t, err)
			assert.Equal(t, 6, n)

			want, err := src.LatestView(ctx, nil)
			require.NoError(t, err)
			got, err := dst.LatestView(ctx, nil)
			require.NoError(t, err)

			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].DealID(), got[i].DealID())
				assert.True(t, want[i].Price.Amount.Equal(got[i].Price.Amount))
				assert.True(t, want[i].Timepoint.Equal(got[i].Timepoint))
				assert.Equal(t, want[i].Price.Currency, got[i].Price.Currency)
			}

			history, err := dst.AllRecords(ctx)
			require.NoError(t, err)
			assert.Len(t, history, 6)
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.csv")

	_, err := Export(ctx, seed(t), path)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "export left a file behind: %v", statErr)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err = Import(ctx, path, memory.New())
	assert.Error(t, err)
}

func TestImportRejectsUnknownSeller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	line := `{"seq":1,"title":"Dune","authors":"Frank Herbert","seller":"kobo","format":"audiobook","price":"1","currency":"USD","list_price":"2","timepoint_ns":0,"deleted":false}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(line), 0o644))

	s := memory.New()
	_, err := Import(context.Background(), path, s)
	require.Error(t, err)

	all, err := s.AllRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is appended when any row is invalid")
}
