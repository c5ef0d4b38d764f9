// Package storetest holds the behavioural suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// At returns the fixed base time shifted by d days.
func At(days int) time.Time {
	return base.AddDate(0, 0, days)
}

// Record builds an audiobook record priced in USD.
func Record(title, authors string, sel seller.Seller, price string, at time.Time) deal.Record {
	return deal.Record{
		Title:     title,
		Authors:   authors,
		Seller:    sel,
		Format:    seller.Audiobook,
		Price:     deal.Money{Amount: decimal.RequireFromString(price), Currency: "USD"},
		ListPrice: decimal.RequireFromString("20.00"),
		Timepoint: at,
	}
}

// Run exercises newStore against the store contract.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("idempotent append", func(t *testing.T) {
		ctx := context.Background()
		once := newStore(t)
		twice := newStore(t)

		r := Record("Dune", "Frank Herbert", seller.Audible, "4.99", At(0))
		require.NoError(t, once.Append(ctx, []deal.Record{r}))
		require.NoError(t, twice.Append(ctx, []deal.Record{r}))
		require.NoError(t, twice.Append(ctx, []deal.Record{r}))

		a, err := once.LatestView(ctx, nil)
		require.NoError(t, err)
		b, err := twice.LatestView(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, records(a), records(b))

		all, err := twice.AllRecords(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2, "history grows even though the view does not")
	})

	t.Run("latest wins regardless of insertion order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Append(ctx, []deal.Record{
			Record("Dune", "Frank Herbert", seller.Audible, "3.00", At(3)),
			Record("Dune", "Frank Herbert", seller.Audible, "1.00", At(1)),
		}))
		require.NoError(t, s.Append(ctx, []deal.Record{
			Record("Dune", "Frank Herbert", seller.Audible, "2.00", At(2)),
		}))

		view, err := s.LatestView(ctx, nil)
		require.NoError(t, err)
		require.Len(t, view, 1)
		assert.True(t, view[0].Price.Amount.Equal(decimal.RequireFromString("3.00")), "got %s", view[0].Price.Amount)
	})

	t.Run("soft delete excludes key", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		r := Record("Dune", "Frank Herbert", seller.Audible, "4.99", At(0))
		keep := Record("Emma", "Jane Austen", seller.Audible, "2.99", At(0))
		require.NoError(t, s.Append(ctx, []deal.Record{r, keep}))
		require.NoError(t, s.Append(ctx, []deal.Record{r.Tombstone(At(1))}))

		view, err := s.LatestView(ctx, nil)
		require.NoError(t, err)
		require.Len(t, view, 1)
		assert.Equal(t, "Emma", view[0].Title)

		history, err := s.History(ctx, r.Key())
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.False(t, history[0].Deleted)
		assert.True(t, history[1].Deleted)
	})

	t.Run("reappearing deal after delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		r := Record("Dune", "Frank Herbert", seller.Audible, "4.99", At(0))
		require.NoError(t, s.Append(ctx, []deal.Record{r, r.Tombstone(At(1))}))
		require.NoError(t, s.Append(ctx, []deal.Record{Record("Dune", "Frank Herbert", seller.Audible, "3.99", At(2))}))

		view, err := s.LatestView(ctx, nil)
		require.NoError(t, err)
		require.Len(t, view, 1)
		assert.False(t, view[0].Deleted)
	})

	t.Run("timepoint tie goes to later insertion", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Append(ctx, []deal.Record{
			Record("Dune", "Frank Herbert", seller.Audible, "5.00", At(1)),
			Record("Dune", "Frank Herbert", seller.Audible, "6.00", At(1)),
		}))
		require.NoError(t, s.Append(ctx, []deal.Record{
			Record("Dune", "Frank Herbert", seller.Audible, "7.00", At(1)),
		}))

		for i := 0; i < 3; i++ {
			view, err := s.LatestView(ctx, nil)
			require.NoError(t, err)
			require.Len(t, view, 1)
			assert.True(t, view[0].Price.Amount.Equal(decimal.RequireFromString("7.00")))
		}

		all, err := s.AllRecords(ctx)
		require.NoError(t, err)
		assert.Equal(t, records(store.Project(all, nil)), records(mustLatest(t, s, nil)))
	})

	t.Run("as of cut-off", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Append(ctx, []deal.Record{
			Record("Dune", "Frank Herbert", seller.Audible, "4.00", At(0)),
			Record("Dune", "Frank Herbert", seller.Audible, "3.00", At(2)),
			Record("Emma", "Jane Austen", seller.Chirp, "2.00", At(2)),
		}))

		cutoff := At(1)
		view := mustLatest(t, s, &cutoff)
		require.Len(t, view, 1)
		assert.True(t, view[0].Price.Amount.Equal(decimal.RequireFromString("4.00")))

		exact := At(2)
		assert.Len(t, mustLatest(t, s, &exact), 2, "cut-off is inclusive")
	})

	t.Run("ordering by normalized key", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Append(ctx, []deal.Record{
			Record("Zorba the Greek", "Nikos Kazantzakis", seller.Audible, "2.00", At(0)),
			Record("emma", "Jane Austen", seller.Chirp, "2.00", At(0)),
			Record("Émma", "Jane Austen", seller.Audible, "2.00", At(0)),
			Record("Anathem", "Neal Stephenson", seller.Audible, "2.00", At(0)),
		}))

		var got []string
		for _, v := range mustLatest(t, s, nil) {
			got = append(got, v.DealID())
		}
		assert.Equal(t, []string{
			"anathem__neal stephenson__audible__audiobook",
			"emma__jane austen__audible__audiobook",
			"emma__jane austen__chirp__audiobook",
			"zorba the greek__nikos kazantzakis__audible__audiobook",
		}, got)
	})

	t.Run("concurrent appends", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				var batch []deal.Record
				for i := 0; i < 10; i++ {
					batch = append(batch, Record(fmt.Sprintf("Book %d-%d", w, i), "Someone", seller.Audible, "1.00", At(0)))
				}
				errs <- s.Append(ctx, batch)
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.Len(t, mustLatest(t, s, nil), 80)
	})

	t.Run("runs", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.LastRun(ctx)
		assert.True(t, errors.Is(err, store.ErrNoRuns), "got %v", err)

		first := store.NewRun(At(0))
		first.Sellers = []seller.Seller{seller.Audible}
		second := store.NewRun(At(1))
		second.Sellers = []seller.Seller{seller.Audible, seller.Chirp}
		second.Records = 12
		second.Warnings = 1

		require.NoError(t, s.RecordRun(ctx, second))
		require.NoError(t, s.RecordRun(ctx, first))

		last, err := s.LastRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, last.ID)
		assert.True(t, second.Timepoint.Equal(last.Timepoint))
		assert.Equal(t, second.Sellers, last.Sellers)
		assert.Equal(t, 12, last.Records)
		assert.Equal(t, 1, last.Warnings)

		_, err = s.RunAt(ctx, At(0).Add(-time.Nanosecond))
		assert.True(t, errors.Is(err, store.ErrNoRuns), "got %v", err)

		at, err := s.RunAt(ctx, At(0))
		require.NoError(t, err)
		assert.Equal(t, first.ID, at.ID)
		assert.Equal(t, first.Sellers, at.Sellers)

		at, err = s.RunAt(ctx, At(1).Add(-time.Nanosecond))
		require.NoError(t, err)
		assert.Equal(t, first.ID, at.ID)

		at, err = s.RunAt(ctx, At(5))
		require.NoError(t, err)
		assert.Equal(t, second.ID, at.ID)
	})
}

func mustLatest(t *testing.T, s store.Store, asOf *time.Time) []deal.View {
	t.Helper()
	view, err := s.LatestView(context.Background(), asOf)
	require.NoError(t, err)
	return view
}

// records strips store-assigned sequence numbers and normalizes times so
// views from different stores compare equal.
func records(views []deal.View) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = fmt.Sprintf("%s|%s|%s|%s|%t",
			v.DealID(), v.Price.Amount.String(), v.ListPrice.String(),
			v.Timepoint.UTC().Format(time.RFC3339Nano), v.Deleted)
	}
	return out
}
