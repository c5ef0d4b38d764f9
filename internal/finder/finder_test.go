package finder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
	"github.com/WillNye/tbr-deal-finder/internal/store/memory"
	"github.com/WillNye/tbr-deal-finder/internal/tbr"
)

var start = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

type offer struct {
	price string
	list  string
}

type fakeClient struct {
	seller  seller.Seller
	mu      sync.Mutex
	offers  map[string]offer
	err     error
	queries []seller.Query
}

func newFake(sel seller.Seller) *fakeClient {
	return &fakeClient{seller: sel, offers: make(map[string]offer)}
}

func (c *fakeClient) Seller() seller.Seller { return c.seller }

func (c *fakeClient) Lookup(_ context.Context, q seller.Query, at time.Time) (*deal.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	if c.err != nil {
		return nil, c.err
	}
	o, ok := c.offers[q.Term()]
	if !ok {
		return nil, nil
	}
	list := decimal.Zero
	if o.list != "" {
		list = decimal.RequireFromString(o.list)
	}
	return &deal.Record{
		Title:     q.Title,
		Authors:   q.Authors,
		Seller:    c.seller,
		Format:    q.Format,
		Price:     deal.Money{Amount: decimal.RequireFromString(o.price), Currency: "USD"},
		ListPrice: list,
		Timepoint: at,
	}, nil
}

func (c *fakeClient) set(title string, o offer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers[title] = o
}

func (c *fakeClient) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers = make(map[string]offer)
}

type staticLoader struct {
	books []tbr.Book
}

func (l staticLoader) Load() (*tbr.Result, error) {
	return &tbr.Result{Books: l.books}, nil
}

func books(pairs ...string) staticLoader {
	var l staticLoader
	for i := 0; i+1 < len(pairs); i += 2 {
		l.books = append(l.books, tbr.Book{
			Title:    pairs[i],
			Authors:  pairs[i+1],
			Identity: book.Normalize(pairs[i], pairs[i+1]),
			Source:   "test.csv",
		})
	}
	return l
}

// clock advances one day per run.
type clock struct {
	day int
}

func (c *clock) now() time.Time {
	return start.AddDate(0, 0, c.day)
}

func newService(st store.Store, loader BookLoader, clk *clock, clients ...Client) *Service {
	return NewService(st, loader, clients,
		WithCriteria(deal.CriteriaFromPercent(decimal.RequireFromString("8.00"), 35)),
		WithConcurrency(4),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(clk.now),
	)
}

func classes(deals []deal.ResolvedDeal) map[seller.Seller]deal.Classification {
	out := make(map[seller.Seller]deal.Classification)
	for _, d := range deals {
		out[d.View.Seller] = d.Classification
	}
	return out
}

func TestRun_NewThenActive(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clk := &clock{}
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	svc := newService(st, books("Dune", "Frank Herbert"), clk, chirp)

	first, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, first.Deals, 1)
	assert.Equal(t, deal.New, first.Deals[0].Classification)
	assert.Equal(t, 1, first.Observations)

	clk.day++
	second, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, second.Deals, 1)
	assert.Equal(t, deal.Active, second.Deals[0].Classification)

	clk.day++
	chirp.set("Dune", offer{price: "3.99", list: "20.00"})
	third, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, third.Deals, 1)
	assert.Equal(t, deal.New, third.Deals[0].Classification, "price drop is a new deal")

	last, err := st.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.RunID, last.ID)
	assert.Equal(t, []seller.Seller{seller.Chirp}, last.Sellers)
}

func TestRun_FailingSellerIsSkipped(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clk := &clock{}
	audible := newFake(seller.Audible)
	audible.set("Dune", offer{price: "4.99", list: "20.00"})
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "5.99", list: "20.00"})
	svc := newService(st, books("Dune", "Frank Herbert"), clk, audible, chirp)

	first, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, first.Deals, 2)

	clk.day++
	audible.err = errors.New("connection refused")
	second, err := svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []seller.Seller{seller.Audible}, second.SkippedSellers)
	require.NotEmpty(t, second.Warnings)
	assert.ErrorIs(t, second.Warnings[0], deal.ErrSourceUnavailable)
	assert.Zero(t, second.Tombstones, "a failing seller's deals are kept")

	got := classes(second.Deals)
	assert.Equal(t, deal.Active, got[seller.Audible])
	assert.Equal(t, deal.Active, got[seller.Chirp])
}

func TestRun_VanishedDealIsDeleted(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clk := &clock{}
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	svc := newService(st, books("Dune", "Frank Herbert"), clk, chirp)

	_, err := svc.Run(ctx)
	require.NoError(t, err)

	clk.day++
	chirp.clear()
	second, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Tombstones)
	assert.Empty(t, second.Deals)
	require.Len(t, second.Unmatched, 1)
	assert.Equal(t, "Dune", second.Unmatched[0].Title)

	key := deal.Key{Title: "dune", Authors: "frank herbert", Seller: seller.Chirp, Format: seller.Audiobook}
	history, err := st.History(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Deleted)
	assert.True(t, history[1].Deleted)
	assert.True(t, history[1].Timepoint.Equal(clk.now()))

	clk.day++
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	third, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, third.Deals, 1)
	assert.Equal(t, deal.New, third.Deals[0].Classification, "a deal returning after deletion is new")
}

func TestRun_ShortTitleRetry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{}
	chirp := newFake(seller.Chirp)
	chirp.set("Project Hail Mary", offer{price: "4.99", list: "30.00"})
	svc := newService(memory.New(), books("Project Hail Mary: A Novel", "Andy Weir"), clk, chirp)

	res, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Deals, 1)
	assert.Equal(t, "Project Hail Mary: A Novel", res.Deals[0].View.Title)
	assert.Empty(t, res.Unmatched)

	require.Len(t, chirp.queries, 2)
	assert.Equal(t, "Project Hail Mary: A Novel", chirp.queries[0].Term())
	assert.Equal(t, "Project Hail Mary", chirp.queries[1].Term())
}

func TestRun_LowestListPriceApplied(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clk := &clock{}
	audible := newFake(seller.Audible)
	audible.set("Dune", offer{price: "6.00", list: "30.00"})
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "7.00", list: "10.00"})
	libro := newFake(seller.LibroFM)
	libro.set("Dune", offer{price: "5.00"})
	svc := newService(st, books("Dune", "Frank Herbert"), clk, audible, chirp, libro)

	res, err := svc.Run(ctx)
	require.NoError(t, err)

	latest, err := st.LatestView(ctx, nil)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	for _, v := range latest {
		assert.True(t, v.ListPrice.Equal(decimal.RequireFromString("10.00")), "%s list price %s", v.Seller, v.ListPrice)
	}

	// 6.00 and 5.00 against 10.00 qualify; 7.00 is only 30% off.
	got := classes(res.Deals)
	assert.Len(t, got, 2)
	assert.Contains(t, got, seller.Audible)
	assert.Contains(t, got, seller.LibroFM)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) Append(context.Context, []deal.Record) error {
	return errors.New("disk full")
}

func TestRun_StoreWriteFailureAborts(t *testing.T) {
	ctx := context.Background()
	st := failingStore{Store: memory.New()}
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	svc := newService(st, books("Dune", "Frank Herbert"), &clock{}, chirp)

	res, err := svc.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, deal.ErrStoreWrite)

	_, err = st.LastRun(ctx)
	assert.ErrorIs(t, err, store.ErrNoRuns, "no run is recorded after a failed append")
}

func TestRun_RemovedBookIsNotReported(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	clk := &clock{}
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	chirp.set("Piranesi", offer{price: "3.99", list: "20.00"})

	_, err := newService(st, books("Dune", "Frank Herbert", "Piranesi", "Susanna Clarke"), clk, chirp).Run(ctx)
	require.NoError(t, err)

	clk.day++
	res, err := newService(st, books("Piranesi", "Susanna Clarke"), clk, chirp).Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Deals, 1)
	assert.Equal(t, "piranesi", res.Deals[0].Identity.Title)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chirp := newFake(seller.Chirp)
	svc := newService(memory.New(), books("Dune", "Frank Herbert"), &clock{}, chirp)
	_, err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	crit := deal.CriteriaFromPercent(decimal.RequireFromString("8.00"), 35)

	_, _, err := Latest(ctx, st, nil, crit)
	require.ErrorIs(t, err, store.ErrNoRuns)

	clk := &clock{}
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	svc := newService(st, books("Dune", "Frank Herbert"), clk, chirp)
	_, err = svc.Run(ctx)
	require.NoError(t, err)
	firstRun := clk.now()

	clk.day++
	_, err = svc.Run(ctx)
	require.NoError(t, err)

	res, ref, err := Latest(ctx, st, nil, crit)
	require.NoError(t, err)
	assert.True(t, ref.Equal(clk.now()))
	require.Len(t, res.Deals, 1)
	assert.Equal(t, deal.Active, res.Deals[0].Classification)

	res, _, err = Latest(ctx, st, &firstRun, crit)
	require.NoError(t, err)
	require.Len(t, res.Deals, 1)
	assert.Equal(t, deal.New, res.Deals[0].Classification)
}

func TestLatestAsOfReplaysRunClassification(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	crit := deal.CriteriaFromPercent(decimal.RequireFromString("8.00"), 35)

	clk := &clock{}
	chirp := newFake(seller.Chirp)
	chirp.set("Dune", offer{price: "4.99", list: "20.00"})
	svc := newService(st, books("Dune", "Frank Herbert", "Fresh Book", "Some Author"), clk, chirp)
	_, err := svc.Run(ctx)
	require.NoError(t, err)
	firstRun := clk.now()

	clk.day++
	chirp.set("Fresh Book", offer{price: "3.99", list: "15.00"})
	_, err = svc.Run(ctx)
	require.NoError(t, err)
	secondRun := clk.now()

	classes := func(res deal.Resolution) map[string]deal.Classification {
		out := make(map[string]deal.Classification)
		for _, d := range res.Deals {
			out[d.Identity.Title] = d.Classification
		}
		return out
	}

	latest, _, err := Latest(ctx, st, nil, crit)
	require.NoError(t, err)
	want := map[string]deal.Classification{"dune": deal.Active, "fresh book": deal.New}
	assert.Equal(t, want, classes(latest))

	tests := []struct {
		name    string
		asOf    time.Time
		wantRef time.Time
		want    map[string]deal.Classification
	}{
		{name: "at second run", asOf: secondRun, wantRef: secondRun, want: want},
		{name: "after second run", asOf: secondRun.Add(time.Hour), wantRef: secondRun, want: want},
		{name: "between runs", asOf: firstRun.Add(time.Hour), wantRef: firstRun, want: map[string]deal.Classification{"dune": deal.New}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asOf := tt.asOf
			res, ref, err := Latest(ctx, st, &asOf, crit)
			require.NoError(t, err)
			assert.True(t, ref.Equal(tt.wantRef), "ref %v", ref)
			assert.Equal(t, tt.want, classes(res))
		})
	}

	before := firstRun.Add(-time.Hour)
	res, ref, err := Latest(ctx, st, &before, crit)
	require.NoError(t, err)
	assert.Empty(t, res.Deals)
	assert.True(t, ref.Equal(before))
}
