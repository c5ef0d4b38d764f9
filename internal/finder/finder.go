// Package finder runs one deal-finding pass: it loads the TBR list, asks every
// tracked seller for current prices, appends the observations to the store and
// classifies the resulting deals against the previous run.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
	"github.com/WillNye/tbr-deal-finder/internal/tbr"
)

const defaultConcurrency = 10

// Client fetches the current offer for one book from one seller. A nil record
// with a nil error means the seller does not offer the book.
type Client interface {
	Seller() seller.Seller
	Lookup(ctx context.Context, q seller.Query, at time.Time) (*deal.Record, error)
}

// BookLoader supplies the TBR list.
type BookLoader interface {
	Load() (*tbr.Result, error)
}

// Result summarizes a run.
type Result struct {
	RunID     uuid.UUID
	Timepoint time.Time
	Books     int
	Deals     []deal.ResolvedDeal
	// Warnings collects recoverable problems: skipped TBR rows, unavailable
	// sellers, failed lookups and malformed records.
	Warnings       []error
	SkippedSellers []seller.Seller
	// Unmatched lists TBR books no seller offered.
	Unmatched    []tbr.Book
	Observations int
	Tombstones   int
}

// NewDeals returns the deals classified as NEW.
func (r *Result) NewDeals() []deal.ResolvedDeal {
	var out []deal.ResolvedDeal
	for _, d := range r.Deals {
		if d.Classification == deal.New {
			out = append(out, d)
		}
	}
	return out
}

// Service drives runs against a store.
type Service struct {
	store       store.Store
	loader      BookLoader
	clients     []Client
	criteria    deal.Criteria
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCriteria sets the deal criteria.
func WithCriteria(c deal.Criteria) Option {
	return func(s *Service) { s.criteria = c }
}

// WithConcurrency bounds the number of in-flight seller lookups.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the source of the run timepoint.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(st store.Store, loader BookLoader, clients []Client, opts ...Option) *Service {
	s := &Service{
		store:       st,
		loader:      loader,
		clients:     clients,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sellerFetch is one seller's contribution to a run.
type sellerFetch struct {
	seller  seller.Seller
	records []deal.Record
	// checked holds the keys looked up without error.
	checked map[deal.Key]struct{}
	errs    []error
	lookups int
}

func (f *sellerFetch) failed() bool {
	return f.lookups > 0 && len(f.errs) == f.lookups
}

// Run executes one pass. Only a store failure or cancellation aborts it;
// seller failures are reported in Result.SkippedSellers and Result.Warnings.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	run := store.NewRun(s.now().UTC())
	s.logger.Info("Starting run", "id", run.ID, "timepoint", run.Timepoint, "sellers", len(s.clients))

	tbrList, err := s.loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load TBR list: %w", err)
	}
	result := &Result{
		RunID:     run.ID,
		Timepoint: run.Timepoint,
		Books:     len(tbrList.Books),
		Warnings:  append([]error(nil), tbrList.Warnings...),
	}

	previous, err := s.previousSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	fetches := s.fetchAll(ctx, tbrList.Books, run.Timepoint)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	var succeeded []*sellerFetch
	for _, f := range fetches {
		if f.failed() {
			unavailable := &deal.SourceUnavailableError{Seller: f.seller, Err: errors.Join(f.errs...)}
			s.logger.Warn("Seller unavailable, skipping", "seller", f.seller, "errors", len(f.errs))
			result.SkippedSellers = append(result.SkippedSellers, f.seller)
			result.Warnings = append(result.Warnings, unavailable)
			continue
		}
		for _, err := range f.errs {
			s.logger.Warn("Lookup failed", "seller", f.seller, "err", err)
			result.Warnings = append(result.Warnings, err)
		}
		succeeded = append(succeeded, f)
		run.Sellers = append(run.Sellers, f.seller)
	}

	applyListPrices(succeeded)

	appended, err := s.appendAll(ctx, succeeded)
	if err != nil {
		return nil, err
	}
	result.Observations = appended

	tombstones := vanished(previous, succeeded, run.Timepoint)
	if len(tombstones) > 0 {
		if err := s.store.Append(ctx, tombstones); err != nil {
			return nil, asStoreWriteError("append tombstones", err)
		}
		s.logger.Info("Marked vanished deals deleted", "count", len(tombstones))
	}
	result.Tombstones = len(tombstones)

	current, err := s.store.LatestView(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest view: %w", err)
	}
	current = onList(current, tbrList.Books)

	resolution := deal.Resolve(current, previous, s.criteria)
	result.Deals = resolution.Deals
	result.Warnings = append(result.Warnings, resolution.Warnings...)
	result.Unmatched = unmatched(tbrList.Books, succeeded)

	run.Records = appended + len(tombstones)
	run.Warnings = len(result.Warnings)
	if err := s.store.RecordRun(ctx, run); err != nil {
		return nil, asStoreWriteError("record run", err)
	}

	s.logger.Info("Run complete",
		"id", run.ID,
		"deals", len(result.Deals),
		"new", len(result.NewDeals()),
		"observations", result.Observations,
		"tombstones", result.Tombstones,
		"warnings", len(result.Warnings),
	)
	return result, nil
}

func (s *Service) previousSnapshot(ctx context.Context) ([]deal.View, error) {
	last, err := s.store.LastRun(ctx)
	if errors.Is(err, store.ErrNoRuns) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	previous, err := s.store.LatestView(ctx, &last.Timepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to load previous snapshot: %w", err)
	}
	s.logger.Debug("Loaded previous snapshot", "run", last.ID, "deals", len(previous))
	return previous, nil
}

// fetchAll looks up every book with every client. Lookups share one
// semaphore so concurrency bounds the total number of requests in flight.
func (s *Service) fetchAll(ctx context.Context, books []tbr.Book, at time.Time) []*sellerFetch {
	fetches := make([]*sellerFetch, len(s.clients))
	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for i, client := range s.clients {
		f := &sellerFetch{seller: client.Seller(), checked: make(map[deal.Key]struct{})}
		fetches[i] = f

		for _, b := range books {
			for _, format := range f.seller.Info().Formats {
				wg.Add(1)
				go func(client Client, b tbr.Book, format seller.Format) {
					defer wg.Done()
					semaphore <- struct{}{}        // Acquire
					defer func() { <-semaphore }() // Release

					rec, err := lookup(ctx, client, b, format, at)

					mu.Lock()
					defer mu.Unlock()
					f.lookups++
					if err != nil {
						f.errs = append(f.errs, err)
						return
					}
					key := deal.Key{Title: b.Identity.Title, Authors: b.Identity.Authors, Seller: f.seller, Format: format}
					f.checked[key] = struct{}{}
					if rec != nil {
						f.records = append(f.records, *rec)
					}
				}(client, b, format)
			}
		}
	}

	wg.Wait()
	for _, f := range fetches {
		s.logger.Info("Fetched seller", "seller", f.seller, "lookups", f.lookups, "found", len(f.records), "errors", len(f.errs))
	}
	return fetches
}

// lookup asks for the book by its full title, then once more by the title
// without its subtitle.
func lookup(ctx context.Context, client Client, b tbr.Book, format seller.Format, at time.Time) (*deal.Record, error) {
	q := seller.Query{Title: b.Title, Authors: b.Authors, Format: format}
	rec, err := client.Lookup(ctx, q, at)
	if err != nil || rec != nil {
		return rec, err
	}
	short := book.ShortTitle(b.Title)
	if short == "" {
		return nil, nil
	}
	q.SearchTitle = short
	return client.Lookup(ctx, q, at)
}

// applyListPrices sets every record's list price to the lowest list price
// any seller reports for the same book and format, never below the record's
// own price. Sellers that report no list price get one this way.
func applyListPrices(fetches []*sellerFetch) {
	type bookFormat struct {
		id     book.Identity
		format seller.Format
	}
	lowest := make(map[bookFormat]deal.Record)
	for _, f := range fetches {
		for _, r := range f.records {
			if !r.ListPrice.IsPositive() {
				continue
			}
			k := bookFormat{id: r.Identity(), format: r.Format}
			if cur, ok := lowest[k]; !ok || r.ListPrice.LessThan(cur.ListPrice) {
				lowest[k] = r
			}
		}
	}

	for _, f := range fetches {
		for i := range f.records {
			r := &f.records[i]
			list := r.Price.Amount
			if low, ok := lowest[bookFormat{id: r.Identity(), format: r.Format}]; ok && low.ListPrice.GreaterThan(list) {
				list = low.ListPrice
			}
			r.ListPrice = list
		}
	}
}

// appendAll writes each seller's observations from its own goroutine.
func (s *Service) appendAll(ctx context.Context, fetches []*sellerFetch) (int, error) {
	var wg sync.WaitGroup
	errs := make([]error, len(fetches))
	total := 0
	for i, f := range fetches {
		if len(f.records) == 0 {
			continue
		}
		total += len(f.records)
		wg.Add(1)
		go func(i int, f *sellerFetch) {
			defer wg.Done()
			if err := s.store.Append(ctx, f.records); err != nil {
				errs[i] = asStoreWriteError("append "+string(f.seller), err)
			}
		}(i, f)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// vanished returns deleted markers for previously seen deals of sellers that
// answered this run, where the book was looked up and is no longer offered.
func vanished(previous []deal.View, fetches []*sellerFetch, at time.Time) []deal.Record {
	bySeller := make(map[seller.Seller]*sellerFetch, len(fetches))
	for _, f := range fetches {
		bySeller[f.seller] = f
	}
	found := make(map[deal.Key]struct{})
	for _, f := range fetches {
		for _, r := range f.records {
			found[r.Key()] = struct{}{}
		}
	}

	var out []deal.Record
	for _, p := range previous {
		f, ok := bySeller[p.Seller]
		if !ok {
			continue
		}
		key := p.Key()
		if _, checked := f.checked[key]; !checked {
			continue
		}
		if _, ok := found[key]; ok {
			continue
		}
		out = append(out, p.Tombstone(at))
	}
	return out
}

// onList keeps views of books still on the TBR list.
func onList(views []deal.View, books []tbr.Book) []deal.View {
	ids := make(map[book.Identity]struct{}, len(books))
	for _, b := range books {
		ids[b.Identity] = struct{}{}
	}
	out := views[:0:0]
	for _, v := range views {
		if _, ok := ids[v.Identity()]; ok {
			out = append(out, v)
		}
	}
	return out
}

func unmatched(books []tbr.Book, fetches []*sellerFetch) []tbr.Book {
	found := make(map[book.Identity]struct{})
	for _, f := range fetches {
		for _, r := range f.records {
			found[r.Identity()] = struct{}{}
		}
	}
	var out []tbr.Book
	for _, b := range books {
		if _, ok := found[b.Identity]; !ok {
			out = append(out, b)
		}
	}
	return out
}

func asStoreWriteError(op string, err error) error {
	var swe *deal.StoreWriteError
	if errors.As(err, &swe) {
		return err
	}
	return &deal.StoreWriteError{Op: op, Err: err}
}
