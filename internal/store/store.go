// Package store defines the append-only deal history and the projection that
// derives the latest state per deal key from it.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

// ErrNoRuns is returned by LastRun before any run has been recorded, and by
// RunAt when no run happened at or before the requested time.
var ErrNoRuns = errors.New("no recorded runs")

// Store persists seller observations as an immutable event log. There is no
// mutable current-state table: every view is re-derived from history.
type Store interface {
	// Append inserts records and assigns each a new insertion sequence. It
	// never overwrites existing rows and is safe for concurrent callers.
	// Failures are reported as *deal.StoreWriteError.
	Append(ctx context.Context, records []deal.Record) error

	// LatestView returns, per key, the newest record with a timepoint not
	// after asOf (nil means now), dropping keys whose newest record is
	// deleted. Results are ordered by key.
	LatestView(ctx context.Context, asOf *time.Time) ([]deal.View, error)

	// History returns every record of one key ordered by timepoint then seq.
	History(ctx context.Context, key deal.Key) ([]deal.View, error)

	// AllRecords returns the full history ordered by seq.
	AllRecords(ctx context.Context) ([]deal.View, error)

	RecordRun(ctx context.Context, run Run) error
	LastRun(ctx context.Context) (*Run, error)

	// RunAt returns the newest run with a timepoint not after asOf.
	RunAt(ctx context.Context, asOf time.Time) (*Run, error)

	Close() error
}

// Run is the bookkeeping entry for one completed finder run. The next run
// loads its previous snapshot as of Timepoint.
type Run struct {
	ID        uuid.UUID       `json:"id" yaml:"id"`
	Timepoint time.Time       `json:"timepoint" yaml:"timepoint"`
	Sellers   []seller.Seller `json:"sellers" yaml:"sellers"`
	Records   int             `json:"records" yaml:"records"`
	Warnings  int             `json:"warnings" yaml:"warnings"`
}

// NewRun starts a run at t with a fresh id.
func NewRun(t time.Time) Run {
	return Run{ID: uuid.New(), Timepoint: t}
}

// Project is the reference latest-view projection over an in-memory history.
// For each key it keeps the newest record with Timepoint <= asOf, breaking
// timepoint ties by the higher Seq, then drops deleted keys and sorts.
func Project(history []deal.View, asOf *time.Time) []deal.View {
	latest := make(map[deal.Key]deal.View)
	for _, v := range history {
		if asOf != nil && v.Timepoint.After(*asOf) {
			continue
		}
		k := v.Key()
		if cur, ok := latest[k]; ok && !v.Newer(cur) {
			continue
		}
		latest[k] = v
	}

	type keyed struct {
		key  deal.Key
		view deal.View
	}
	out := make([]keyed, 0, len(latest))
	for k, v := range latest {
		if v.Deleted {
			continue
		}
		out = append(out, keyed{key: k, view: v})
	}
	slices.SortFunc(out, func(a, b keyed) int {
		return deal.CompareKeys(a.key, b.key)
	})

	views := make([]deal.View, len(out))
	for i, kv := range out {
		views[i] = kv.view
	}
	return views
}

// Lineage filters history down to one key, ordered by timepoint then seq.
func Lineage(history []deal.View, key deal.Key) []deal.View {
	var out []deal.View
	for _, v := range history {
		if v.Key() == key {
			out = append(out, v)
		}
	}
	slices.SortStableFunc(out, func(a, b deal.View) int {
		if a.Newer(b) {
			return 1
		}
		if b.Newer(a) {
			return -1
		}
		return 0
	})
	return out
}
