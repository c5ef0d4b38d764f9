// Package memory is an in-process Store used by tests and dry runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	records []deal.View
	runs    []store.Run
	nextSeq int64
	mu      sync.RWMutex
}

func New() *Store {
	return &Store{nextSeq: 1}
}

func (s *Store) Append(ctx context.Context, records []deal.Record) error {
	if err := ctx.Err(); err != nil {
		return &deal.StoreWriteError{Op: "append", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records = append(s.records, deal.View{Record: r, Seq: s.nextSeq})
		s.nextSeq++
	}
	return nil
}

func (s *Store) LatestView(ctx context.Context, asOf *time.Time) ([]deal.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.Project(s.snapshot(), asOf), nil
}

func (s *Store) History(ctx context.Context, key deal.Key) ([]deal.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return store.Lineage(s.snapshot(), key), nil
}

func (s *Store) AllRecords(ctx context.Context) ([]deal.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	if err := ctx.Err(); err != nil {
		return &deal.StoreWriteError{Op: "record run", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run.Sellers = slices.Clone(run.Sellers)
	s.runs = append(s.runs, run)
	return nil
}

// LastRun returns the run with the latest timepoint.
func (s *Store) LastRun(ctx context.Context) (*store.Run, error) {
	return s.runBefore(ctx, nil)
}

func (s *Store) RunAt(ctx context.Context, asOf time.Time) (*store.Run, error) {
	return s.runBefore(ctx, &asOf)
}

// runBefore picks the newest run not after asOf. Equal timepoints go to the
// later recorded run.
func (s *Store) runBefore(ctx context.Context, asOf *time.Time) (*store.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *store.Run
	for i := range s.runs {
		r := s.runs[i]
		if asOf != nil && r.Timepoint.After(*asOf) {
			continue
		}
		if last == nil || !r.Timepoint.Before(last.Timepoint) {
			last = &r
		}
	}
	if last == nil {
		return nil, store.ErrNoRuns
	}
	last.Sellers = slices.Clone(last.Sellers)
	return last, nil
}

func (s *Store) Close() error {
	return nil
}

// snapshot copies the history under the read lock.
func (s *Store) snapshot() []deal.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}
