package finder

import (
	"context"
	"errors"
	"time"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

// Latest resolves the stored deals without fetching. It replays the
// classification of the newest run at or before asOf (nil means the last
// run): the view at that run is compared with the view at the run before
// it. With a nil asOf it returns store.ErrNoRuns before the first run; an
// asOf earlier than every run resolves to no deals.
func Latest(ctx context.Context, st store.Store, asOf *time.Time, criteria deal.Criteria) (deal.Resolution, time.Time, error) {
	var (
		run *store.Run
		err error
	)
	if asOf != nil {
		run, err = st.RunAt(ctx, *asOf)
		if errors.Is(err, store.ErrNoRuns) {
			return deal.Resolution{}, *asOf, nil
		}
	} else {
		run, err = st.LastRun(ctx)
	}
	if err != nil {
		return deal.Resolution{}, time.Time{}, err
	}
	ref := run.Timepoint

	current, err := st.LatestView(ctx, &ref)
	if err != nil {
		return deal.Resolution{}, ref, err
	}

	var previous []deal.View
	prior, err := st.RunAt(ctx, ref.Add(-time.Nanosecond))
	switch {
	case errors.Is(err, store.ErrNoRuns):
	case err != nil:
		return deal.Resolution{}, ref, err
	default:
		previous, err = st.LatestView(ctx, &prior.Timepoint)
		if err != nil {
			return deal.Resolution{}, ref, err
		}
	}
	return deal.Resolve(current, previous, criteria), ref, nil
}
