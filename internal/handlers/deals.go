package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/WillNye/tbr-deal-finder/internal/book"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/finder"
	"github.com/WillNye/tbr-deal-finder/internal/report"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

// HandleDeals returns the resolved deals after the last run, or as of the
// RFC 3339 time in the as_of query parameter.
func (h *Handler) HandleDeals(w http.ResponseWriter, r *http.Request) {
	var asOf *time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, "Invalid as_of: "+err.Error(), http.StatusBadRequest)
			return
		}
		asOf = &t
	}

	resolution, ref, err := finder.Latest(r.Context(), h.store, asOf, h.criteria)
	if errors.Is(err, store.ErrNoRuns) {
		h.writeError(w, "No runs recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to load deals: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rep := report.FromDeals(resolution.Deals)
	rep.Timepoint = ref.UTC().Format(time.RFC3339)
	for _, warning := range resolution.Warnings {
		rep.Warnings = append(rep.Warnings, warning.Error())
	}
	h.writeJSON(w, rep)
}

// HandleHistory returns every record of one deal key. title, authors and
// seller are required; format defaults to audiobook.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := book.Normalize(q.Get("title"), q.Get("authors"))
	if id.IsZero() {
		h.writeError(w, "title and authors are required", http.StatusBadRequest)
		return
	}
	sel, err := seller.Parse(q.Get("seller"))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	format := seller.Audiobook
	if v := q.Get("format"); v != "" {
		if format, err = seller.ParseFormat(v); err != nil {
			h.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	key := deal.Key{Title: id.Title, Authors: id.Authors, Seller: sel, Format: format}
	views, err := h.store.History(r.Context(), key)
	if err != nil {
		h.writeError(w, "Failed to load history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if views == nil {
		views = []deal.View{}
	}
	h.writeJSON(w, views)
}

// HandleLastRun returns the bookkeeping entry of the most recent run.
func (h *Handler) HandleLastRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.LastRun(r.Context())
	if errors.Is(err, store.ErrNoRuns) {
		h.writeError(w, "No runs recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to load last run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, run)
}
