package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/report"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/store"
	"github.com/WillNye/tbr-deal-finder/internal/store/memory"
)

var runAt = time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)

func criteria() deal.Criteria {
	return deal.CriteriaFromPercent(decimal.RequireFromString("8.00"), 35)
}

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	rec := deal.Record{
		Title:     "Dune",
		Authors:   "Frank Herbert",
		Seller:    seller.Chirp,
		Format:    seller.Audiobook,
		Price:     deal.Money{Amount: decimal.RequireFromString("4.99"), Currency: "USD"},
		ListPrice: decimal.RequireFromString("20.00"),
		Timepoint: runAt,
	}
	require.NoError(t, st.Append(ctx, []deal.Record{rec}))
	require.NoError(t, st.RecordRun(ctx, store.NewRun(runAt)))
	return st
}

func get(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleDeals(t *testing.T) {
	h := New(seeded(t), criteria())

	rec := get(t, h, "/api/deals")
	require.Equal(t, http.StatusOK, rec.Code)

	var rep report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Deals, 1)
	assert.Equal(t, "Dune", rep.Deals[0].Title)
	assert.Equal(t, "NEW", rep.Deals[0].Classification)
	assert.Equal(t, "2025-06-01T07:00:00Z", rep.Timepoint)

	rec = get(t, h, "/api/deals?as_of="+url.QueryEscape("2025-05-01T00:00:00Z"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Empty(t, rep.Deals)

	rec = get(t, h, "/api/deals?as_of=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDealsNoRuns(t *testing.T) {
	h := New(memory.New(), criteria())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/deals").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs/last").Code)
}

func TestHandleHistory(t *testing.T) {
	h := New(seeded(t), criteria())

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{name: "found", query: "title=DUNE&authors=Frank+Herbert&seller=chirp", wantCode: http.StatusOK, wantLen: 1},
		{name: "other seller", query: "title=Dune&authors=Frank+Herbert&seller=audible", wantCode: http.StatusOK, wantLen: 0},
		{name: "missing authors", query: "title=Dune&seller=chirp", wantCode: http.StatusBadRequest},
		{name: "unknown seller", query: "title=Dune&authors=Frank+Herbert&seller=kobo", wantCode: http.StatusBadRequest},
		{name: "unknown format", query: "title=Dune&authors=Frank+Herbert&seller=chirp&format=vinyl", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/api/deals/history?"+tt.query)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var views []deal.View
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
			assert.Len(t, views, tt.wantLen)
		})
	}
}

func TestHandleLastRunAndHealth(t *testing.T) {
	h := New(seeded(t), criteria())

	rec := get(t, h, "/api/runs/last")
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.True(t, run.Timepoint.Equal(runAt))

	rec = get(t, h, "/healthcheck")
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/deals", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
