// Package handlers serves the deal history over a read-only JSON API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/store"
)

type Handler struct {
	store    store.Store
	criteria deal.Criteria
}

func New(st store.Store, criteria deal.Criteria) *Handler {
	return &Handler{store: st, criteria: criteria}
}

// Routes registers every endpoint on a new router. Other methods get 405.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/deals", h.HandleDeals)
	r.Get("/api/deals/history", h.HandleHistory)
	r.Get("/api/runs/last", h.HandleLastRun)
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return r
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Debug(message, "code", code)
	}
	http.Error(w, message, code)
}
