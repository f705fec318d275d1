package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aforo/aforo/internal/http/middleware"
	"github.com/aforo/aforo/internal/http/response"
	"github.com/aforo/aforo/internal/report"
	"github.com/aforo/aforo/pkg/logger"
)

type ReportsHandler struct {
	Aggregator *report.Aggregator
}

func NewReportsHandler(agg *report.Aggregator) *ReportsHandler {
	return &ReportsHandler{Aggregator: agg}
}

func (h *ReportsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.compute)
	return r
}

// compute serves GET /?from=...&to=... with RFC3339 or date-only bounds.
// Defaults to the current calendar month.
func (h *ReportsHandler) compute(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			response.BadRequest(w, "invalid 'from' timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			response.BadRequest(w, "invalid 'to' timestamp")
			return
		}
		to = t
	}

	if !to.After(from) {
		response.BadRequest(w, "'to' must be after 'from'")
		return
	}

	rep, err := h.Aggregator.Compute(r.Context(), middleware.TenantFrom(r.Context()), from, to)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to compute report", "error", err)
		response.InternalError(w, "failed to compute report")
		return
	}
	response.WriteJSON(w, http.StatusOK, rep)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
