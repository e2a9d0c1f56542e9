package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/stop-guard-bot/internal/report"
)

// ReportSource produces protection reports.
type ReportSource interface {
	Generate(ctx context.Context, closuresSince time.Time) (report.Report, error)
}

// ReportHandler serves the operator protection report.
type ReportHandler struct {
	source ReportSource
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(source ReportSource) *ReportHandler {
	return &ReportHandler{source: source}
}

// RegisterRoutes registers the report routes on the router.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/report/protection", h.GetProtectionReport)
}

// GetProtectionReport returns the current protection report. The closure
// window defaults to 24 hours and can be overridden with ?hours=N.
func (h *ReportHandler) GetProtectionReport(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours parameter", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	rep, err := h.source.Generate(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		http.Error(w, "Failed to generate protection report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, "Failed to encode report to JSON", http.StatusInternalServerError)
	}
}
