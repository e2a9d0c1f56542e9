package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/stop-guard-bot/internal/report"
)

type fakeReportSource struct {
	report report.Report
	since  time.Time
	err    error
}

func (f *fakeReportSource) Generate(ctx context.Context, closuresSince time.Time) (report.Report, error) {
	f.since = closuresSince
	return f.report, f.err
}

func TestHealthCheckHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	HealthCheckHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGetProtectionReport(t *testing.T) {
	source := &fakeReportSource{report: report.Report{OpenPositions: 3, ProtectedPositions: 2}}
	r := chi.NewRouter()
	NewReportHandler(source).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/report/protection?hours=48", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got report.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.OpenPositions)
	assert.Equal(t, 2, got.ProtectedPositions)

	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), source.since, time.Minute)
}

func TestGetProtectionReport_BadHours(t *testing.T) {
	r := chi.NewRouter()
	NewReportHandler(&fakeReportSource{}).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/report/protection?hours=nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProtectionReport_SourceError(t *testing.T) {
	r := chi.NewRouter()
	NewReportHandler(&fakeReportSource{err: errors.New("db down")}).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/report/protection", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
