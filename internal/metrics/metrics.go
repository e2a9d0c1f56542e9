// Package metrics exposes Prometheus metrics for the guard services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/stop-guard-bot/internal/monitor"
)

var (
	SweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopguard_sweeps_total",
		Help: "Number of safety sweeps run.",
	})
	SweepScannedPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stopguard_sweep_scanned_positions",
		Help: "Open positions scanned by the last safety sweep.",
	})
	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopguard_sweep_errors_total",
		Help: "Positions the safety sweep failed to process.",
	})
	StopRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopguard_stop_retries_total",
		Help: "Stop order placement retries attempted by the safety sweep.",
	})
	StopRetrySuccessesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopguard_stop_retry_successes_total",
		Help: "Stop order placement retries that succeeded.",
	})
	ForceClosuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stopguard_force_closures_total",
		Help: "Positions force closed by the safety sweep.",
	})
	TrailingUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stopguard_trailing_updates_total",
		Help: "Trailing stop update requests by outcome.",
	}, []string{"outcome"})
)

// ObserveSweep records the outcome of one safety sweep.
func ObserveSweep(report monitor.Report) {
	SweepsTotal.Inc()
	SweepScannedPositions.Set(float64(report.Scanned))
	SweepErrors.Add(float64(report.Errors))
	StopRetriesTotal.Add(float64(report.Retried))
	StopRetrySuccessesTotal.Add(float64(report.RetriesSucceeded))
	ForceClosuresTotal.Add(float64(report.ForceClosed))
}

// ObserveTrailingUpdate records a trailing update outcome. The outcome is
// "success" or the rejection reason.
func ObserveTrailingUpdate(outcome string) {
	TrailingUpdatesTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
