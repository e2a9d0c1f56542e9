package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/stop-guard-bot/internal/report"
)

func TestFormatReport(t *testing.T) {
	rep := report.Report{
		OpenPositions:        4,
		ProtectedPositions:   3,
		UnprotectedPositions: 1,
		ProtectionRate:       75,
		TotalRetries:         5,
		MaxRetryCount:        3,
		ForceClosures:        2,
		ClosuresByReason: map[string]int{
			"retries_exhausted": 1,
			"max_age_exceeded":  1,
		},
		ClosedNotional: decimal.NewFromFloat(23400.5),
	}

	got := formatReport(rep)
	assert.Contains(t, got, "open=4 protected=3 unprotected=1")
	assert.Contains(t, got, "rate=75.0%")
	assert.Contains(t, got, "notional=23400.50")
	// reasons are sorted for stable output
	assert.Contains(t, got, "byReason[max_age_exceeded=1 retries_exhausted=1]")
}

func TestFormatReport_Empty(t *testing.T) {
	got := formatReport(report.Report{ClosedNotional: decimal.Zero})
	assert.Contains(t, got, "open=0")
	assert.NotContains(t, got, "byReason")
}
