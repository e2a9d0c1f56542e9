// Package report builds the operator protection report: how well open
// positions are covered by stop orders and what the force closures cost.
package report

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PositionRow is the slice of a position the report needs.
type PositionRow struct {
	Side       string
	StopStatus string
	RetryCount int
	Quantity   float64
	EntryPrice float64
}

// ClosureRow is one force closure trade.
type ClosureRow struct {
	Reason     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	ExecutedAt time.Time
}

// Report holds the protection summary.
type Report struct {
	GeneratedAt          time.Time       `json:"generated_at"`
	OpenPositions        int             `json:"open_positions"`
	ProtectedPositions   int             `json:"protected_positions"`
	UnprotectedPositions int             `json:"unprotected_positions"`
	PendingPlacements    int             `json:"pending_placements"`
	ProtectionRate       float64         `json:"protection_rate"`
	TotalRetries         int             `json:"total_retries"`
	MaxRetryCount        int             `json:"max_retry_count"`
	ForceClosures        int             `json:"force_closures"`
	ClosuresByReason     map[string]int  `json:"closures_by_reason"`
	ClosedNotional       decimal.Decimal `json:"closed_notional"`
}

// Generator reads report data from the database.
type Generator struct {
	db *pgxpool.Pool
}

// NewGenerator creates a new Generator.
func NewGenerator(db *pgxpool.Pool) *Generator {
	return &Generator{db: db}
}

// Generate builds the report over all open positions and the closures of the
// given window.
func (g *Generator) Generate(ctx context.Context, closuresSince time.Time) (Report, error) {
	positions, err := g.fetchPositions(ctx)
	if err != nil {
		return Report{}, err
	}
	closures, err := g.fetchClosures(ctx, closuresSince)
	if err != nil {
		return Report{}, err
	}
	return Analyze(positions, closures), nil
}

// Analyze computes the report from raw rows.
func Analyze(positions []PositionRow, closures []ClosureRow) Report {
	report := Report{
		GeneratedAt:      time.Now().UTC(),
		OpenPositions:    len(positions),
		ClosuresByReason: make(map[string]int),
		ClosedNotional:   decimal.Zero,
	}

	for _, p := range positions {
		switch p.StopStatus {
		case "open":
			report.ProtectedPositions++
		case "pending":
			report.PendingPlacements++
		default:
			report.UnprotectedPositions++
		}
		report.TotalRetries += p.RetryCount
		if p.RetryCount > report.MaxRetryCount {
			report.MaxRetryCount = p.RetryCount
		}
	}
	if report.OpenPositions > 0 {
		report.ProtectionRate = float64(report.ProtectedPositions) / float64(report.OpenPositions) * 100
	}

	report.ForceClosures = len(closures)
	for _, c := range closures {
		report.ClosuresByReason[c.Reason]++
		report.ClosedNotional = report.ClosedNotional.Add(c.Quantity.Mul(c.Price))
	}
	return report
}

func (g *Generator) fetchPositions(ctx context.Context) ([]PositionRow, error) {
	query := `
        SELECT side, stop_status, retry_count, quantity, entry_price
        FROM positions
        WHERE is_open;
    `
	rows, err := g.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.Side, &p.StopStatus, &p.RetryCount, &p.Quantity, &p.EntryPrice); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (g *Generator) fetchClosures(ctx context.Context, since time.Time) ([]ClosureRow, error) {
	query := `
        SELECT reason, quantity, price, executed_at
        FROM closure_trades
        WHERE executed_at >= $1
        ORDER BY executed_at ASC;
    `
	rows, err := g.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closures []ClosureRow
	for rows.Next() {
		var c ClosureRow
		if err := rows.Scan(&c.Reason, &c.Quantity, &c.Price, &c.ExecutedAt); err != nil {
			return nil, err
		}
		closures = append(closures, c)
	}
	return closures, rows.Err()
}
