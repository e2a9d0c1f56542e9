// Package store persists positions, protective orders and closure trades.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/stop-guard-bot/internal/position"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Stop order lifecycle states carried on a position.
const (
	StopStatusNone     = ""
	StopStatusPending  = "pending"
	StopStatusOpen     = "open"
	StopStatusFailed   = "failed"
	StopStatusRejected = "rejected"
)

// Closure reasons recorded when a position is force closed.
const (
	ClosureReasonMaxAge           = "max_age_exceeded"
	ClosureReasonRetriesExhausted = "retries_exhausted"
)

// Position is an open or closed trading position under protection.
type Position struct {
	ID         int64
	UserID     string
	Symbol     string
	Side       position.Side
	Quantity   float64
	EntryPrice float64
	OpenedAt   time.Time
	IsOpen     bool

	StopOrderID       string
	StopClientOrderID string
	StopPrice         float64
	StopStatus        string
	RetryCount        int
	LastStopAttemptAt *time.Time
}

// ProtectiveOrder is the audit trail of every stop order attempt, persisted
// before the exchange call is made.
type ProtectiveOrder struct {
	ID              int64
	PositionID      int64
	UserID          string
	Symbol          string
	ClientOrderID   string
	ExchangeOrderID string
	Side            string
	Quantity        float64
	StopPrice       float64
	LimitPrice      float64
	Status          string
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ClosureTrade records a market order that force closed a position.
type ClosureTrade struct {
	ID         int64
	PositionID int64
	UserID     string
	Symbol     string
	Side       string
	Quantity   float64
	Price      float64
	Reason     string
	ExecutedAt time.Time
}

// Repository is the persistence boundary for the guard services.
type Repository interface {
	// OpenPositions returns every open position.
	OpenPositions(ctx context.Context) ([]Position, error)
	// UnprotectedPositions returns open positions whose stop order is
	// missing or failed.
	UnprotectedPositions(ctx context.Context) ([]Position, error)
	// PositionFor returns a single position by id.
	PositionFor(ctx context.Context, id int64) (*Position, error)

	// UpdateStopOrder records the current stop order attached to a position.
	UpdateStopOrder(ctx context.Context, positionID int64, exchangeOrderID, clientOrderID string, stopPrice float64, status string) error
	// MarkStopFailed flags the position's stop as failed and stamps the
	// attempt time.
	MarkStopFailed(ctx context.Context, positionID int64, at time.Time) error
	// ClearStopOrder detaches the stop order from the position, leaving it
	// visibly unprotected so the safety sweep re-protects it right away.
	ClearStopOrder(ctx context.Context, positionID int64) error
	// IncrementStopRetry bumps the retry counter and stamps the attempt time.
	IncrementStopRetry(ctx context.Context, positionID int64, at time.Time) error
	// ClosePosition marks the position closed.
	ClosePosition(ctx context.Context, positionID int64) error

	CreateProtectiveOrder(ctx context.Context, order *ProtectiveOrder) (int64, error)
	UpdateProtectiveOrderStatus(ctx context.Context, id int64, status, exchangeOrderID, reason string) error
	// RecentProtectiveOrders returns protective orders for the position
	// created after the given time, newest first.
	RecentProtectiveOrders(ctx context.Context, positionID int64, since time.Time) ([]ProtectiveOrder, error)

	RecordClosureTrade(ctx context.Context, trade *ClosureTrade) error
}
