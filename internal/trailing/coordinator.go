// Package trailing moves protective stops, refusing any update that would
// weaken the protection already in place.
package trailing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/your-org/stop-guard-bot/internal/audit"
	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/internal/exchange"
	"github.com/your-org/stop-guard-bot/internal/placement"
	"github.com/your-org/stop-guard-bot/internal/position"
	"github.com/your-org/stop-guard-bot/internal/store"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

// Rejection reasons returned in Result.Reason.
const (
	ReasonPositionNotFound  = "position_not_found"
	ReasonNotAnImprovement  = "not_an_improvement"
	ReasonTooCloseToMarket  = "too_close_to_market"
	ReasonWrongSideOfMarket = "stop_on_wrong_side_of_market"
)

// UpdateRequest asks for the position's stop to move to NewStop. MarketPrice
// is optional; the current ticker is used when zero.
type UpdateRequest struct {
	PositionID  int64
	NewStop     float64
	MarketPrice float64
}

// Result reports the outcome of an update request. Reason is set when the
// update was refused by a safety gate.
type Result struct {
	Success bool
	Reason  string
	Order   *exchange.Order
}

// Placer places protective orders.
type Placer interface {
	Place(ctx context.Context, intent placement.Intent) (*placement.Result, error)
}

// Coordinator validates and executes trailing stop updates.
type Coordinator struct {
	repo   store.Repository
	exch   exchange.Gateway
	placer Placer
	audit  audit.Recorder
	cfg    config.GuardConfig
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(repo store.Repository, exch exchange.Gateway, placer Placer, recorder audit.Recorder, cfg config.GuardConfig) *Coordinator {
	return &Coordinator{
		repo:   repo,
		exch:   exch,
		placer: placer,
		audit:  recorder,
		cfg:    cfg,
	}
}

// SafeUpdate moves the position's stop to req.NewStop if every gate passes:
// the position is open, the new stop strictly improves on the current one,
// it keeps a minimum distance from the market, and it sits on the correct
// side of the market for the position's direction. A refused update returns
// a Result with the reason and no error; errors are reserved for the
// cancel/replace pipeline itself.
func (c *Coordinator) SafeUpdate(ctx context.Context, req UpdateRequest) (*Result, error) {
	pos, err := c.repo.PositionFor(ctx, req.PositionID)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Reason: ReasonPositionNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if !pos.IsOpen || pos.Quantity <= 0 {
		return &Result{Reason: ReasonPositionNotFound}, nil
	}

	if !improves(pos, req.NewStop) {
		return &Result{Reason: ReasonNotAnImprovement}, nil
	}

	market := req.MarketPrice
	if market <= 0 {
		market, err = c.exch.Ticker(ctx, pos.Symbol)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ticker for %s: %w", pos.Symbol, err)
		}
	}

	if !onCorrectSide(pos.Side, req.NewStop, market) {
		return &Result{Reason: ReasonWrongSideOfMarket}, nil
	}

	distancePct := math.Abs(market-req.NewStop) / market * 100
	if distancePct < c.cfg.MinDistancePct {
		return &Result{Reason: ReasonTooCloseToMarket}, nil
	}

	if pos.StopOrderID != "" {
		if err := c.cancelExisting(ctx, pos); err != nil {
			return nil, err
		}
		// The exchange stop is gone now. Persist that before placing the
		// replacement: if the placement fails, the position must read as
		// unprotected for the sweep, not as still covered by the old stop.
		if err := c.repo.ClearStopOrder(ctx, pos.ID); err != nil {
			return nil, fmt.Errorf("failed to clear cancelled stop on position %d: %w", pos.ID, err)
		}
	}

	res, err := c.placer.Place(ctx, placement.Intent{
		PositionID: pos.ID,
		UserID:     pos.UserID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		StopPrice:  req.NewStop,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place replacement stop: %w", err)
	}

	c.audit.Record(audit.NewEvent(pos.UserID, pos.Symbol, audit.EventTrailingUpdated,
		fmt.Sprintf("stop %.4f -> %.4f", pos.StopPrice, req.NewStop)))
	logger.Infof("Trailed stop for position %d from %.4f to %.4f", pos.ID, pos.StopPrice, req.NewStop)

	return &Result{Success: true, Order: res.Order}, nil
}

// improves reports whether newStop strictly tightens the protection. A
// position without a live stop is always improved.
func improves(pos *store.Position, newStop float64) bool {
	if pos.StopStatus != store.StopStatusOpen || pos.StopPrice <= 0 {
		return true
	}
	if pos.Side == position.SideLong {
		return newStop > pos.StopPrice
	}
	return newStop < pos.StopPrice
}

func onCorrectSide(side position.Side, stop, market float64) bool {
	if side == position.SideLong {
		return stop < market
	}
	return stop > market
}

// cancelExisting removes the current stop order, tolerating orders that are
// already gone from the exchange.
func (c *Coordinator) cancelExisting(ctx context.Context, pos *store.Position) error {
	orderID, err := strconv.ParseInt(pos.StopOrderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid stop order id %q on position %d: %w", pos.StopOrderID, pos.ID, err)
	}
	if err := c.exch.CancelOrder(ctx, pos.Symbol, orderID); err != nil {
		if errors.Is(err, exchange.ErrOrderNotFound) {
			logger.Warnf("Stop order %s for position %d already gone, continuing", pos.StopOrderID, pos.ID)
			return nil
		}
		return fmt.Errorf("failed to cancel stop order %s: %w", pos.StopOrderID, err)
	}
	return nil
}
