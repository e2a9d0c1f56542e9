// Package placement places protective stop orders exactly once, surviving
// exchange quirks around order types and request timeouts.
package placement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/stop-guard-bot/internal/audit"
	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/internal/exchange"
	"github.com/your-org/stop-guard-bot/internal/position"
	"github.com/your-org/stop-guard-bot/internal/retry"
	"github.com/your-org/stop-guard-bot/internal/store"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

// stopOrderTypes is the ladder of venue spellings tried in order until one is
// accepted.
var stopOrderTypes = []string{
	"STOP_LOSS_LIMIT",
	"stop_loss_limit",
	"STOP",
	"stop-limit",
	"stopLimit",
}

// matchTolerance is the price and quantity tolerance used when matching an
// existing order against an intent.
var matchTolerance = decimal.NewFromFloat(1e-4)

// Offsets applied to the stop price to derive the limit price, so the limit
// order still fills after the stop triggers.
const (
	sellLimitOffset = 0.999
	buyLimitOffset  = 1.001
)

// Intent describes the protective order to place.
type Intent struct {
	PositionID int64
	UserID     string
	Symbol     string
	Side       position.Side
	Quantity   float64
	StopPrice  float64
}

// orderSide is the exchange side of the protective order, opposite the
// position.
func (i Intent) orderSide() exchange.Side {
	if i.Side == position.SideLong {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func (i Intent) limitPrice() float64 {
	if i.orderSide() == exchange.SideSell {
		return i.StopPrice * sellLimitOffset
	}
	return i.StopPrice * buyLimitOffset
}

// Result is the outcome of a successful placement.
type Result struct {
	Order         *exchange.Order
	ClientOrderID string
	// Adopted is true when an already existing order was matched instead of
	// a new one placed.
	Adopted bool
}

// AmbiguousTimeoutError is returned when a placement attempt timed out and
// reconciliation could not prove whether the order exists on the exchange.
type AmbiguousTimeoutError struct {
	ClientOrderID string
}

func (e *AmbiguousTimeoutError) Error() string {
	return fmt.Sprintf("stop order placement timed out and could not be reconciled (client order id %s)", e.ClientOrderID)
}

// Gateway places stop orders idempotently.
type Gateway struct {
	exch  exchange.Gateway
	repo  store.Repository
	audit audit.Recorder
	cfg   config.PlacementConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a placement Gateway.
func NewGateway(exch exchange.Gateway, repo store.Repository, recorder audit.Recorder, cfg config.PlacementConfig) *Gateway {
	return &Gateway{
		exch:  exch,
		repo:  repo,
		audit: recorder,
		cfg:   cfg,
		now:   time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Place puts a protective stop order on the exchange. It first looks for an
// equivalent existing order and adopts it, then tries each known stop order
// type spelling. The attempt record is persisted before any network call so
// a crash never loses track of an in-flight order.
func (g *Gateway) Place(ctx context.Context, intent Intent) (*Result, error) {
	if existing, err := g.findExisting(ctx, intent, ""); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Infof("Adopting existing stop order %d for position %d (stop=%.4f)", existing.ID, intent.PositionID, existing.StopPrice)
		return g.adopt(ctx, intent, 0, existing)
	}

	clientOrderID := fmt.Sprintf("SL_%s_%s_%d", intent.UserID, intent.Symbol, g.now().UnixMilli())

	record := &store.ProtectiveOrder{
		PositionID:    intent.PositionID,
		UserID:        intent.UserID,
		Symbol:        intent.Symbol,
		ClientOrderID: clientOrderID,
		Side:          string(intent.orderSide()),
		Quantity:      intent.Quantity,
		StopPrice:     intent.StopPrice,
		LimitPrice:    intent.limitPrice(),
		Status:        store.StopStatusPending,
	}
	recordID, err := g.repo.CreateProtectiveOrder(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to persist pending stop order: %w", err)
	}

	timedOut := false
	for _, orderType := range stopOrderTypes {
		order, err := g.placeAttempt(ctx, intent, clientOrderID, orderType)
		if err == nil {
			return g.confirm(ctx, intent, recordID, clientOrderID, order, false)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warnf("Stop order attempt timed out for position %d (type %s)", intent.PositionID, orderType)
			timedOut = true
			break
		}
		if errors.Is(err, exchange.ErrUnsupportedOrderType) {
			logger.Infof("Order type %s not supported, trying next spelling", orderType)
			continue
		}
		reason := err.Error()
		g.markFailed(ctx, intent, recordID, reason)
		return nil, retry.Abort(fmt.Errorf("stop order rejected: %w", err))
	}

	if timedOut {
		return g.reconcileTimeout(ctx, intent, recordID, clientOrderID)
	}

	g.markFailed(ctx, intent, recordID, "no supported stop order type")
	return nil, fmt.Errorf("no supported stop order type for %s: %w", intent.Symbol, exchange.ErrUnsupportedOrderType)
}

func (g *Gateway) placeAttempt(ctx context.Context, intent Intent, clientOrderID, orderType string) (*exchange.Order, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(g.cfg.AttemptTimeoutSeconds)*time.Second)
	defer cancel()

	return g.exch.PlaceOrder(attemptCtx, exchange.OrderRequest{
		Symbol:        intent.Symbol,
		Side:          intent.orderSide(),
		Type:          orderType,
		Quantity:      intent.Quantity,
		Price:         intent.limitPrice(),
		StopPrice:     intent.StopPrice,
		ClientOrderID: clientOrderID,
	})
}

// reconcileTimeout waits briefly, then checks whether the timed-out request
// actually reached the exchange. An order matched by client id or by
// stop/quantity is adopted; otherwise the ambiguity is surfaced to the
// caller.
func (g *Gateway) reconcileTimeout(ctx context.Context, intent Intent, recordID int64, clientOrderID string) (*Result, error) {
	if err := g.sleep(ctx, time.Duration(g.cfg.ReconcileDelaySeconds)*time.Second); err != nil {
		return nil, err
	}

	existing, err := g.findExisting(ctx, intent, clientOrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Infof("Timed-out stop order for position %d was placed after all, adopting order %d", intent.PositionID, existing.ID)
		return g.adopt(ctx, intent, recordID, existing)
	}

	g.markFailed(ctx, intent, recordID, "placement timed out, order not found on exchange")
	return nil, &AmbiguousTimeoutError{ClientOrderID: clientOrderID}
}

// findExisting scans open and recent orders for one equivalent to the
// intent. An order matches on the exact client id, or on being a stop order
// whose stop price and quantity are within tolerance.
func (g *Gateway) findExisting(ctx context.Context, intent Intent, clientOrderID string) (*exchange.Order, error) {
	open, err := g.exch.OpenOrders(ctx, intent.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open orders: %w", err)
	}
	since := g.now().Add(-time.Duration(g.cfg.DedupWindowMinutes) * time.Minute)
	recent, err := g.exch.RecentOrders(ctx, intent.Symbol, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent orders: %w", err)
	}

	for _, o := range append(open, recent...) {
		if clientOrderID != "" && o.ClientOrderID == clientOrderID {
			order := o
			return &order, nil
		}
		if g.matches(intent, o) {
			order := o
			return &order, nil
		}
	}
	return nil, nil
}

func (g *Gateway) matches(intent Intent, o exchange.Order) bool {
	if !isStopType(o.Type) {
		return false
	}
	if o.Status != exchange.StatusOpen && o.Status != exchange.StatusFilled {
		return false
	}
	if o.Side != intent.orderSide() {
		return false
	}
	stopDiff := decimal.NewFromFloat(o.StopPrice).Sub(decimal.NewFromFloat(intent.StopPrice)).Abs()
	qtyDiff := decimal.NewFromFloat(o.Quantity).Sub(decimal.NewFromFloat(intent.Quantity)).Abs()
	return stopDiff.LessThan(matchTolerance) && qtyDiff.LessThan(matchTolerance)
}

func isStopType(orderType string) bool {
	for _, t := range stopOrderTypes {
		if strings.EqualFold(orderType, t) {
			return true
		}
	}
	return false
}

// adopt records an already existing exchange order as this position's stop.
// recordID is zero when the match happened before a pending record was
// created; a record is backfilled then so every protection intent has one.
func (g *Gateway) adopt(ctx context.Context, intent Intent, recordID int64, order *exchange.Order) (*Result, error) {
	if recordID == 0 {
		record := &store.ProtectiveOrder{
			PositionID:      intent.PositionID,
			UserID:          intent.UserID,
			Symbol:          intent.Symbol,
			ClientOrderID:   order.ClientOrderID,
			ExchangeOrderID: formatOrderID(order.ID),
			Side:            string(intent.orderSide()),
			Quantity:        order.Quantity,
			StopPrice:       order.StopPrice,
			LimitPrice:      order.Price,
			Status:          store.StopStatusOpen,
		}
		if _, err := g.repo.CreateProtectiveOrder(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record adopted stop order: %w", err)
		}
	} else {
		if err := g.repo.UpdateProtectiveOrderStatus(ctx, recordID, store.StopStatusOpen, formatOrderID(order.ID), ""); err != nil {
			return nil, err
		}
	}
	if err := g.repo.UpdateStopOrder(ctx, intent.PositionID, formatOrderID(order.ID), order.ClientOrderID, intent.StopPrice, store.StopStatusOpen); err != nil {
		return nil, err
	}
	g.audit.Record(audit.NewEvent(intent.UserID, intent.Symbol, audit.EventStopOrderCreated,
		fmt.Sprintf("adopted existing order %d stop=%.4f qty=%.6f", order.ID, order.StopPrice, order.Quantity)))
	return &Result{Order: order, ClientOrderID: order.ClientOrderID, Adopted: true}, nil
}

func (g *Gateway) confirm(ctx context.Context, intent Intent, recordID int64, clientOrderID string, order *exchange.Order, adopted bool) (*Result, error) {
	if err := g.repo.UpdateProtectiveOrderStatus(ctx, recordID, store.StopStatusOpen, formatOrderID(order.ID), ""); err != nil {
		return nil, err
	}
	if err := g.repo.UpdateStopOrder(ctx, intent.PositionID, formatOrderID(order.ID), clientOrderID, intent.StopPrice, store.StopStatusOpen); err != nil {
		return nil, err
	}
	g.audit.Record(audit.NewEvent(intent.UserID, intent.Symbol, audit.EventStopOrderCreated,
		fmt.Sprintf("order %d stop=%.4f qty=%.6f", order.ID, intent.StopPrice, intent.Quantity)))
	logger.Infof("Placed stop order %d for position %d at %.4f", order.ID, intent.PositionID, intent.StopPrice)
	return &Result{Order: order, ClientOrderID: clientOrderID, Adopted: adopted}, nil
}

func (g *Gateway) markFailed(ctx context.Context, intent Intent, recordID int64, reason string) {
	if err := g.repo.UpdateProtectiveOrderStatus(ctx, recordID, store.StopStatusRejected, "", reason); err != nil {
		logger.Errorf("Failed to mark protective order %d rejected: %v", recordID, err)
	}
	if err := g.repo.MarkStopFailed(ctx, intent.PositionID, g.now()); err != nil {
		logger.Errorf("Failed to mark stop failed for position %d: %v", intent.PositionID, err)
	}
	g.audit.Record(audit.NewEvent(intent.UserID, intent.Symbol, audit.EventStopOrderFailed, reason))
}

func formatOrderID(id int64) string {
	return fmt.Sprintf("%d", id)
}
