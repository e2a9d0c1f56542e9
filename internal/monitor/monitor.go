// Package monitor runs the periodic safety sweep over open positions,
// retrying failed stop orders and force closing positions that cannot be
// protected.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/your-org/stop-guard-bot/internal/alert"
	"github.com/your-org/stop-guard-bot/internal/audit"
	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/internal/exchange"
	"github.com/your-org/stop-guard-bot/internal/placement"
	"github.com/your-org/stop-guard-bot/internal/position"
	"github.com/your-org/stop-guard-bot/internal/retry"
	"github.com/your-org/stop-guard-bot/internal/store"
	"github.com/your-org/stop-guard-bot/pkg/logger"
)

// Placer places protective orders.
type Placer interface {
	Place(ctx context.Context, intent placement.Intent) (*placement.Result, error)
}

// Report summarizes one sweep.
type Report struct {
	Scanned          int
	Retried          int
	RetriesSucceeded int
	ForceClosed      int
	Errors           int
}

// Monitor scans open positions and restores their protection.
type Monitor struct {
	repo     store.Repository
	exch     exchange.Gateway
	placer   Placer
	audit    audit.Recorder
	notifier alert.Notifier
	cfg      config.GuardConfig
	policy   retry.Policy

	now   func() time.Time
	locks keyedMutex
}

// NewMonitor creates a Monitor.
func NewMonitor(repo store.Repository, exch exchange.Gateway, placer Placer, recorder audit.Recorder, notifier alert.Notifier, cfg config.GuardConfig) *Monitor {
	return &Monitor{
		repo:     repo,
		exch:     exch,
		placer:   placer,
		audit:    recorder,
		notifier: notifier,
		cfg:      cfg,
		policy:   retry.SafetySweepPolicy(cfg),
		now:      time.Now,
	}
}

// ScanAndProtect runs one sweep over all open positions. Positions are
// processed concurrently up to the configured worker count, serialized per
// user and symbol so concurrent sweeps never race on the same position.
func (m *Monitor) ScanAndProtect(ctx context.Context) Report {
	positions, err := m.repo.OpenPositions(ctx)
	if err != nil {
		logger.Errorf("Safety sweep could not list open positions: %v", err)
		return Report{Errors: 1}
	}

	report := Report{Scanned: len(positions)}
	workers := m.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for _, pos := range positions {
		wg.Add(1)
		sem <- struct{}{}
		go func(id int64, key string) {
			defer wg.Done()
			defer func() { <-sem }()

			unlock := m.locks.lock(key)
			defer unlock()

			outcome, err := m.process(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				logger.Errorf("Safety sweep failed for position %d: %v", id, err)
				return
			}
			switch outcome {
			case outcomeRetried:
				report.Retried++
			case outcomeRetrySucceeded:
				report.Retried++
				report.RetriesSucceeded++
			case outcomeForceClosed:
				report.ForceClosed++
			}
		}(pos.ID, pos.UserID+"|"+pos.Symbol)
	}
	wg.Wait()

	logger.Infof("Safety sweep done: scanned=%d retried=%d succeeded=%d forceClosed=%d errors=%d",
		report.Scanned, report.Retried, report.RetriesSucceeded, report.ForceClosed, report.Errors)
	return report
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeRetried
	outcomeRetrySucceeded
	outcomeForceClosed
)

// process re-fetches the position inside the per-position lock so a sweep
// running concurrently with another cannot act on stale state.
func (m *Monitor) process(ctx context.Context, positionID int64) (outcome, error) {
	pos, err := m.repo.PositionFor(ctx, positionID)
	if errors.Is(err, store.ErrNotFound) {
		return outcomeNone, nil
	}
	if err != nil {
		return outcomeNone, err
	}
	if !pos.IsOpen {
		return outcomeNone, nil
	}
	if pos.StopStatus == store.StopStatusOpen {
		return outcomeNone, nil
	}

	now := m.now()
	age := now.Sub(pos.OpenedAt)
	maxAge := time.Duration(m.cfg.ForceCloseHours * float64(time.Hour))

	switch {
	case m.policy.Exhausted(pos.RetryCount):
		return outcomeForceClosed, m.forceClose(ctx, pos, store.ClosureReasonRetriesExhausted)
	case age >= maxAge:
		return outcomeForceClosed, m.forceClose(ctx, pos, store.ClosureReasonMaxAge)
	}

	var lastAttempt time.Time
	if pos.LastStopAttemptAt != nil {
		lastAttempt = *pos.LastStopAttemptAt
	}
	if !m.policy.Due(pos.RetryCount+1, lastAttempt, now) {
		return outcomeNone, nil
	}

	return m.retryStop(ctx, pos)
}

// retryStop places a fresh stop a fixed percentage from the entry price. The
// retry counter advances whether or not the attempt succeeds, so a position
// that keeps failing eventually exhausts its budget.
func (m *Monitor) retryStop(ctx context.Context, pos *store.Position) (outcome, error) {
	stop := pos.EntryPrice * (1 - m.cfg.DefaultStopPct/100)
	if pos.Side == position.SideShort {
		stop = pos.EntryPrice * (1 + m.cfg.DefaultStopPct/100)
	}

	if err := m.repo.IncrementStopRetry(ctx, pos.ID, m.now()); err != nil {
		return outcomeNone, err
	}
	attempt := pos.RetryCount + 1

	_, err := m.placer.Place(ctx, placement.Intent{
		PositionID: pos.ID,
		UserID:     pos.UserID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		StopPrice:  stop,
	})
	if err != nil {
		logger.Warnf("Stop retry %d failed for position %d: %v", attempt, pos.ID, err)
		return outcomeRetried, nil
	}

	m.audit.Record(audit.NewEvent(pos.UserID, pos.Symbol, audit.EventStopRetrySuccess,
		fmt.Sprintf("attempt=%d stop=%.4f", attempt, stop)))
	logger.Infof("Stop retry %d succeeded for position %d at %.4f", attempt, pos.ID, stop)
	return outcomeRetrySucceeded, nil
}

// forceClose exits the position with a market order, records the closure and
// cleans up any stale stop order left on the exchange.
func (m *Monitor) forceClose(ctx context.Context, pos *store.Position, reason string) error {
	side := exchange.SideSell
	if pos.Side == position.SideShort {
		side = exchange.SideBuy
	}

	order, err := m.exch.PlaceMarketOrder(ctx, pos.Symbol, side, pos.Quantity)
	if err != nil {
		return fmt.Errorf("failed to force close position %d: %w", pos.ID, err)
	}

	if err := m.repo.RecordClosureTrade(ctx, &store.ClosureTrade{
		PositionID: pos.ID,
		UserID:     pos.UserID,
		Symbol:     pos.Symbol,
		Side:       string(side),
		Quantity:   pos.Quantity,
		Price:      order.ExecutedPrice,
		Reason:     reason,
		ExecutedAt: m.now(),
	}); err != nil {
		return err
	}
	if err := m.repo.ClosePosition(ctx, pos.ID); err != nil {
		return err
	}

	if pos.StopOrderID != "" {
		if orderID, parseErr := strconv.ParseInt(pos.StopOrderID, 10, 64); parseErr == nil {
			if err := m.exch.CancelOrder(ctx, pos.Symbol, orderID); err != nil && !errors.Is(err, exchange.ErrOrderNotFound) {
				logger.Warnf("Failed to cancel stale stop order %s for closed position %d: %v", pos.StopOrderID, pos.ID, err)
			}
		}
	}

	m.audit.Record(audit.NewEvent(pos.UserID, pos.Symbol, audit.EventPositionForceClosed,
		fmt.Sprintf("reason=%s price=%.4f qty=%.6f", reason, order.ExecutedPrice, pos.Quantity)))
	if err := m.notifier.Send(fmt.Sprintf("Force closed %s position %d (%s) at %.4f: %s",
		pos.Side, pos.ID, pos.Symbol, order.ExecutedPrice, reason)); err != nil {
		logger.Warnf("Failed to send force closure alert: %v", err)
	}
	logger.Warnf("Force closed position %d (%s): %s", pos.ID, pos.Symbol, reason)
	return nil
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
