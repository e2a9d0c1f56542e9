package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/stop-guard-bot/internal/alert"
	"github.com/your-org/stop-guard-bot/internal/audit"
	"github.com/your-org/stop-guard-bot/internal/config"
	"github.com/your-org/stop-guard-bot/internal/exchange"
	"github.com/your-org/stop-guard-bot/internal/placement"
	"github.com/your-org/stop-guard-bot/internal/position"
	"github.com/your-org/stop-guard-bot/internal/store"
)

type fakePlacer struct {
	mu      sync.Mutex
	intents []placement.Intent
	err     error
}

func (f *fakePlacer) Place(ctx context.Context, intent placement.Intent) (*placement.Result, error) {
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &placement.Result{Order: &exchange.Order{ID: 900, StopPrice: intent.StopPrice}}, nil
}

func (f *fakePlacer) placed() []placement.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]placement.Intent, len(f.intents))
	copy(out, f.intents)
	return out
}

type marketExchange struct {
	mu           sync.Mutex
	marketOrders []string
	cancels      []int64
	marketErr    error
}

func (f *marketExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *marketExchange) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.Side, quantity float64) (*exchange.Order, error) {
	f.mu.Lock()
	f.marketOrders = append(f.marketOrders, symbol+"/"+string(side))
	f.mu.Unlock()
	if f.marketErr != nil {
		return nil, f.marketErr
	}
	return &exchange.Order{ID: 800, Symbol: symbol, Side: side, Quantity: quantity, Status: exchange.StatusFilled, ExecutedPrice: 46000}, nil
}

func (f *marketExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	f.mu.Lock()
	f.cancels = append(f.cancels, orderID)
	f.mu.Unlock()
	return nil
}

func (f *marketExchange) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	return nil, nil
}

func (f *marketExchange) RecentOrders(ctx context.Context, symbol string, since time.Time) ([]exchange.Order, error) {
	return nil, nil
}

func (f *marketExchange) Ticker(ctx context.Context, symbol string) (float64, error) {
	return 0, errors.New("not implemented")
}

func guardConfig() config.GuardConfig {
	return config.GuardConfig{
		MinDistancePct:       0.5,
		ForceCloseHours:      4,
		RetryIntervalMinutes: 15,
		MaxRetryAttempts:     20,
		DefaultStopPct:       2.0,
		Workers:              5,
	}
}

func newMonitor(repo *store.InMemRepository, exch *marketExchange, placer *fakePlacer) (*Monitor, *audit.InMemRecorder) {
	rec := audit.NewInMemRecorder()
	m := NewMonitor(repo, exch, placer, rec, alert.NewNoOpNotifier(), guardConfig())
	return m, rec
}

func unprotected(id int64, age time.Duration) store.Position {
	return store.Position{
		ID: id, UserID: "user-1", Symbol: "BTCUSDT", Side: position.SideLong,
		Quantity: 0.5, EntryPrice: 50000, OpenedAt: time.Now().Add(-age), IsOpen: true,
		StopStatus: store.StopStatusFailed,
	}
}

func TestScanAndProtect_RetriesUnprotectedPosition(t *testing.T) {
	repo := store.NewInMemRepository()
	repo.SeedPositions([]store.Position{unprotected(1, time.Hour)})
	exch := &marketExchange{}
	placer := &fakePlacer{}
	m, rec := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Retried)
	assert.Equal(t, 1, report.RetriesSucceeded)
	assert.Zero(t, report.ForceClosed)

	intents := placer.placed()
	require.Len(t, intents, 1)
	assert.InDelta(t, 50000*0.98, intents[0].StopPrice, 1e-6, "retry stop sits 2%% below the entry")

	pos, err := repo.PositionFor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos.RetryCount)

	events := rec.EventsOfType(audit.EventStopRetrySuccess)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Detail, "attempt=1")
}

func TestScanAndProtect_SkipsProtectedAndNotDuePositions(t *testing.T) {
	repo := store.NewInMemRepository()
	protected := unprotected(1, time.Hour)
	protected.StopStatus = store.StopStatusOpen
	recent := unprotected(2, time.Hour)
	fiveMinAgo := time.Now().Add(-5 * time.Minute)
	recent.LastStopAttemptAt = &fiveMinAgo
	repo.SeedPositions([]store.Position{protected, recent})
	exch := &marketExchange{}
	placer := &fakePlacer{}
	m, _ := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Equal(t, 2, report.Scanned)
	assert.Zero(t, report.Retried)
	assert.Empty(t, placer.placed())
}

func TestScanAndProtect_ForceClosesOldPosition(t *testing.T) {
	repo := store.NewInMemRepository()
	old := unprotected(1, 5*time.Hour)
	old.StopOrderID = "321"
	repo.SeedPositions([]store.Position{old})
	exch := &marketExchange{}
	placer := &fakePlacer{}
	m, rec := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Equal(t, 1, report.ForceClosed)
	assert.Zero(t, report.Retried)

	assert.Equal(t, []string{"BTCUSDT/sell"}, exch.marketOrders, "a long is closed by selling")
	assert.Equal(t, []int64{321}, exch.cancels, "the stale stop is cleaned up")

	pos, err := repo.PositionFor(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, pos.IsOpen)

	trades := repo.ClosureTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, store.ClosureReasonMaxAge, trades[0].Reason)
	assert.Equal(t, 46000.0, trades[0].Price, "closure records the market order's executed price")

	assert.Len(t, rec.EventsOfType(audit.EventPositionForceClosed), 1)
}

func TestScanAndProtect_ForceClosesAfterRetriesExhausted(t *testing.T) {
	repo := store.NewInMemRepository()
	exhausted := unprotected(1, time.Hour)
	exhausted.RetryCount = 20
	repo.SeedPositions([]store.Position{exhausted})
	exch := &marketExchange{}
	placer := &fakePlacer{}
	m, _ := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Equal(t, 1, report.ForceClosed)

	trades := repo.ClosureTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, store.ClosureReasonRetriesExhausted, trades[0].Reason)
}

func TestScanAndProtect_YoungPositionIsNeverForceClosed(t *testing.T) {
	repo := store.NewInMemRepository()
	repo.SeedPositions([]store.Position{unprotected(1, 3*time.Hour)})
	exch := &marketExchange{}
	placer := &fakePlacer{}
	m, _ := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Zero(t, report.ForceClosed)
	assert.Empty(t, exch.marketOrders)
}

func TestScanAndProtect_FailedRetryStillAdvancesCounter(t *testing.T) {
	repo := store.NewInMemRepository()
	repo.SeedPositions([]store.Position{unprotected(1, time.Hour)})
	exch := &marketExchange{}
	placer := &fakePlacer{err: errors.New("exchange down")}
	m, rec := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Equal(t, 1, report.Retried)
	assert.Zero(t, report.RetriesSucceeded)

	pos, err := repo.PositionFor(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pos.RetryCount, "failed attempts count against the budget")
	assert.Empty(t, rec.EventsOfType(audit.EventStopRetrySuccess))
}

func TestScanAndProtect_SecondSweepIsIdempotent(t *testing.T) {
	repo := store.NewInMemRepository()
	repo.SeedPositions([]store.Position{unprotected(1, 5*time.Hour)})
	exch := &marketExchange{}
	placer := &fakePlacer{}
	m, _ := newMonitor(repo, exch, placer)

	first := m.ScanAndProtect(context.Background())
	assert.Equal(t, 1, first.ForceClosed)

	second := m.ScanAndProtect(context.Background())
	assert.Zero(t, second.Scanned, "the closed position is no longer scanned")
	assert.Len(t, exch.marketOrders, 1, "the position is only closed once")
}

func TestScanAndProtect_OneFailureDoesNotStopTheSweep(t *testing.T) {
	repo := store.NewInMemRepository()
	broken := unprotected(1, 5*time.Hour)
	healthy := unprotected(2, time.Hour)
	healthy.UserID = "user-2"
	repo.SeedPositions([]store.Position{broken, healthy})
	exch := &marketExchange{marketErr: errors.New("market order rejected")}
	placer := &fakePlacer{}
	m, _ := newMonitor(repo, exch, placer)

	report := m.ScanAndProtect(context.Background())
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Errors, "the failed force closure is reported")
	assert.Equal(t, 1, report.Retried, "the other position is still protected")
}
