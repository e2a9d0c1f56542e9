package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/stop-guard-bot/internal/position"
)

func seedOpenPosition(r *InMemRepository, id int64, stopStatus string) Position {
	p := Position{
		ID:         id,
		UserID:     "user-1",
		Symbol:     "BTCUSDT",
		Side:       position.SideLong,
		Quantity:   0.5,
		EntryPrice: 50000,
		OpenedAt:   time.Now().Add(-time.Hour),
		IsOpen:     true,
		StopStatus: stopStatus,
	}
	r.SeedPositions([]Position{p})
	return p
}

func TestInMemRepository_UnprotectedPositions(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()

	seedOpenPosition(repo, 1, StopStatusNone)
	seedOpenPosition(repo, 2, StopStatusFailed)
	seedOpenPosition(repo, 3, StopStatusOpen)
	closed := seedOpenPosition(repo, 4, StopStatusNone)
	require.NoError(t, repo.ClosePosition(ctx, closed.ID))

	got, err := repo.UnprotectedPositions(ctx)
	require.NoError(t, err)

	ids := make([]int64, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.ElementsMatch(t, []int64{1, 2}, ids)
}

func TestInMemRepository_StopOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	p := seedOpenPosition(repo, 1, StopStatusNone)

	require.NoError(t, repo.UpdateStopOrder(ctx, p.ID, "12345", "SL_user-1_BTCUSDT_1", 47500, StopStatusOpen))

	got, err := repo.PositionFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "12345", got.StopOrderID)
	assert.Equal(t, "SL_user-1_BTCUSDT_1", got.StopClientOrderID)
	assert.Equal(t, 47500.0, got.StopPrice)
	assert.Equal(t, StopStatusOpen, got.StopStatus)
	assert.NotNil(t, got.LastStopAttemptAt)

	now := time.Now()
	require.NoError(t, repo.MarkStopFailed(ctx, p.ID, now))
	require.NoError(t, repo.IncrementStopRetry(ctx, p.ID, now))

	got, err = repo.PositionFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StopStatusFailed, got.StopStatus)
	assert.Equal(t, 1, got.RetryCount)

	require.NoError(t, repo.ClearStopOrder(ctx, p.ID))
	got, err = repo.PositionFor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StopStatusNone, got.StopStatus)
	assert.Empty(t, got.StopOrderID)
	assert.Empty(t, got.StopClientOrderID)
	assert.Zero(t, got.StopPrice)
	assert.Nil(t, got.LastStopAttemptAt)
}

func TestInMemRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()

	_, err := repo.PositionFor(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.ClosePosition(ctx, 99), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateProtectiveOrderStatus(ctx, 99, StopStatusOpen, "", ""), ErrNotFound)
}

func TestInMemRepository_RecentProtectiveOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	p := seedOpenPosition(repo, 1, StopStatusNone)

	old := ProtectiveOrder{PositionID: p.ID, ClientOrderID: "old", Status: StopStatusOpen, CreatedAt: time.Now().Add(-time.Hour)}
	recent := ProtectiveOrder{PositionID: p.ID, ClientOrderID: "recent", Status: StopStatusPending, CreatedAt: time.Now()}

	_, err := repo.CreateProtectiveOrder(ctx, &old)
	require.NoError(t, err)
	recentID, err := repo.CreateProtectiveOrder(ctx, &recent)
	require.NoError(t, err)

	got, err := repo.RecentProtectiveOrders(ctx, p.ID, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, recentID, got[0].ID)
	assert.Equal(t, "recent", got[0].ClientOrderID)
}

func TestInMemRepository_RecordClosureTrade(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemRepository()
	p := seedOpenPosition(repo, 1, StopStatusFailed)

	trade := ClosureTrade{
		PositionID: p.ID,
		UserID:     p.UserID,
		Symbol:     p.Symbol,
		Side:       "sell",
		Quantity:   p.Quantity,
		Price:      48000,
		Reason:     ClosureReasonRetriesExhausted,
		ExecutedAt: time.Now(),
	}
	require.NoError(t, repo.RecordClosureTrade(ctx, &trade))

	got := repo.ClosureTrades()
	require.Len(t, got, 1)
	if diff := cmp.Diff(trade, got[0], cmpopts.IgnoreFields(ClosureTrade{}, "ID")); diff != "" {
		t.Errorf("recorded closure trade mismatch (-want +got):\n%s", diff)
	}
}
