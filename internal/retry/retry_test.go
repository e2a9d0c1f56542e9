package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/stop-guard-bot/internal/config"
)

func TestPolicy_Intervals(t *testing.T) {
	entry := TradeEntryPolicy(config.RetryConfig{
		MaxAttempts:          5,
		FastAttempts:         3,
		FastIntervalSeconds:  100,
		LaterIntervalSeconds: 150,
	})

	assert.Equal(t, 100*time.Second, entry.Interval(1))
	assert.Equal(t, 100*time.Second, entry.Interval(3))
	assert.Equal(t, 150*time.Second, entry.Interval(4))
	assert.False(t, entry.Exhausted(4))
	assert.True(t, entry.Exhausted(5))

	sweep := SafetySweepPolicy(config.GuardConfig{RetryIntervalMinutes: 15, MaxRetryAttempts: 20})
	assert.Equal(t, 15*time.Minute, sweep.Interval(1))
	assert.Equal(t, 15*time.Minute, sweep.Interval(19))
	assert.True(t, sweep.Exhausted(20))
}

func TestPolicy_Due(t *testing.T) {
	sweep := SafetySweepPolicy(config.GuardConfig{RetryIntervalMinutes: 15, MaxRetryAttempts: 20})
	now := time.Now()

	assert.True(t, sweep.Due(1, time.Time{}, now), "a position never attempted is always due")
	assert.False(t, sweep.Due(1, now.Add(-5*time.Minute), now))
	assert.True(t, sweep.Due(1, now.Add(-16*time.Minute), now))
}

func TestScheduler_RunStopsOnSuccess(t *testing.T) {
	s := NewScheduler(Policy{Name: "test", MaxAttempts: 5, LaterInterval: time.Second})
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	err := s.Run(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, slept, 2, "no sleep after the final successful attempt")
}

func TestScheduler_RunExhaustsBudget(t *testing.T) {
	s := NewScheduler(Policy{Name: "test", MaxAttempts: 3, FastAttempts: 2, FastInterval: time.Second, LaterInterval: 2 * time.Second})
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	err := s.Run(context.Background(), func(ctx context.Context, attempt int) error {
		return errors.New("still failing")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted after 3 attempts")
	assert.Equal(t, []time.Duration{time.Second, time.Second}, slept)
}

func TestScheduler_RunAbortsOnPermanentError(t *testing.T) {
	s := NewScheduler(Policy{Name: "test", MaxAttempts: 5, LaterInterval: time.Second})
	s.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatal("must not sleep after a permanent error")
		return nil
	}

	calls := 0
	err := s.Run(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return Abort(errors.New("bad request"))
	})
	assert.ErrorIs(t, err, ErrAbort)
	assert.Equal(t, 1, calls)
}

func TestScheduler_RunHonorsContext(t *testing.T) {
	s := NewScheduler(Policy{Name: "test", MaxAttempts: 5, LaterInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(ctx context.Context, attempt int) error {
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
