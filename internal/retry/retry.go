// Package retry defines the pacing policies for repeated stop order
// placement attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/stop-guard-bot/internal/config"
)

// ErrAbort wraps errors that must not be retried.
var ErrAbort = errors.New("retry: aborted")

// Abort marks err as permanent so the scheduler stops immediately.
func Abort(err error) error {
	return fmt.Errorf("%w: %w", ErrAbort, err)
}

// Policy describes how attempts are paced. Attempts are 1-based: the first
// FastAttempts retries wait FastInterval, later ones wait LaterInterval.
type Policy struct {
	Name          string
	MaxAttempts   int
	FastAttempts  int
	FastInterval  time.Duration
	LaterInterval time.Duration
}

// TradeEntryPolicy paces the aggressive retries right after a trade entry.
func TradeEntryPolicy(cfg config.RetryConfig) Policy {
	return Policy{
		Name:          "trade_entry",
		MaxAttempts:   cfg.MaxAttempts,
		FastAttempts:  cfg.FastAttempts,
		FastInterval:  time.Duration(cfg.FastIntervalSeconds) * time.Second,
		LaterInterval: time.Duration(cfg.LaterIntervalSeconds) * time.Second,
	}
}

// SafetySweepPolicy paces the slow background retries run by the safety
// monitor.
func SafetySweepPolicy(cfg config.GuardConfig) Policy {
	interval := time.Duration(cfg.RetryIntervalMinutes) * time.Minute
	return Policy{
		Name:          "safety_sweep",
		MaxAttempts:   cfg.MaxRetryAttempts,
		LaterInterval: interval,
	}
}

// Interval returns the wait after the given 1-based attempt.
func (p Policy) Interval(attempt int) time.Duration {
	if attempt <= p.FastAttempts {
		return p.FastInterval
	}
	return p.LaterInterval
}

// Exhausted reports whether the attempt budget is spent.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// Due reports whether enough time has passed since the last attempt for the
// next one. A zero lastAttempt is always due.
func (p Policy) Due(attempt int, lastAttempt, now time.Time) bool {
	if lastAttempt.IsZero() {
		return true
	}
	return now.Sub(lastAttempt) >= p.Interval(attempt)
}

// Scheduler runs an operation under a Policy. It serves the synchronous
// trade-entry flow, which paces its first placement attempts with
// TradeEntryPolicy; the safety monitor paces itself with Due/Exhausted
// instead of blocking in Run.
type Scheduler struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler for the given policy.
func NewScheduler(policy Policy) *Scheduler {
	return &Scheduler{
		policy: policy,
		sleep:  sleepContext,
	}
}

// Run invokes op until it succeeds, returns a permanent error, the attempt
// budget is spent, or the context is canceled. The attempt number passed to
// op is 1-based.
func (s *Scheduler) Run(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrAbort) {
			return lastErr
		}
		if attempt == s.policy.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, s.policy.Interval(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s retries exhausted after %d attempts: %w", s.policy.Name, s.policy.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
