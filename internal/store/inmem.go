package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemRepository is an in-memory implementation of Repository for testing.
type InMemRepository struct {
	mu               sync.RWMutex
	positions        map[int64]Position
	protectiveOrders map[int64]ProtectiveOrder
	closureTrades    []ClosureTrade
	nextOrderID      int64
}

// NewInMemRepository creates a new InMemRepository.
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		positions:        make(map[int64]Position),
		protectiveOrders: make(map[int64]ProtectiveOrder),
		nextOrderID:      1,
	}
}

var _ Repository = (*InMemRepository)(nil)

// SeedPositions allows adding positions for test setup.
func (r *InMemRepository) SeedPositions(positions []Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range positions {
		r.positions[p.ID] = p
	}
}

// ClosureTrades returns a copy of the recorded closure trades.
func (r *InMemRepository) ClosureTrades() []ClosureTrade {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClosureTrade, len(r.closureTrades))
	copy(out, r.closureTrades)
	return out
}

// ProtectiveOrders returns a copy of all protective order records.
func (r *InMemRepository) ProtectiveOrders() []ProtectiveOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProtectiveOrder, 0, len(r.protectiveOrders))
	for _, o := range r.protectiveOrders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *InMemRepository) OpenPositions(ctx context.Context) ([]Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Position
	for _, p := range r.positions {
		if p.IsOpen {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.Before(result[j].OpenedAt) })
	return result, nil
}

func (r *InMemRepository) UnprotectedPositions(ctx context.Context) ([]Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Position
	for _, p := range r.positions {
		if p.IsOpen && (p.StopStatus == StopStatusNone || p.StopStatus == StopStatusFailed) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OpenedAt.Before(result[j].OpenedAt) })
	return result, nil
}

func (r *InMemRepository) PositionFor(ctx context.Context, id int64) (*Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *InMemRepository) UpdateStopOrder(ctx context.Context, positionID int64, exchangeOrderID, clientOrderID string, stopPrice float64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	p.StopOrderID = exchangeOrderID
	p.StopClientOrderID = clientOrderID
	p.StopPrice = stopPrice
	p.StopStatus = status
	p.LastStopAttemptAt = &now
	r.positions[positionID] = p
	return nil
}

func (r *InMemRepository) MarkStopFailed(ctx context.Context, positionID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	p.StopStatus = StopStatusFailed
	p.LastStopAttemptAt = &at
	r.positions[positionID] = p
	return nil
}

func (r *InMemRepository) ClearStopOrder(ctx context.Context, positionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	p.StopOrderID = ""
	p.StopClientOrderID = ""
	p.StopPrice = 0
	p.StopStatus = StopStatusNone
	p.LastStopAttemptAt = nil
	r.positions[positionID] = p
	return nil
}

func (r *InMemRepository) IncrementStopRetry(ctx context.Context, positionID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	p.RetryCount++
	p.LastStopAttemptAt = &at
	r.positions[positionID] = p
	return nil
}

func (r *InMemRepository) ClosePosition(ctx context.Context, positionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[positionID]
	if !ok {
		return ErrNotFound
	}
	p.IsOpen = false
	r.positions[positionID] = p
	return nil
}

func (r *InMemRepository) CreateProtectiveOrder(ctx context.Context, order *ProtectiveOrder) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextOrderID
	r.nextOrderID++

	o := *order
	o.ID = id
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = o.CreatedAt
	r.protectiveOrders[id] = o
	return id, nil
}

func (r *InMemRepository) UpdateProtectiveOrderStatus(ctx context.Context, id int64, status, exchangeOrderID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.protectiveOrders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.ExchangeOrderID = exchangeOrderID
	o.Reason = reason
	o.UpdatedAt = time.Now()
	r.protectiveOrders[id] = o
	return nil
}

func (r *InMemRepository) RecentProtectiveOrders(ctx context.Context, positionID int64, since time.Time) ([]ProtectiveOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ProtectiveOrder
	for _, o := range r.protectiveOrders {
		if o.PositionID == positionID && !o.CreatedAt.Before(since) {
			result = append(result, o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemRepository) RecordClosureTrade(ctx context.Context, trade *ClosureTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := *trade
	t.ID = int64(len(r.closureTrades) + 1)
	r.closureTrades = append(r.closureTrades, t)
	return nil
}
