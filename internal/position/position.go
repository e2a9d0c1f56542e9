// Package position tracks the per-position state the stop calculators need:
// entry price, side, and the best price seen since entry.
package position

import (
	"fmt"
	"sync"
	"time"
)

// Side is the direction of an open position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Tracker holds the running state of one open position. The high and low
// watermarks start at the entry price and only ever move in the position's
// favor.
type Tracker struct {
	entryPrice float64
	side       Side
	openedAt   time.Time
	highWater  float64
	lowWater   float64
	lastPrice  float64
	mutex      sync.RWMutex
}

// NewTracker creates a tracker for a freshly opened position.
func NewTracker(entryPrice float64, side Side, openedAt time.Time) *Tracker {
	return &Tracker{
		entryPrice: entryPrice,
		side:       side,
		openedAt:   openedAt,
		highWater:  entryPrice,
		lowWater:   entryPrice,
		lastPrice:  entryPrice,
	}
}

// Observe records a traded price and advances the watermark for the
// position's side.
func (t *Tracker) Observe(price float64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.lastPrice = price
	if t.side == SideLong {
		if price > t.highWater {
			t.highWater = price
		}
	} else {
		if price < t.lowWater {
			t.lowWater = price
		}
	}
}

// Snapshot is a consistent copy of the tracker state.
type Snapshot struct {
	EntryPrice float64
	Side       Side
	OpenedAt   time.Time
	HighWater  float64
	LowWater   float64
	LastPrice  float64
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return Snapshot{
		EntryPrice: t.entryPrice,
		Side:       t.side,
		OpenedAt:   t.openedAt,
		HighWater:  t.highWater,
		LowWater:   t.lowWater,
		LastPrice:  t.lastPrice,
	}
}

// String returns a string representation of the tracker.
func (t *Tracker) String() string {
	s := t.Snapshot()
	return fmt.Sprintf("Tracker{Side: %s, Entry: %.2f, High: %.2f, Low: %.2f}", s.Side, s.EntryPrice, s.HighWater, s.LowWater)
}

// Book keeps trackers keyed by position and symbol so the price stream can fan
// out updates without knowing about individual positions.
type Book struct {
	mutex    sync.RWMutex
	trackers map[string]*Tracker
}

// NewBook creates an empty tracker book.
func NewBook() *Book {
	return &Book{trackers: make(map[string]*Tracker)}
}

func bookKey(positionID int64, symbol string) string {
	return fmt.Sprintf("%d/%s", positionID, symbol)
}

// Track registers a tracker for the given position, replacing any previous one.
func (b *Book) Track(positionID int64, symbol string, tr *Tracker) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.trackers[bookKey(positionID, symbol)] = tr
}

// Get returns the tracker for the position, or nil if none is registered.
func (b *Book) Get(positionID int64, symbol string) *Tracker {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.trackers[bookKey(positionID, symbol)]
}

// Drop removes the tracker for a closed position.
func (b *Book) Drop(positionID int64, symbol string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delete(b.trackers, bookKey(positionID, symbol))
}

// ObserveAll forwards a traded price to every tracker on the symbol.
func (b *Book) ObserveAll(symbol string, price float64) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	for key, tr := range b.trackers {
		if keySymbol(key) == symbol {
			tr.Observe(price)
		}
	}
}

func keySymbol(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}
