// Package audit records lifecycle events for operator review.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the guard services.
const (
	EventStopOrderCreated    = "stop_loss_order_created"
	EventStopOrderFailed     = "stop_loss_order_failed"
	EventTrailingUpdated     = "stop_loss_trailing_updated"
	EventPositionForceClosed = "position_force_closed"
	EventStopRetrySuccess    = "stop_loss_retry_success"
)

// Event is a single audit record.
type Event struct {
	ID     uuid.UUID `db:"id"`
	Time   time.Time `db:"time"`
	UserID string    `db:"user_id"`
	Symbol string    `db:"symbol"`
	Type   string    `db:"event_type"`
	Detail string    `db:"detail"`
}

// Recorder accepts audit events. Implementations must not block the caller.
type Recorder interface {
	Record(event Event)
	Close()
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(userID, symbol, eventType, detail string) Event {
	return Event{
		ID:     uuid.New(),
		Time:   time.Now().UTC(),
		UserID: userID,
		Symbol: symbol,
		Type:   eventType,
		Detail: detail,
	}
}
