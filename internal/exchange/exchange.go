// Package exchange defines the venue-independent order gateway used by the
// placement and safety layers. Concrete clients live in subpackages.
package exchange

import (
	"context"
	"errors"
	"time"
)

// Side is the taker side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order statuses as normalized by gateway implementations.
const (
	StatusOpen     = "open"
	StatusFilled   = "filled"
	StatusCanceled = "canceled"
	StatusRejected = "rejected"
)

// Sentinel errors mapped from venue error codes. Callers branch on these
// with errors.Is.
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrUnsupportedOrderType = errors.New("unsupported order type")
	ErrInsufficientBalance  = errors.New("insufficient balance")
)

// Order is a normalized exchange order.
type Order struct {
	ID            int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          string
	Quantity      float64
	Price         float64
	StopPrice     float64
	Status        string
	ExecutedPrice float64
	CreatedAt     time.Time
}

// OrderRequest describes a protective stop-limit order to be placed.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          string
	Quantity      float64
	Price         float64 // limit price
	StopPrice     float64
	ClientOrderID string
}

// Gateway is the set of venue operations the engine depends on.
type Gateway interface {
	// PlaceOrder submits a stop-limit order. The request's Type is passed
	// through verbatim so callers can probe the venue's accepted spelling.
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// PlaceMarketOrder submits an immediate market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64) (*Order, error)
	// CancelOrder cancels an order. Returns ErrOrderNotFound if the venue no
	// longer knows the order.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	// OpenOrders lists currently open orders for the symbol.
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	// RecentOrders lists orders created at or after since, open or not.
	RecentOrders(ctx context.Context, symbol string, since time.Time) ([]Order, error)
	// Ticker returns the last traded price for the symbol.
	Ticker(ctx context.Context, symbol string) (float64, error)
}
