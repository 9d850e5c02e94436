package broker

import (
	"context"
	"errors"
	"time"

	"github.com/dnldd/abletrend/shared"
)

var (
	// ErrTransient marks a failure worth retrying (timeouts, 5xx, rate limits).
	ErrTransient = errors.New("transient broker failure")
	// ErrRejected marks an order the broker refused permanently.
	ErrRejected = errors.New("order rejected")
	// ErrAlreadyRegistered marks a duplicate client order id, the original order most likely
	// went through.
	ErrAlreadyRegistered = errors.New("client order id already registered")
	// ErrUnknownOrder marks an order reference the broker does not know.
	ErrUnknownOrder = errors.New("unknown order")
)

// Order represents an order request.
type Order struct {
	// ClientID is the idempotency key of the order.
	ClientID  string
	Direction shared.Direction
	Size      int
	// Price is the stop trigger for stop orders, and the reference price the engine decided on
	// for market orders.
	Price float64
	Time  time.Time
}

// Fill represents an executed order.
type Fill struct {
	OrderID    string
	ClientID   string
	Direction  shared.Direction
	Size       int
	Price      float64
	Time       time.Time
	Commission float64
}

// Holding represents the broker's view of the account position.
type Holding struct {
	// Size is the signed position size, positive for longs.
	Size     int
	AvgPrice float64
}

// Flat checks whether the holding carries no position.
func (h *Holding) Flat() bool {
	return h.Size == 0
}

// Direction returns the direction of the holding.
func (h *Holding) Direction() shared.Direction {
	switch {
	case h.Size > 0:
		return shared.Long
	case h.Size < 0:
		return shared.Short
	default:
		return shared.NoDirection
	}
}

// Gateway defines the requirements for routing orders to a broker. Every call is network bound
// and fallible.
type Gateway interface {
	// Name identifies the gateway in logs.
	Name() string
	// PlaceMarketOrder executes a market order and returns its fill.
	PlaceMarketOrder(ctx context.Context, order Order) (*Fill, error)
	// PlaceStopOrder rests a stop order and returns its reference.
	PlaceStopOrder(ctx context.Context, order Order) (string, error)
	// ModifyStopOrder moves the trigger price of a resting stop order.
	ModifyStopOrder(ctx context.Context, ref string, price float64) error
	// CancelOrder cancels a resting order.
	CancelOrder(ctx context.Context, ref string) error
	// CurrentPosition returns the broker's view of the account position.
	CurrentPosition(ctx context.Context) (*Holding, error)
	// RecentTrades returns recent fills, oldest first.
	RecentTrades(ctx context.Context) ([]Fill, error)
}

// IsRetryable checks whether the provided error should be retried.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRejected), errors.Is(err, ErrAlreadyRegistered), errors.Is(err, ErrUnknownOrder):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
