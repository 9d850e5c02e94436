package position

import (
	"fmt"
	"time"

	"github.com/dnldd/abletrend/shared"
	"github.com/google/uuid"
)

// StopLoss represents a stop level and the method that produced it.
type StopLoss struct {
	Stop   float64
	Source shared.StopLossSource
}

// String stringifies the provided stop loss.
func (s StopLoss) String() string {
	return fmt.Sprintf("%.2f (%s)", s.Stop, s.Source.String())
}

// MoreFavorable checks whether the provided stop secures more than the current stop for a
// position of the provided direction.
func MoreFavorable(direction shared.Direction, candidate float64, current float64) bool {
	switch direction {
	case shared.Long:
		return candidate > current
	case shared.Short:
		return candidate < current
	default:
		return false
	}
}

// Position represents an open market position.
type Position struct {
	ID               string
	Direction        shared.Direction
	EntryType        shared.EntryType
	EntryTime        time.Time
	IdealEntryPrice  float64
	ActualEntryPrice *float64
	Size             int
	StopLoss         StopLoss
	EntryOrderRef    string
	StopOrderRef     string
	Commission       float64
	Simulated        bool
}

// NewPosition initializes a new position at the ideal entry price.
func NewPosition(direction shared.Direction, entryType shared.EntryType, entryTime time.Time,
	price float64, size int, stop StopLoss) (*Position, error) {
	if direction != shared.Long && direction != shared.Short {
		return nil, fmt.Errorf("unexpected position direction: %s", direction.String())
	}
	if size <= 0 {
		return nil, fmt.Errorf("position size must be positive, got %d", size)
	}

	switch direction {
	case shared.Long:
		if stop.Stop >= price {
			return nil, fmt.Errorf("long stop %f must be below entry %f", stop.Stop, price)
		}
	case shared.Short:
		if stop.Stop <= price {
			return nil, fmt.Errorf("short stop %f must be above entry %f", stop.Stop, price)
		}
	}

	pos := &Position{
		ID:              uuid.New().String(),
		Direction:       direction,
		EntryType:       entryType,
		EntryTime:       entryTime,
		IdealEntryPrice: price,
		Size:            size,
		StopLoss:        stop,
	}

	return pos, nil
}

// EntryPrice returns the filled entry price if confirmed, otherwise the ideal entry price.
func (p *Position) EntryPrice() float64 {
	if p.ActualEntryPrice != nil {
		return *p.ActualEntryPrice
	}

	return p.IdealEntryPrice
}

// Risk returns the distance between the entry and the stop.
func (p *Position) Risk() float64 {
	switch p.Direction {
	case shared.Long:
		return p.EntryPrice() - p.StopLoss.Stop
	default:
		return p.StopLoss.Stop - p.EntryPrice()
	}
}

// SecuredProfit returns the profit locked in by the current stop, negative while the stop is
// below entry for longs or above entry for shorts.
func (p *Position) SecuredProfit() float64 {
	return -p.Risk()
}

// Profit returns the unrealized profit in points at the provided price.
func (p *Position) Profit(price float64) float64 {
	switch p.Direction {
	case shared.Long:
		return price - p.EntryPrice()
	default:
		return p.EntryPrice() - price
	}
}

// StopHit checks whether the provided bar breaches the position's stop.
func (p *Position) StopHit(candle *shared.Candlestick) bool {
	switch p.Direction {
	case shared.Long:
		return candle.Low <= p.StopLoss.Stop
	default:
		return candle.High >= p.StopLoss.Stop
	}
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	clone := *p
	if p.ActualEntryPrice != nil {
		price := *p.ActualEntryPrice
		clone.ActualEntryPrice = &price
	}

	return &clone
}

// String stringifies the provided position.
func (p *Position) String() string {
	return fmt.Sprintf("%s x%d @ %.2f (%s entry), stop %s", p.Direction.String(), p.Size,
		p.EntryPrice(), p.EntryType.String(), p.StopLoss.String())
}

// Close converts the position into a closed trade.
func (p *Position) Close(exitTime time.Time, idealExit float64, actualExit *float64, method shared.ExitMethod, exitCommission float64) Trade {
	trade := Trade{
		ID:              p.ID,
		Direction:       p.Direction,
		Size:            p.Size,
		EntryTime:       p.EntryTime,
		IdealEntryPrice: p.IdealEntryPrice,
		ExitTime:        exitTime,
		IdealExitPrice:  idealExit,
		ExitMethod:      method,
		Commission:      p.Commission + exitCommission,
		Simulated:       p.Simulated,
	}

	trade.ActualEntryPrice = p.EntryPrice()
	trade.ActualExitPrice = idealExit
	if actualExit != nil {
		trade.ActualExitPrice = *actualExit
	}

	return trade
}
