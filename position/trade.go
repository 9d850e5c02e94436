package position

import (
	"fmt"
	"time"

	"github.com/dnldd/abletrend/shared"
)

// Trade represents a closed position. Trades are immutable once created.
type Trade struct {
	ID               string
	Direction        shared.Direction
	Size             int
	EntryTime        time.Time
	IdealEntryPrice  float64
	ActualEntryPrice float64
	ExitTime         time.Time
	IdealExitPrice   float64
	ActualExitPrice  float64
	ExitMethod       shared.ExitMethod
	Commission       float64
	Simulated        bool
}

// Profit returns the realized profit in points per contract using the filled prices.
func (t *Trade) Profit() float64 {
	switch t.Direction {
	case shared.Long:
		return t.ActualExitPrice - t.ActualEntryPrice
	default:
		return t.ActualEntryPrice - t.ActualExitPrice
	}
}

// IdealProfit returns the profit in points per contract the engine intended.
func (t *Trade) IdealProfit() float64 {
	switch t.Direction {
	case shared.Long:
		return t.IdealExitPrice - t.IdealEntryPrice
	default:
		return t.IdealEntryPrice - t.IdealExitPrice
	}
}

// NetProfit returns the realized profit in currency, after commissions.
func (t *Trade) NetProfit(pointValue float64) float64 {
	return t.Profit()*pointValue*float64(t.Size) - t.Commission
}

// String stringifies the provided trade.
func (t *Trade) String() string {
	return fmt.Sprintf("%s x%d %.2f -> %.2f (%s), %.2f points", t.Direction.String(), t.Size,
		t.ActualEntryPrice, t.ActualExitPrice, t.ExitMethod.String(), t.Profit())
}
