package position

import (
	"sync"
	"time"

	"github.com/dnldd/abletrend/shared"
)

// Ledger is an append-only record of closed trades.
type Ledger struct {
	trades    []Trade
	tradesMtx sync.RWMutex
}

// NewLedger initializes a new trade ledger.
func NewLedger(history ...Trade) *Ledger {
	trades := make([]Trade, 0, len(history)+64)
	trades = append(trades, history...)

	return &Ledger{trades: trades}
}

// Append records the provided trade.
func (l *Ledger) Append(trade Trade) {
	l.tradesMtx.Lock()
	l.trades = append(l.trades, trade)
	l.tradesMtx.Unlock()
}

// Trades returns a copy of the recorded trades in order.
func (l *Ledger) Trades() []Trade {
	l.tradesMtx.RLock()
	defer l.tradesMtx.RUnlock()

	set := make([]Trade, len(l.trades))
	copy(set, l.trades)

	return set
}

// Last returns the most recent trade, or nil if there are none.
func (l *Ledger) Last() *Trade {
	l.tradesMtx.RLock()
	defer l.tradesMtx.RUnlock()

	if len(l.trades) == 0 {
		return nil
	}

	trade := l.trades[len(l.trades)-1]
	return &trade
}

// Len returns the number of recorded trades.
func (l *Ledger) Len() int {
	l.tradesMtx.RLock()
	defer l.tradesMtx.RUnlock()

	return len(l.trades)
}

// DailyProfit returns the profit in points of trades exited on the trading day of the provided
// time.
func DailyProfit(trades []Trade, at time.Time, loc *time.Location) float64 {
	day := shared.TradingDay(at, loc)

	var sum float64
	for idx := range trades {
		if shared.TradingDay(trades[idx].ExitTime, loc).Equal(day) {
			sum += trades[idx].Profit() * float64(trades[idx].Size)
		}
	}

	return sum
}
