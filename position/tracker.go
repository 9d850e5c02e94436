package position

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/abletrend/shared"
)

var (
	// ErrPositionExists is returned when opening a position while one is already open.
	ErrPositionExists = errors.New("a position is already open")
	// ErrNoPosition is returned when managing a position while none is open.
	ErrNoPosition = errors.New("no open position")
)

// Tracker holds the single open position of an account and the ledger of its closed trades.
type Tracker struct {
	current *Position
	mtx     sync.RWMutex
	ledger  *Ledger
}

// NewTracker initializes a new position tracker.
func NewTracker(ledger *Ledger) *Tracker {
	if ledger == nil {
		ledger = NewLedger()
	}

	return &Tracker{ledger: ledger}
}

// Current returns a copy of the open position, or nil if flat.
func (t *Tracker) Current() *Position {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	if t.current == nil {
		return nil
	}

	return t.current.Clone()
}

// Ledger returns the trade ledger.
func (t *Tracker) Ledger() *Ledger {
	return t.ledger
}

// Open tracks the provided position. At most one position can be open at a time.
func (t *Tracker) Open(pos *Position) error {
	if pos == nil {
		return fmt.Errorf("position cannot be nil")
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.current != nil {
		return fmt.Errorf("%w: %s", ErrPositionExists, t.current.String())
	}

	t.current = pos.Clone()

	return nil
}

// UpdateStop applies the provided stop to the open position. Stops never loosen, a stop less
// favorable than the current one is ignored and false is returned.
func (t *Tracker) UpdateStop(stop StopLoss, orderRef string) (bool, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.current == nil {
		return false, ErrNoPosition
	}

	if orderRef != "" {
		t.current.StopOrderRef = orderRef
	}

	if !MoreFavorable(t.current.Direction, stop.Stop, t.current.StopLoss.Stop) {
		return false, nil
	}

	t.current.StopLoss = stop

	return true, nil
}

// SetStopOrderRef records the resting stop order of the open position.
func (t *Tracker) SetStopOrderRef(ref string) error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.current == nil {
		return ErrNoPosition
	}

	t.current.StopOrderRef = ref

	return nil
}

// Close converts the open position into a trade and records it in the ledger.
func (t *Tracker) Close(exitTime time.Time, idealExit float64, actualExit *float64, method shared.ExitMethod, exitCommission float64) (*Trade, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.current == nil {
		return nil, ErrNoPosition
	}

	trade := t.current.Close(exitTime, idealExit, actualExit, method, exitCommission)
	t.ledger.Append(trade)
	t.current = nil

	return &trade, nil
}
