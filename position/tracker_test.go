package position

import (
	"errors"
	"testing"
	"time"

	"github.com/dnldd/abletrend/shared"
	"github.com/peterldowns/testy/assert"
)

func TestTracker(t *testing.T) {
	tracker := NewTracker(nil)
	assert.Nil(t, tracker.Current())

	// Ensure managing a missing position errors.
	_, err := tracker.UpdateStop(StopLoss{Stop: 99}, "")
	assert.True(t, errors.Is(err, ErrNoPosition))
	_, err = tracker.Close(entryTime, 100, nil, shared.EndOfDay, 0)
	assert.True(t, errors.Is(err, ErrNoPosition))
	assert.True(t, errors.Is(tracker.SetStopOrderRef("ref"), ErrNoPosition))
	assert.Error(t, tracker.Open(nil))

	pos, err := NewPosition(shared.Long, shared.InitialEntry, entryTime, 100, 1,
		StopLoss{Stop: 96, Source: shared.SupportResistanceLevel})
	assert.NoError(t, err)

	err = tracker.Open(pos)
	assert.NoError(t, err)

	// Ensure a second position cannot be opened while one is open.
	err = tracker.Open(pos)
	assert.True(t, errors.Is(err, ErrPositionExists))

	// Ensure stops only tighten.
	updated, err := tracker.UpdateStop(StopLoss{Stop: 98, Source: shared.TwoGreenBars}, "stop-1")
	assert.NoError(t, err)
	assert.True(t, updated)
	updated, err = tracker.UpdateStop(StopLoss{Stop: 97, Source: shared.SupportResistanceLevel}, "")
	assert.NoError(t, err)
	assert.False(t, updated)

	current := tracker.Current()
	assert.Equal(t, current.StopLoss.Stop, float64(98))
	assert.Equal(t, current.StopLoss.Source, shared.TwoGreenBars)
	assert.Equal(t, current.StopOrderRef, "stop-1")

	// Ensure the returned position is a snapshot.
	current.StopLoss.Stop = 50
	assert.Equal(t, tracker.Current().StopLoss.Stop, float64(98))

	// Ensure closing records the trade and frees the slot.
	trade, err := tracker.Close(entryTime.Add(time.Minute*3), 98, nil, shared.TwoGreenBarsExit, 0)
	assert.NoError(t, err)
	assert.Equal(t, trade.Profit(), float64(-2))
	assert.Nil(t, tracker.Current())
	assert.Equal(t, tracker.Ledger().Len(), 1)
	assert.Equal(t, tracker.Ledger().Last().ExitMethod, shared.TwoGreenBarsExit)
}

func TestLedgerDailyProfit(t *testing.T) {
	_, loc, err := shared.NewYorkTime()
	assert.NoError(t, err)

	day := time.Date(2025, 3, 4, 10, 0, 0, 0, loc)
	ledger := NewLedger(
		Trade{Direction: shared.Long, Size: 1, ActualEntryPrice: 100, ActualExitPrice: 90, ExitTime: day.AddDate(0, 0, -1)},
		Trade{Direction: shared.Long, Size: 1, ActualEntryPrice: 100, ActualExitPrice: 95, ExitTime: day},
		Trade{Direction: shared.Short, Size: 2, ActualEntryPrice: 100, ActualExitPrice: 102, ExitTime: day.Add(time.Hour)},
	)

	assert.Equal(t, ledger.Len(), 3)
	assert.Equal(t, len(ledger.Trades()), 3)

	// Ensure only trades exited on the same day count.
	assert.Equal(t, DailyProfit(ledger.Trades(), day.Add(time.Hour*2), loc), float64(-9))
	assert.Equal(t, DailyProfit(nil, day, loc), float64(0))
	assert.Nil(t, NewLedger().Last())
}
