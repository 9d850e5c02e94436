package account

import (
	"testing"
	"time"

	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var newYork, _ = time.LoadLocation(shared.NewYorkLocation)

func newTracker(t *testing.T) *Tracker {
	t.Helper()

	tracker, err := NewTracker(&TrackerConfig{
		PointValue:           5,
		InitialBalance:       1000,
		MaxDrawdown:          100,
		RecoveryToLive:       50,
		ProbationMaxDrawdown: 40,
		Location:             newYork,
		Logger:               zerolog.Nop(),
	})
	assert.NoError(t, err)

	return tracker
}

// trade returns a long trade of the provided profit in points, exited at the provided time.
func trade(exit time.Time, points float64, simulated bool) position.Trade {
	return position.Trade{
		ID:               exit.String(),
		Direction:        shared.Long,
		Size:             1,
		EntryTime:        exit.Add(-time.Minute * 5),
		IdealEntryPrice:  100,
		ActualEntryPrice: 100,
		ExitTime:         exit,
		IdealExitPrice:   100 + points,
		ActualExitPrice:  100 + points,
		Simulated:        simulated,
	}
}

func TestTrackerConfigValidate(t *testing.T) {
	cfg := &TrackerConfig{}
	assert.Error(t, cfg.Validate())

	_, err := NewTracker(cfg)
	assert.Error(t, err)
}

func TestTrackerSettle(t *testing.T) {
	tracker := newTracker(t)
	exit := time.Date(2025, 3, 4, 10, 0, 0, 0, newYork)

	state := tracker.Settle(trade(exit, 4, false))
	assert.True(t, state.ModelBalance.Equal(decimal.NewFromInt(1020)))
	assert.True(t, state.AccBalance.Equal(decimal.NewFromInt(1020)))
	assert.True(t, state.AccPeak.Equal(decimal.NewFromInt(1020)))
	assert.Equal(t, state.Mode(), Live)

	// Ensure commissions only reduce the account book.
	loser := trade(exit.Add(time.Minute), -2, false)
	loser.Commission = 1.5
	state = tracker.Settle(loser)
	assert.True(t, state.ModelBalance.Equal(decimal.NewFromInt(1010)))
	assert.True(t, state.AccBalance.Equal(decimal.NewFromFloat(1008.5)))
	assert.True(t, state.AccDrawdown().Equal(decimal.NewFromFloat(11.5)))
	assert.True(t, state.ModelDrawdown().Equal(decimal.NewFromInt(10)))

	assert.Equal(t, tracker.DailyPNL(exit), float64(2))
	assert.False(t, tracker.Halted(exit, -50))
	assert.Equal(t, tracker.DailyPNL(exit.AddDate(0, 0, 1)), float64(0))
}

func TestTrackerModeTransitions(t *testing.T) {
	tracker := newTracker(t)
	exit := time.Date(2025, 3, 4, 10, 0, 0, 0, newYork)
	next := func() time.Time {
		exit = exit.Add(time.Minute)
		return exit
	}

	// Ensure an account drawdown at the limit moves the account to sim mode.
	state := tracker.Settle(trade(next(), -20, false))
	assert.Equal(t, state.Mode(), Sim)
	assert.True(t, tracker.SimMode())
	assert.True(t, state.LatestTrough.Equal(decimal.NewFromInt(900)))

	// Ensure simulated trades leave the account book alone.
	state = tracker.Settle(trade(next(), -4, true))
	assert.True(t, state.AccBalance.Equal(decimal.NewFromInt(900)))
	assert.True(t, state.ModelBalance.Equal(decimal.NewFromInt(880)))
	assert.True(t, state.LatestTrough.Equal(decimal.NewFromInt(880)))
	assert.Equal(t, state.Mode(), Sim)

	// Ensure a model recovery above the trough moves the account to probation.
	state = tracker.Settle(trade(next(), 10, true))
	assert.Equal(t, state.Mode(), Probation)
	assert.False(t, tracker.SimMode())
	assert.True(t, state.ProbationStart.Equal(decimal.NewFromInt(900)))

	// Ensure a probation drawdown moves the account back to sim mode.
	state = tracker.Settle(trade(next(), -8, false))
	assert.Equal(t, state.Mode(), Sim)

	// Recover again, then set a new account peak to clear probation.
	state = tracker.Settle(trade(next(), 20, true))
	assert.Equal(t, state.Mode(), Probation)

	state = tracker.Settle(trade(next(), 20, false))
	assert.Equal(t, state.Mode(), Probation)

	state = tracker.Settle(trade(next(), 10, false))
	assert.Equal(t, state.Mode(), Live)
	assert.True(t, state.AccBalance.Equal(state.AccPeak))
}

func TestTrackerHalted(t *testing.T) {
	tracker := newTracker(t)
	exit := time.Date(2025, 3, 4, 11, 0, 0, 0, newYork)

	tracker.Settle(trade(exit, -30, true))
	assert.False(t, tracker.Halted(exit, -50))

	tracker.Settle(trade(exit.Add(time.Minute), -25, true))
	assert.True(t, tracker.Halted(exit, -50))
	assert.Equal(t, tracker.DailyPNL(exit), float64(-55))

	// Ensure the halt resets on the next trading day.
	assert.False(t, tracker.Halted(exit.AddDate(0, 0, 1), -50))
}

func TestTrackerRestore(t *testing.T) {
	tracker := newTracker(t)
	exit := time.Date(2025, 3, 4, 12, 0, 0, 0, newYork)

	state := NewState(decimal.NewFromInt(2000))
	state.SimMode = true
	tracker.Restore(state, []position.Trade{trade(exit, -60, true)})

	restored := tracker.State()
	assert.True(t, restored.SimMode)
	assert.True(t, restored.AccBalance.Equal(decimal.NewFromInt(2000)))
	assert.True(t, tracker.Halted(exit, -50))
}
