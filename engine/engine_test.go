package engine

import (
	"testing"
	"time"

	"github.com/dnldd/abletrend/chart"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

var newYork, _ = time.LoadLocation(shared.NewYorkLocation)

// at returns the provided new york wall clock time on the test trading day.
func at(hour int, minute int) time.Time {
	return time.Date(2025, 3, 4, hour, minute, 0, 0, newYork)
}

// barSpec describes a test price bar.
type barSpec struct {
	at                     time.Time
	open, high, low, close float64
	color                  shared.Color
	dir                    shared.Direction
	stop                   float64
	two, three             shared.Direction
}

func newBar(t *testing.T, spec barSpec) *shared.PriceBar {
	t.Helper()

	candle := shared.Candlestick{
		Open:  spec.open,
		High:  spec.high,
		Low:   spec.low,
		Close: spec.close,
		Date:  spec.at,
	}

	signals := []shared.Signal{shared.NewSignal(spec.at, shared.OneMinute, spec.color, spec.dir, spec.stop)}
	if spec.two != shared.NoDirection {
		signals = append(signals, shared.NewSignal(spec.at, shared.TwoMinute, shared.EntryColor(spec.two), spec.two, 0))
	}
	if spec.three != shared.NoDirection {
		signals = append(signals, shared.NewSignal(spec.at, shared.ThreeMinute, shared.EntryColor(spec.three), spec.three, 0))
	}

	bar, err := shared.NewPriceBar(candle, signals...)
	assert.NoError(t, err)

	return bar
}

func newChart(t *testing.T, specs ...barSpec) *chart.Chart {
	t.Helper()

	c := chart.NewChart("MES")
	for idx := range specs {
		err := c.Append(newBar(t, specs[idx]))
		assert.NoError(t, err)
	}

	return c
}

func newEngine(t *testing.T, settings Settings) *Engine {
	t.Helper()

	e, err := NewEngine(&EngineConfig{
		Settings: settings,
		Logger:   zerolog.Nop(),
	})
	assert.NoError(t, err)

	return e
}

func newLong(t *testing.T, entryTime time.Time, entry float64, stop position.StopLoss) *position.Position {
	t.Helper()

	pos, err := position.NewPosition(shared.Long, shared.InitialEntry, entryTime, entry, 1, stop)
	assert.NoError(t, err)

	return pos
}

func kinds(actions []TradeAction) []ActionKind {
	set := make([]ActionKind, 0, len(actions))
	for idx := range actions {
		set = append(set, actions[idx].Kind)
	}

	return set
}

// longEntryChart returns a chart whose last closed bar is the first blue bar of a long move at the
// provided time, confirmed on the two and three minute timeframes.
func longEntryChart(t *testing.T, hour int, minute int) *chart.Chart {
	t.Helper()

	return newChart(t,
		barSpec{at: at(hour, minute-2), open: 105, high: 106, low: 103, close: 104,
			color: shared.Red, dir: shared.Short, stop: 110, two: shared.Long, three: shared.Long},
		barSpec{at: at(hour, minute-1), open: 104, high: 105, low: 101, close: 102,
			color: shared.Red, dir: shared.Short, stop: 110, two: shared.Long, three: shared.Long},
		barSpec{at: at(hour, minute), open: 99, high: 101, low: 98, close: 100,
			color: shared.Blue, dir: shared.Long, stop: 97, two: shared.Long, three: shared.Long},
		barSpec{at: at(hour, minute+1), open: 100, high: 101, low: 99, close: 100,
			color: shared.Blue, dir: shared.Long, stop: 97},
	)
}

func TestNewEngine(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxRisk = 0

	_, err := NewEngine(&EngineConfig{Settings: settings, Logger: zerolog.Nop()})
	assert.Error(t, err)

	e, err := NewEngine(&EngineConfig{Settings: DefaultSettings(), Logger: zerolog.Nop()})
	assert.NoError(t, err)
	assert.Equal(t, e.Location().String(), shared.NewYorkLocation)
	assert.Equal(t, e.Settings().MaxRisk, float64(10))
}

func TestDecideInsufficientBars(t *testing.T) {
	e := newEngine(t, DefaultSettings())

	c := newChart(t, barSpec{at: at(10, 0), open: 100, high: 101, low: 99, close: 100,
		color: shared.Blue, dir: shared.Long, stop: 97})

	actions := e.Decide(c, nil, nil)
	assert.Equal(t, len(actions), 1)
	assert.Equal(t, actions[0].Kind, NoAction)

	// The first closed bar has no predecessor.
	err := c.Append(newBar(t, barSpec{at: at(10, 1), open: 100, high: 101, low: 99, close: 100,
		color: shared.Blue, dir: shared.Long, stop: 97}))
	assert.NoError(t, err)

	actions = e.Decide(c, nil, nil)
	assert.Equal(t, actions[0].Kind, NoAction)
}

func TestDecideOpensConfirmedLong(t *testing.T) {
	e := newEngine(t, DefaultSettings())
	c := longEntryChart(t, 10, 2)

	actions := e.Decide(c, nil, nil)
	if diff := cmp.Diff([]ActionKind{OpenPosition}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}

	pos := actions[0].Position
	assert.Equal(t, pos.Direction, shared.Long)
	assert.Equal(t, pos.EntryType, shared.SweetSpotEntry)
	assert.Equal(t, pos.IdealEntryPrice, float64(100))
	assert.Equal(t, pos.StopLoss.Stop, float64(96))
	assert.Equal(t, pos.StopLoss.Source, shared.SupportResistanceLevel)
	assert.Equal(t, pos.Risk(), float64(4))
	assert.Equal(t, actions[0].BarTime, at(10, 2))
}

func TestDecideStopHitExitsAtStop(t *testing.T) {
	e := newEngine(t, DefaultSettings())

	c := newChart(t,
		barSpec{at: at(10, 10), open: 101, high: 103, low: 101, close: 102,
			color: shared.Blue, dir: shared.Long, stop: 99, two: shared.Long, three: shared.Long},
		barSpec{at: at(10, 11), open: 102, high: 102.5, low: 99.5, close: 100.5,
			color: shared.Green, dir: shared.Long, stop: 99, two: shared.Long, three: shared.Long},
		barSpec{at: at(10, 12), open: 100.5, high: 101, low: 100, close: 100.5,
			color: shared.Green, dir: shared.Long, stop: 99},
	)

	pos := newLong(t, at(10, 5), 102, position.StopLoss{Stop: 100, Source: shared.SupportResistanceLevel})

	actions := e.Decide(c, pos, nil)
	if diff := cmp.Diff([]ActionKind{VerifyPositionClosed}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}

	// Ensure the exit is at the stop, not the bar low.
	assert.Equal(t, actions[0].ExitPrice, float64(100))
	assert.Equal(t, actions[0].ExitMethod, shared.BrokeSupportResistance)
	assert.Equal(t, actions[0].Closing.ID, pos.ID)

	// Ensure the provided position is not mutated.
	assert.Equal(t, pos.StopLoss.Stop, float64(100))
}

func TestDecideTrailsTwoGreenBarsStop(t *testing.T) {
	e := newEngine(t, DefaultSettings())

	c := newChart(t,
		barSpec{at: at(10, 20), open: 108, high: 110, low: 107.2, close: 109,
			color: shared.Green, dir: shared.Long, stop: 104, two: shared.Long, three: shared.Long},
		barSpec{at: at(10, 21), open: 109, high: 111, low: 107.8, close: 110.5,
			color: shared.Green, dir: shared.Long, stop: 104, two: shared.Long, three: shared.Long},
		barSpec{at: at(10, 22), open: 110.5, high: 111, low: 110, close: 110.5,
			color: shared.Green, dir: shared.Long, stop: 104},
	)

	pos := newLong(t, at(10, 5), 100, position.StopLoss{Stop: 97, Source: shared.CurrentBar})
	pos.StopLoss = position.StopLoss{Stop: 103, Source: shared.SupportResistanceLevel}
	assert.Equal(t, pos.SecuredProfit(), float64(3))

	actions := e.Decide(c, pos, nil)
	if diff := cmp.Diff([]ActionKind{UpdateStop}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}

	assert.Equal(t, actions[0].Stop.Stop, float64(106))
	assert.Equal(t, actions[0].Stop.Source, shared.TwoGreenBars)

	// Ensure a stop already past every candidate holds.
	pos.StopLoss = position.StopLoss{Stop: 106.5, Source: shared.TwoGreenBars}
	actions = e.Decide(c, pos, nil)
	assert.Equal(t, actions[0].Kind, NoAction)

	// Ensure two green bars stops are abandoned once enough profit is secured, leaving the
	// previous level which does not improve the stop.
	settings := DefaultSettings()
	settings.ProfitRequiredAbandonTwoGreenBarsExit = 2
	e = newEngine(t, settings)
	pos.StopLoss = position.StopLoss{Stop: 103, Source: shared.SupportResistanceLevel}
	actions = e.Decide(c, pos, nil)
	assert.Equal(t, actions[0].Kind, NoAction)
}

func TestDecideStopNeverLoosens(t *testing.T) {
	// A long trend with a dip whose one minute stop falls back below earlier levels.
	rising := []barSpec{
		{at: at(10, 10), open: 100, high: 102, low: 99.5, close: 101.5, color: shared.Blue, dir: shared.Long, stop: 98},
		{at: at(10, 11), open: 101.5, high: 103.5, low: 101, close: 103, color: shared.Blue, dir: shared.Long, stop: 99.5},
		{at: at(10, 12), open: 103, high: 105, low: 102.5, close: 104.5, color: shared.Green, dir: shared.Long, stop: 101},
		{at: at(10, 13), open: 104.5, high: 106, low: 104, close: 105.5, color: shared.Green, dir: shared.Long, stop: 102.5},
		{at: at(10, 14), open: 105.5, high: 106, low: 103.5, close: 104, color: shared.Blue, dir: shared.Long, stop: 101.5},
		{at: at(10, 15), open: 104, high: 107, low: 103.8, close: 106.5, color: shared.Green, dir: shared.Long, stop: 103},
		{at: at(10, 16), open: 106.5, high: 108, low: 106, close: 107.5, color: shared.Green, dir: shared.Long, stop: 104.5},
		{at: at(10, 17), open: 107.5, high: 109, low: 107, close: 108.5, color: shared.Green, dir: shared.Long, stop: 105},
	}

	// The falling trend mirrors the rising one around 100.
	falling := make([]barSpec, 0, len(rising))
	for _, spec := range rising {
		color := spec.color
		if color == shared.Blue {
			color = shared.Red
		}
		falling = append(falling, barSpec{at: spec.at, open: 200 - spec.open, high: 200 - spec.low,
			low: 200 - spec.high, close: 200 - spec.close, color: color, dir: shared.Short, stop: 200 - spec.stop})
	}

	tests := []struct {
		name      string
		direction shared.Direction
		stop      float64
		bars      []barSpec
	}{
		{name: "long", direction: shared.Long, stop: 97, bars: rising},
		{name: "short", direction: shared.Short, stop: 103, bars: falling},
	}

	e := newEngine(t, DefaultSettings())
	for _, test := range tests {
		pos, err := position.NewPosition(test.direction, shared.InitialEntry, at(10, 5), 100, 1,
			position.StopLoss{Stop: test.stop, Source: shared.SupportResistanceLevel})
		assert.NoError(t, err)

		updates := 0
		for count := 3; count <= len(test.bars); count++ {
			c := newChart(t, test.bars[:count]...)
			actions := e.Decide(c, pos, nil)
			if len(actions) != 1 {
				t.Fatalf("%s: expected a single action for bar %d, got %d", test.name, count-2, len(actions))
			}

			action := actions[0]
			switch action.Kind {
			case NoAction:
			case UpdateStop:
				if !position.MoreFavorable(test.direction, action.Stop.Stop, pos.StopLoss.Stop) {
					t.Fatalf("%s: expected bar %d to tighten stop %.2f, got %.2f", test.name, count-2,
						pos.StopLoss.Stop, action.Stop.Stop)
				}
				pos.StopLoss = action.Stop
				updates++
			default:
				t.Fatalf("%s: expected no exit on bar %d, got %s", test.name, count-2, action.Kind.String())
			}
		}

		if updates == 0 {
			t.Errorf("%s: expected the stop to trail at least once", test.name)
		}
		if !position.MoreFavorable(test.direction, pos.StopLoss.Stop, test.stop) {
			t.Errorf("%s: expected the final stop %.2f to be tighter than %.2f", test.name,
				pos.StopLoss.Stop, test.stop)
		}
	}
}

func TestDecideDailyLossHaltsEntries(t *testing.T) {
	e := newEngine(t, DefaultSettings())
	c := longEntryChart(t, 10, 2)

	loser := position.Trade{
		ID:               "loser",
		Direction:        shared.Long,
		Size:             1,
		EntryTime:        at(9, 40),
		IdealEntryPrice:  160,
		ActualEntryPrice: 160,
		ExitTime:         at(9, 50),
		IdealExitPrice:   105,
		ActualExitPrice:  105,
		ExitMethod:       shared.BrokeSupportResistance,
	}

	actions := e.Decide(c, nil, []position.Trade{loser})
	if diff := cmp.Diff([]ActionKind{NoAction}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}

	// Ensure losses from a previous trading day do not count.
	loser.EntryTime = loser.EntryTime.AddDate(0, 0, -1)
	loser.ExitTime = loser.ExitTime.AddDate(0, 0, -1)
	actions = e.Decide(c, nil, []position.Trade{loser})
	assert.Equal(t, actions[0].Kind, OpenPosition)
}

func TestDecideTradingWindow(t *testing.T) {
	c := longEntryChart(t, 16, 2)

	e := newEngine(t, DefaultSettings())
	actions := e.Decide(c, nil, nil)
	assert.Equal(t, actions[0].Kind, NoAction)

	settings := DefaultSettings()
	settings.BypassTradingRestrictions = true
	e = newEngine(t, settings)
	actions = e.Decide(c, nil, nil)
	assert.Equal(t, actions[0].Kind, OpenPosition)
}

func TestDecideEndOfDay(t *testing.T) {
	e := newEngine(t, DefaultSettings())
	pos := newLong(t, at(15, 0), 100, position.StopLoss{Stop: 96.5, Source: shared.SupportResistanceLevel})

	tests := []struct {
		name   string
		color  shared.Color
		minute int
		want   ActionKind
	}{
		{name: "green bar before clear time", color: shared.Green, minute: 45, want: NoAction},
		{name: "blue bar after clear time", color: shared.Blue, minute: 51, want: ForceClosePosition},
		{name: "green bar after clear time", color: shared.Green, minute: 51, want: NoAction},
		{name: "green bar after flat time", color: shared.Green, minute: 56, want: ForceClosePosition},
	}

	for _, test := range tests {
		c := newChart(t,
			barSpec{at: at(15, test.minute-1), open: 100, high: 101, low: 99, close: 100,
				color: shared.Blue, dir: shared.Long, stop: 97},
			barSpec{at: at(15, test.minute), open: 100, high: 101, low: 99, close: 100.5,
				color: test.color, dir: shared.Long, stop: 97},
			barSpec{at: at(15, test.minute+1), open: 100, high: 101, low: 99, close: 100,
				color: shared.Blue, dir: shared.Long, stop: 97},
		)

		actions := e.Decide(c, pos, nil)
		if actions[0].Kind != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, actions[0].Kind)
		}

		if test.want == ForceClosePosition {
			if actions[0].ExitMethod != shared.EndOfDay {
				t.Errorf("%s: expected %v, got %v", test.name, shared.EndOfDay, actions[0].ExitMethod)
			}
			if actions[0].ExitPrice != 100.5 {
				t.Errorf("%s: expected %v, got %v", test.name, 100.5, actions[0].ExitPrice)
			}
		}
	}
}

func TestDecideSignalReversal(t *testing.T) {
	e := newEngine(t, DefaultSettings())
	pos := newLong(t, at(10, 25), 98, position.StopLoss{Stop: 95, Source: shared.SupportResistanceLevel})

	reversal := func(confirm shared.Direction) *chart.Chart {
		return newChart(t,
			barSpec{at: at(10, 30), open: 100, high: 102, low: 99, close: 101,
				color: shared.Blue, dir: shared.Long, stop: 95, two: shared.Long, three: shared.Long},
			barSpec{at: at(10, 31), open: 101, high: 102, low: 99, close: 100,
				color: shared.Red, dir: shared.Short, stop: 104, two: confirm, three: confirm},
			barSpec{at: at(10, 32), open: 100, high: 101, low: 99, close: 100,
				color: shared.Red, dir: shared.Short, stop: 104},
		)
	}

	// Ensure an unconfirmed reversal only closes the position.
	actions := e.Decide(reversal(shared.Long), pos, nil)
	if diff := cmp.Diff([]ActionKind{ForceClosePosition}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
	assert.Equal(t, actions[0].ExitMethod, shared.SignalReversed)
	assert.Equal(t, actions[0].ExitPrice, float64(100))

	// Ensure a confirmed reversal flips the position.
	actions = e.Decide(reversal(shared.Short), pos, nil)
	if diff := cmp.Diff([]ActionKind{ReversePosition}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}
	assert.Equal(t, actions[0].Closing.Direction, shared.Long)
	assert.Equal(t, actions[0].Position.Direction, shared.Short)
	assert.Equal(t, actions[0].Position.EntryType, shared.InitialEntry)
	assert.Equal(t, actions[0].Position.StopLoss.Stop, float64(105))
	assert.Equal(t, actions[0].ExitMethod, shared.SignalReversed)
}

func TestDecideReentersAfterStopOut(t *testing.T) {
	e := newEngine(t, DefaultSettings())

	c := newChart(t,
		barSpec{at: at(10, 40), open: 103, high: 104, low: 102, close: 103,
			color: shared.Red, dir: shared.Short, stop: 108, two: shared.Short, three: shared.Short},
		barSpec{at: at(10, 41), open: 103, high: 106, low: 102, close: 105,
			color: shared.Blue, dir: shared.Long, stop: 101, two: shared.Long, three: shared.Long},
		barSpec{at: at(10, 42), open: 105, high: 106, low: 104, close: 105,
			color: shared.Blue, dir: shared.Long, stop: 101},
	)

	// A short stopped out on the bar that turns long.
	pos, err := position.NewPosition(shared.Short, shared.InitialEntry, at(10, 30), 100, 1,
		position.StopLoss{Stop: 104, Source: shared.CurrentBar})
	assert.NoError(t, err)

	actions := e.Decide(c, pos, nil)
	if diff := cmp.Diff([]ActionKind{VerifyPositionClosed, OpenPosition}, kinds(actions)); diff != "" {
		t.Fatalf("unexpected actions (-want +got):\n%s", diff)
	}

	assert.Equal(t, actions[0].ExitPrice, float64(104))
	assert.Equal(t, actions[0].ExitMethod, shared.ExitMethodFor(shared.CurrentBar))
	assert.Equal(t, actions[1].Position.Direction, shared.Long)
	assert.Equal(t, actions[1].Position.EntryType, shared.InitialEntry)
	assert.Equal(t, actions[1].Position.StopLoss.Stop, float64(100))
}

func TestEntryTypeFor(t *testing.T) {
	e := newEngine(t, DefaultSettings())

	c := newChart(t,
		barSpec{at: at(10, 0), open: 100, high: 101, low: 99, close: 100,
			color: shared.Red, dir: shared.Short, stop: 104},
		barSpec{at: at(10, 1), open: 100, high: 101, low: 99, close: 100,
			color: shared.Blue, dir: shared.Long, stop: 97},
		barSpec{at: at(10, 2), open: 100, high: 101, low: 99, close: 100,
			color: shared.Green, dir: shared.Long, stop: 97},
		barSpec{at: at(10, 3), open: 100, high: 101, low: 99, close: 100,
			color: shared.Blue, dir: shared.Long, stop: 97},
	)

	trade := func(exit time.Time, profit float64) []position.Trade {
		return []position.Trade{{
			Direction:        shared.Long,
			Size:             1,
			EntryTime:        exit.Add(-time.Minute * 5),
			IdealEntryPrice:  100,
			ActualEntryPrice: 100,
			ExitTime:         exit,
			IdealExitPrice:   100 + profit,
			ActualExitPrice:  100 + profit,
		}}
	}

	open := newChart(t,
		barSpec{at: at(9, 30), open: 100, high: 101, low: 99, close: 100,
			color: shared.Blue, dir: shared.Long, stop: 97},
		barSpec{at: at(9, 31), open: 100, high: 101, low: 99, close: 100,
			color: shared.Blue, dir: shared.Long, stop: 97},
	)

	tests := []struct {
		name   string
		chart  *chart.Chart
		bar    *shared.PriceBar
		trades []position.Trade
		want   shared.EntryType
	}{
		{name: "high risk window", chart: open, bar: open.Bar(1), want: shared.InitialEntry},
		{name: "no trade history", chart: c, bar: c.Bar(3), want: shared.SweetSpotEntry},
		{name: "stopped out this minute", chart: c, bar: c.Bar(3), trades: trade(at(10, 3), -3),
			want: shared.InitialEntry},
		{name: "same move after a winner", chart: c, bar: c.Bar(3), trades: trade(at(10, 1), 5),
			want: shared.PullbackEntry},
		{name: "same move after a small winner", chart: c, bar: c.Bar(3), trades: trade(at(10, 1), 2),
			want: shared.SweetSpotEntry},
		{name: "move changed since exit", chart: c, bar: c.Bar(3), trades: trade(at(10, 0), 5),
			want: shared.InitialEntry},
	}

	for _, test := range tests {
		got := e.entryTypeFor(test.chart, test.bar, shared.Long, test.trades)
		if got != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, got)
		}
	}
}
