package engine

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/dnldd/abletrend/chart"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
)

// EntryStatus represents the outcome of evaluating a bar for an entry.
type EntryStatus int

const (
	// InsufficientData means the bar lacked the data needed to evaluate it.
	InsufficientData EntryStatus = iota
	// Declined means the bar was evaluated and does not qualify.
	Declined
	// Found means the bar qualifies for an entry.
	Found
)

// String stringifies the provided entry status.
func (s EntryStatus) String() string {
	switch s {
	case InsufficientData:
		return "insufficient data"
	case Declined:
		return "declined"
	case Found:
		return "found"
	default:
		return "unknown"
	}
}

// EntryResult represents the outcome of an entry evaluation.
type EntryResult struct {
	Status   EntryStatus
	Position *position.Position
	Pullback *Pullback
	Reason   string
}

func insufficient(format string, args ...any) EntryResult {
	return EntryResult{Status: InsufficientData, Reason: fmt.Sprintf(format, args...)}
}

func declined(format string, args ...any) EntryResult {
	return EntryResult{Status: Declined, Reason: fmt.Sprintf(format, args...)}
}

// Pullback represents a green run followed by a run of bars colored in the trend direction.
type Pullback struct {
	Direction   shared.Direction
	GreenBars   []*shared.PriceBar
	ColoredBars []*shared.PriceBar
}

// Extreme returns the lowest low (longs) or highest high (shorts) of the pullback.
func (p *Pullback) Extreme() float64 {
	bars := make([]*shared.PriceBar, 0, len(p.GreenBars)+len(p.ColoredBars))
	bars = append(bars, p.GreenBars...)
	bars = append(bars, p.ColoredBars...)

	switch p.Direction {
	case shared.Short:
		extreme := math.Inf(-1)
		for idx := range bars {
			extreme = math.Max(extreme, bars[idx].Candle.High)
		}
		return extreme
	default:
		extreme := math.Inf(1)
		for idx := range bars {
			extreme = math.Min(extreme, bars[idx].Candle.Low)
		}
		return extreme
	}
}

// CheckForSignalConfirmation scans back from the provided bar and checks that both the two and
// three minute timeframes show a signal agreeing with the direction before one disagreeing with
// it.
func CheckForSignalConfirmation(c *chart.Chart, bar *shared.PriceBar, direction shared.Direction) bool {
	var confirmedTwo, confirmedThree, doneTwo, doneThree bool

	for current := bar; current != nil && !(doneTwo && doneThree); current = c.PreviousBar(current.ID) {
		if !doneTwo {
			sig := current.TwoMinSignal()
			if sig != nil && sig.Direction != shared.NoDirection {
				doneTwo = true
				confirmedTwo = sig.Direction == direction
			}
		}

		if !doneThree {
			sig := current.ThreeMinSignal()
			if sig != nil && sig.Direction != shared.NoDirection {
				doneThree = true
				confirmedThree = sig.Direction == direction
			}
		}
	}

	return confirmedTwo && confirmedThree
}

// CheckForPullback scans back from the provided bar for a run of bars in the entry color
// preceded by a run of green bars. The scan ends where the one minute direction changes, a
// colored run reaching back to the change is a pullback without green bars.
func CheckForPullback(c *chart.Chart, bar *shared.PriceBar, direction shared.Direction) *Pullback {
	entryColor := shared.EntryColor(direction)
	colored := make([]*shared.PriceBar, 0, 8)
	green := make([]*shared.PriceBar, 0, 8)

	complete := func() *Pullback {
		if len(colored) == 0 {
			return nil
		}

		slices.Reverse(colored)
		slices.Reverse(green)

		return &Pullback{Direction: direction, GreenBars: green, ColoredBars: colored}
	}

	for current := bar; current != nil; current = c.PreviousBar(current.ID) {
		if current.Direction() != direction {
			return complete()
		}

		switch current.BarColor() {
		case entryColor:
			if len(green) > 0 {
				// The green run is closed off by an earlier colored bar.
				return complete()
			}
			colored = append(colored, current)

		case shared.Green:
			if len(colored) == 0 {
				return nil
			}
			green = append(green, current)

		default:
			if len(colored) == 0 {
				return nil
			}
			return complete()
		}
	}

	return complete()
}

// CheckForEntrySignal evaluates the provided bar for an entry in the provided direction using
// the criteria of the provided entry type.
func CheckForEntrySignal(c *chart.Chart, bar *shared.PriceBar, direction shared.Direction, entryType shared.EntryType, settings *Settings, loc *time.Location) EntryResult {
	sig := bar.OneMinSignal()
	if sig == nil {
		return insufficient("bar has no one minute signal")
	}

	if bar.BarColor() != shared.EntryColor(direction) {
		return declined("bar color %s does not confirm %s", bar.BarColor().String(), direction.String())
	}

	if !CheckForSignalConfirmation(c, bar, direction) {
		return declined("no 2m and 3m confirmation for %s", direction.String())
	}

	stop := CalculateStopLoss(c, bar, direction, settings)
	if stop == nil {
		return declined("no %s stop level available", direction.String())
	}

	entry := bar.Candle.Close
	risk := math.Abs(entry - stop.Stop)
	if risk > settings.MaxRisk {
		if !settings.HighRiskEntryWindow.Contains(bar.Date(), loc) {
			return declined("risk %.2f exceeds max risk %.2f", risk, settings.MaxRisk)
		}

		// Clamp the stop to the max risk instead of passing on the entry.
		switch direction {
		case shared.Long:
			stop = &position.StopLoss{Stop: entry - settings.MaxRisk, Source: shared.CurrentBar}
		case shared.Short:
			stop = &position.StopLoss{Stop: entry + settings.MaxRisk, Source: shared.CurrentBar}
		}
	}

	var pullback *Pullback
	switch entryType {
	case shared.PullbackEntry:
		pullback = CheckForPullback(c, bar, direction)
		if pullback == nil || len(pullback.GreenBars) == 0 || len(pullback.ColoredBars) == 0 {
			return declined("no pullback for %s", direction.String())
		}

	case shared.SweetSpotEntry:
		pullback = CheckForPullback(c, bar, direction)
		if pullback == nil {
			return declined("no pullback for %s sweet spot", direction.String())
		}
		if sig.Stop == nil {
			return insufficient("bar has no one minute stop")
		}

		var distance float64
		switch direction {
		case shared.Long:
			distance = pullback.Extreme() - *sig.Stop
		default:
			distance = *sig.Stop - pullback.Extreme()
		}

		if distance > settings.SweetSpotMinDistance {
			return declined("pullback extreme %.2f is %.2f points from the signal stop",
				pullback.Extreme(), distance)
		}
	}

	pos, err := position.NewPosition(direction, entryType, bar.Date(), entry, settings.PositionSize, *stop)
	if err != nil {
		return declined("creating position: %v", err)
	}

	return EntryResult{
		Status:   Found,
		Position: pos,
		Pullback: pullback,
		Reason: fmt.Sprintf("%s %s entry, risk %.2f, stop from %s", entryType.String(),
			direction.String(), pos.Risk(), stop.Source.String()),
	}
}
