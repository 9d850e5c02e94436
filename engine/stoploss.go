package engine

import (
	"math"

	"github.com/dnldd/abletrend/chart"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
)

const (
	// minimalLevelDistance is the minimum distance in points between the entry level and a
	// previous level for the latter to count as a distinct shelf.
	minimalLevelDistance = 1.0
	// levelOffset is the number of points stops are placed beyond the level they derive from.
	levelOffset = 1.0
)

// roundLevel rounds the provided price to the nearest half point away from the market, down for
// longs and up for shorts.
func roundLevel(price float64, direction shared.Direction) float64 {
	switch direction {
	case shared.Short:
		return math.Ceil(price*2) / 2
	default:
		return math.Floor(price*2) / 2
	}
}

// FindPreviousLevel walks back from the provided bar while the one minute signal keeps the
// provided direction and returns the first stop level lying more than the minimal distance below
// (longs) or above (shorts) the bar's own level. When no such shelf exists the bar's own level
// offset by a point against the position is returned. False is returned if the bar's one minute
// signal does not carry the provided direction and a stop.
func FindPreviousLevel(c *chart.Chart, bar *shared.PriceBar, direction shared.Direction, minimalDistance float64) (float64, bool) {
	sig := bar.OneMinSignal()
	if sig == nil || sig.Direction != direction || sig.Stop == nil {
		return 0, false
	}

	entryLevel := roundLevel(*sig.Stop, direction)

	for prev := c.PreviousBar(bar.ID); prev != nil; prev = c.PreviousBar(prev.ID) {
		prevSig := prev.OneMinSignal()
		if prevSig == nil || prevSig.Direction != direction {
			break
		}
		if prevSig.Stop == nil {
			continue
		}

		level := roundLevel(*prevSig.Stop, direction)
		switch direction {
		case shared.Long:
			if entryLevel-level > minimalDistance {
				return level, true
			}
		case shared.Short:
			if level-entryLevel > minimalDistance {
				return level, true
			}
		}
	}

	switch direction {
	case shared.Long:
		return entryLevel - levelOffset, true
	default:
		return entryLevel + levelOffset, true
	}
}

// CalculateStopLoss calculates the stop of an entry on the provided bar. The previous support or
// resistance level is preferred when it fits the max risk, otherwise the stop is derived from the
// bar itself. Nil is returned when the bar's one minute signal does not back the direction.
func CalculateStopLoss(c *chart.Chart, bar *shared.PriceBar, direction shared.Direction, settings *Settings) *position.StopLoss {
	level, ok := FindPreviousLevel(c, bar, direction, minimalLevelDistance)
	if !ok {
		return nil
	}

	candle := bar.Candle
	switch direction {
	case shared.Long:
		distance := candle.Close - level
		if distance > 0 && distance <= settings.MaxRisk {
			return &position.StopLoss{Stop: level, Source: shared.SupportResistanceLevel}
		}

		stop := math.Min(candle.Low-levelOffset, candle.Close-settings.MinBarStop)
		return &position.StopLoss{Stop: stop, Source: shared.CurrentBar}

	case shared.Short:
		distance := level - candle.Close
		if distance > 0 && distance <= settings.MaxRisk {
			return &position.StopLoss{Stop: level, Source: shared.SupportResistanceLevel}
		}

		stop := math.Max(candle.High+levelOffset, candle.Close+settings.MinBarStop)
		return &position.StopLoss{Stop: stop, Source: shared.CurrentBar}
	}

	return nil
}

// twoGreenBarsStop calculates a stop from two consecutive green bars. The stop sits a point
// beyond the half point rounded extreme of both bars and is only returned when it stays on the
// position's side of the one minute stop and secures the minimum profit.
func twoGreenBarsStop(prev *shared.PriceBar, bar *shared.PriceBar, pos *position.Position, settings *Settings) *position.StopLoss {
	if prev.BarColor() != shared.Green || bar.BarColor() != shared.Green {
		return nil
	}

	sig := bar.OneMinSignal()
	if sig == nil || sig.Stop == nil {
		return nil
	}

	signalStop := *sig.Stop
	entry := pos.EntryPrice()

	switch pos.Direction {
	case shared.Long:
		if prev.Candle.Close <= signalStop || bar.Candle.Close <= signalStop {
			return nil
		}

		stop := roundLevel(math.Min(prev.Candle.Low, bar.Candle.Low), shared.Long) - levelOffset
		if stop <= signalStop || stop-entry < settings.MinProfitToUseTwoGreenBarsExit {
			return nil
		}
		if stop-signalStop < levelOffset {
			stop = signalStop + levelOffset
		}

		return &position.StopLoss{Stop: stop, Source: shared.TwoGreenBars}

	case shared.Short:
		if prev.Candle.Close >= signalStop || bar.Candle.Close >= signalStop {
			return nil
		}

		stop := roundLevel(math.Max(prev.Candle.High, bar.Candle.High), shared.Short) + levelOffset
		if stop >= signalStop || entry-stop < settings.MinProfitToUseTwoGreenBarsExit {
			return nil
		}
		if signalStop-stop < levelOffset {
			stop = signalStop - levelOffset
		}

		return &position.StopLoss{Stop: stop, Source: shared.TwoGreenBars}
	}

	return nil
}
