package engine

import (
	"fmt"
	"time"

	"github.com/dnldd/abletrend/chart"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
	"github.com/rs/zerolog"
)

// EngineConfig represents the decision engine configuration.
type EngineConfig struct {
	// Settings represents the strategy settings.
	Settings Settings
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Engine decides the trade actions of the last closed bar of a chart. It holds no state besides
// its configuration, decisions are a pure function of the chart, the open position and the
// trade history.
type Engine struct {
	cfg *EngineConfig
	loc *time.Location
}

// NewEngine initializes a new decision engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Settings.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating settings: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Settings.Location)
	if err != nil {
		return nil, fmt.Errorf("loading settings location: %w", err)
	}

	return &Engine{cfg: cfg, loc: loc}, nil
}

// Settings returns the engine's strategy settings.
func (e *Engine) Settings() Settings {
	return e.cfg.Settings
}

// Location returns the time zone the engine evaluates windows in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Decide returns the trade actions for the last closed bar of the provided chart. The provided
// position is a snapshot of the open position, nil when flat, and is never mutated.
func (e *Engine) Decide(c *chart.Chart, pos *position.Position, trades []position.Trade) []TradeAction {
	bar := c.LastClosedBar()
	if bar == nil {
		return []TradeAction{noAction(time.Time{}, "need at least 2 bars, have %d", c.Len())}
	}

	prev := c.PreviousBar(bar.ID)
	if prev == nil {
		return []TradeAction{noAction(bar.Date(), "no bar precedes %s", bar.Date().Format(shared.DateLayout))}
	}

	if pos == nil {
		return []TradeAction{e.handleOpeningNewTrade(c, bar, trades)}
	}

	return e.handleOpenPosition(c, prev, bar, pos, trades)
}

// handleOpeningNewTrade looks for an entry on the provided bar while flat.
func (e *Engine) handleOpeningNewTrade(c *chart.Chart, bar *shared.PriceBar, trades []position.Trade) TradeAction {
	result := e.seekEntry(c, bar, trades)
	if result.Status != Found {
		e.cfg.Logger.Debug().Msgf("no entry at %s (%s): %s", bar.Date().Format(shared.DateLayout),
			result.Status.String(), result.Reason)
		return noAction(bar.Date(), "%s", result.Reason)
	}

	return TradeAction{
		Kind:     OpenPosition,
		BarTime:  bar.Date(),
		Position: result.Position,
		Reason:   result.Reason,
	}
}

// entryTypeFor picks how strict the entry criteria for the provided bar are.
func (e *Engine) entryTypeFor(c *chart.Chart, bar *shared.PriceBar, direction shared.Direction, trades []position.Trade) shared.EntryType {
	settings := &e.cfg.Settings
	if settings.HighRiskEntryWindow.Contains(bar.Date(), e.loc) {
		return shared.InitialEntry
	}

	if len(trades) == 0 {
		return shared.SweetSpotEntry
	}

	last := trades[len(trades)-1]
	switch {
	case shared.SameMinute(last.ExitTime, bar.Date()):
		// Re-enter aggressively after an immediate stop out.
		return shared.InitialEntry

	case c.SameDirectionRange(direction, shared.BarID(last.ExitTime), bar.ID):
		// Still in the move the last trade was in, avoid chasing it.
		if last.IdealProfit() > settings.ProfitRequiredToReenterOnPullback {
			return shared.PullbackEntry
		}
		return shared.SweetSpotEntry

	default:
		return shared.InitialEntry
	}
}

// seekEntry evaluates the provided bar for a fresh entry.
func (e *Engine) seekEntry(c *chart.Chart, bar *shared.PriceBar, trades []position.Trade) EntryResult {
	settings := &e.cfg.Settings
	at := bar.Date()

	daily := position.DailyProfit(trades, at, e.loc)
	if daily <= settings.MaxDailyLoss {
		return declined("daily profit %.2f at or below max daily loss %.2f", daily, settings.MaxDailyLoss)
	}

	if !settings.BypassTradingRestrictions && !settings.TradingWindow.Contains(at, e.loc) {
		return declined("%s is outside the trading window %s",
			shared.ClockOf(at, e.loc).String(), settings.TradingWindow.String())
	}

	direction := bar.Direction()
	if direction == shared.NoDirection {
		return insufficient("bar has no one minute signal direction")
	}

	entryType := e.entryTypeFor(c, bar, direction, trades)

	return CheckForEntrySignal(c, bar, direction, entryType, settings, e.loc)
}

// handleOpenPosition applies the exit rules to the open position in priority order, trailing
// the stop when no exit applies.
func (e *Engine) handleOpenPosition(c *chart.Chart, prev *shared.PriceBar, bar *shared.PriceBar, pos *position.Position, trades []position.Trade) []TradeAction {
	settings := &e.cfg.Settings
	at := bar.Date()
	clock := shared.ClockOf(at, e.loc)
	candle := bar.Candle

	if clock >= settings.FlatPositionsTime {
		return []TradeAction{{
			Kind:       ForceClosePosition,
			BarTime:    at,
			Closing:    pos,
			ExitPrice:  candle.Close,
			ExitMethod: shared.EndOfDay,
			Reason:     fmt.Sprintf("flat positions time %s reached", settings.FlatPositionsTime.String()),
		}}
	}

	if clock >= settings.ClearPositionTime && bar.BarColor() == shared.EntryColor(pos.Direction) {
		return []TradeAction{{
			Kind:       ForceClosePosition,
			BarTime:    at,
			Closing:    pos,
			ExitPrice:  candle.Close,
			ExitMethod: shared.EndOfDay,
			Reason: fmt.Sprintf("clear position time %s reached on a %s bar",
				settings.ClearPositionTime.String(), bar.BarColor().String()),
		}}
	}

	if pos.StopHit(&candle) {
		method := shared.ExitMethodFor(pos.StopLoss.Source)
		closing := TradeAction{
			Kind:       VerifyPositionClosed,
			BarTime:    at,
			Closing:    pos,
			ExitPrice:  pos.StopLoss.Stop,
			ExitMethod: method,
			Reason:     fmt.Sprintf("stop %s hit", pos.StopLoss.String()),
		}

		actions := []TradeAction{closing}
		next := e.seekEntry(c, bar, withExit(trades, pos, at, pos.StopLoss.Stop, method))
		if next.Status == Found {
			actions = append(actions, TradeAction{
				Kind:     OpenPosition,
				BarTime:  at,
				Position: next.Position,
				Reason:   next.Reason,
			})
		}

		return actions
	}

	if bar.BarColor() == shared.ReversalColor(pos.Direction) {
		reason := fmt.Sprintf("%s bar against %s position", bar.BarColor().String(), pos.Direction.String())
		next := e.seekEntry(c, bar, withExit(trades, pos, at, candle.Close, shared.SignalReversed))
		if next.Status == Found {
			return []TradeAction{{
				Kind:       ReversePosition,
				BarTime:    at,
				Position:   next.Position,
				Closing:    pos,
				ExitPrice:  candle.Close,
				ExitMethod: shared.SignalReversed,
				Reason:     reason + ", " + next.Reason,
			}}
		}

		return []TradeAction{{
			Kind:       ForceClosePosition,
			BarTime:    at,
			Closing:    pos,
			ExitPrice:  candle.Close,
			ExitMethod: shared.SignalReversed,
			Reason:     reason,
		}}
	}

	return []TradeAction{e.trailStop(c, prev, bar, pos)}
}

// trailStop moves the stop of the open position to the more favorable of the two green bars
// stop and the previous support or resistance level. Stops never loosen.
func (e *Engine) trailStop(c *chart.Chart, prev *shared.PriceBar, bar *shared.PriceBar, pos *position.Position) TradeAction {
	settings := &e.cfg.Settings
	candidates := make([]position.StopLoss, 0, 2)

	if pos.SecuredProfit() < settings.ProfitRequiredAbandonTwoGreenBarsExit {
		stop := twoGreenBarsStop(prev, bar, pos, settings)
		if stop != nil {
			candidates = append(candidates, *stop)
		}
	}

	level, ok := FindPreviousLevel(c, bar, pos.Direction, minimalLevelDistance)
	if ok {
		candidates = append(candidates, position.StopLoss{Stop: level, Source: shared.SupportResistanceLevel})
	}

	var winner *position.StopLoss
	for idx := range candidates {
		candidate := candidates[idx]

		// A stop on the wrong side of the close would exit immediately.
		if !position.MoreFavorable(pos.Direction, bar.Candle.Close, candidate.Stop) {
			continue
		}

		// Ties keep the first computed candidate.
		if winner == nil || position.MoreFavorable(pos.Direction, candidate.Stop, winner.Stop) {
			winner = &candidate
		}
	}

	if winner == nil {
		return noAction(bar.Date(), "no stop candidate for %s position", pos.Direction.String())
	}

	if !position.MoreFavorable(pos.Direction, winner.Stop, pos.StopLoss.Stop) {
		return noAction(bar.Date(), "stop %s holds over candidate %s", pos.StopLoss.String(), winner.String())
	}

	return TradeAction{
		Kind:    UpdateStop,
		BarTime: bar.Date(),
		Stop:    *winner,
		Reason:  fmt.Sprintf("trail stop from %s to %s", pos.StopLoss.String(), winner.String()),
	}
}

// withExit returns the provided trades followed by the trade the provided position would become
// if exited at the provided price.
func withExit(trades []position.Trade, pos *position.Position, at time.Time, price float64, method shared.ExitMethod) []position.Trade {
	set := make([]position.Trade, 0, len(trades)+1)
	set = append(set, trades...)

	return append(set, pos.Close(at, price, nil, method, 0))
}
