package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/abletrend/account"
	"github.com/dnldd/abletrend/chart"
	"github.com/dnldd/abletrend/engine"
	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/session"
	"github.com/dnldd/abletrend/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// BotConfig represents the trading bot configuration.
type BotConfig struct {
	// Engine decides the trade actions of every closed bar.
	Engine *engine.Engine
	// Session executes the decided trade actions.
	Session *session.Manager
	// Account reports the daily loss halt of the account books. Optional.
	Account *account.Tracker
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *BotConfig) Validate() error {
	var errs error

	if cfg.Engine == nil {
		errs = errors.Join(errs, fmt.Errorf("no decision engine provided"))
	}
	if cfg.Session == nil {
		errs = errors.Join(errs, fmt.Errorf("no session manager provided"))
	}

	return errs
}

// Bot drives the decision engine and the session on every bar close. Live trading and replays
// share the same step.
type Bot struct {
	cfg       *BotConfig
	haltedDay atomic.Time
	logger    zerolog.Logger
}

// NewBot initializes a new trading bot.
func NewBot(cfg *BotConfig) (*Bot, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating bot config: %w", err)
	}

	return &Bot{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "bot").Logger(),
	}, nil
}

// Decide returns the trade actions of the last closed bar of the provided chart.
func (b *Bot) Decide(c *chart.Chart) []engine.TradeAction {
	b.reportHalt(c)

	return b.cfg.Engine.Decide(c, b.cfg.Session.Position(), b.cfg.Session.Trades())
}

// reportHalt logs the daily loss halt of the account once per trading day. It returns true when
// the halt is first reported.
func (b *Bot) reportHalt(c *chart.Chart) bool {
	if b.cfg.Account == nil {
		return false
	}

	bar := c.LastClosedBar()
	if bar == nil {
		return false
	}

	at := bar.Date()
	maxDailyLoss := b.cfg.Engine.Settings().MaxDailyLoss
	if !b.cfg.Account.Halted(at, maxDailyLoss) {
		return false
	}

	day := shared.TradingDay(at, b.cfg.Engine.Location())
	if b.haltedDay.Load().Equal(day) {
		return false
	}
	b.haltedDay.Store(day)

	b.logger.Warn().Msgf("daily profit %.2f at or below max daily loss %.2f, entries halted for %s",
		b.cfg.Account.DailyPNL(at), maxDailyLoss, day.Format(time.DateOnly))

	return true
}

// Step decides and executes the trade actions of the last closed bar of the provided chart.
func (b *Bot) Step(ctx context.Context, c *chart.Chart) ([]engine.TradeAction, error) {
	actions := b.Decide(c)

	err := b.cfg.Session.Process(ctx, actions)
	if err != nil {
		return actions, err
	}

	return actions, nil
}

// Submit decides the trade actions of the last closed bar of the provided chart and queues them
// with the session, waiting for their outcome. The session must be running.
func (b *Bot) Submit(ctx context.Context, c *chart.Chart) ([]engine.TradeAction, error) {
	actions := b.Decide(c)
	if len(actions) == 0 {
		return nil, nil
	}

	done := make(chan error, 1)
	b.cfg.Session.SendActions(session.ActionBatch{Actions: actions, Done: done})

	select {
	case <-ctx.Done():
		return actions, ctx.Err()
	case err := <-done:
		return actions, err
	}
}

// Report represents the outcome of a replay.
type Report struct {
	Ticker string
	Bars   int
	Trades []position.Trade
	Wins   int
	Losses int
	// Profit is the actual profit in points across all trades and contracts.
	Profit float64
	// IdealProfit is the profit in points at the prices the engine decided on.
	IdealProfit float64
	// Errors is the number of bars whose actions failed to execute.
	Errors int
	// OpenPosition is the position still open when the replay ended.
	OpenPosition *position.Position
}

// WinRate returns the share of winning trades.
func (r *Report) WinRate() float64 {
	if len(r.Trades) == 0 {
		return 0
	}

	return float64(r.Wins) / float64(len(r.Trades))
}

// String stringifies the provided report.
func (r *Report) String() string {
	return fmt.Sprintf("%s: %d bars, %d trades (%d wins, %d losses, %.0f%% win rate), "+
		"profit %.2f pts (ideal %.2f pts), %d errors", r.Ticker, r.Bars, len(r.Trades), r.Wins,
		r.Losses, r.WinRate()*100, r.Profit, r.IdealProfit, r.Errors)
}

// Replay grows a chart from the provided bars one bar at a time, stepping after every bar.
func (b *Bot) Replay(ctx context.Context, ticker string, bars []*shared.PriceBar) (*Report, error) {
	c := chart.NewChart(ticker)
	report := &Report{Ticker: ticker}

	for idx := range bars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		err := c.Append(bars[idx])
		if err != nil {
			return nil, fmt.Errorf("appending bar %d: %w", idx, err)
		}
		report.Bars++

		_, err = b.Step(ctx, c)
		if err != nil {
			report.Errors++
			b.logger.Error().Err(err).Msgf("replaying bar %s", bars[idx].Date().Format(shared.DateLayout))
		}
	}

	report.Trades = b.cfg.Session.Trades()
	report.OpenPosition = b.cfg.Session.Position()

	for idx := range report.Trades {
		trade := &report.Trades[idx]
		size := float64(trade.Size)

		report.Profit += trade.Profit() * size
		report.IdealProfit += trade.IdealProfit() * size

		switch {
		case trade.Profit() > 0:
			report.Wins++
		default:
			report.Losses++
		}
	}

	b.logger.Info().Msg(report.String())

	return report, nil
}
