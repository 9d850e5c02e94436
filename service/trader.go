package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/abletrend/bot"
	"github.com/dnldd/abletrend/fetch"
	"github.com/dnldd/abletrend/notify"
	"github.com/dnldd/abletrend/session"
	"github.com/dnldd/abletrend/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// flattenGrace is how long after the flat positions time a lingering position gets flattened.
	flattenGrace = 2
	// barCloseTimeout bounds the wait for a bar's actions to execute, a new bar closes by then.
	barCloseTimeout = time.Minute
)

// TraderConfig represents the configuration of the trading service.
type TraderConfig struct {
	// Ticker is the traded instrument.
	Ticker string
	// Bot decides and executes the trade actions of every closed bar.
	Bot *bot.Bot
	// Session is the session manager the bot executes through.
	Session *session.Manager
	// Hub fans session events out to subscribers.
	Hub *notify.Hub
	// Source provides chart snapshots in live mode.
	Source fetch.Source
	// Historic provides the bars replayed in backtest mode.
	Historic *fetch.HistoricData
	// Backtest is the backtesting flag.
	Backtest bool
	// Location is the exchange time zone jobs are scheduled in.
	Location *time.Location
	// BarCloseDelay is the number of seconds after the minute the closed bar is fetched.
	BarCloseDelay int
	// RefreshInterval is the interval between broker status refreshes.
	RefreshInterval time.Duration
	// FlatPositionsTime is the time of day every position must be flat by.
	FlatPositionsTime shared.Clock
	// Cancel is the context cancellation function, called once a backtest completes.
	Cancel context.CancelFunc
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TraderConfig) Validate() error {
	var errs error

	if cfg.Bot == nil {
		errs = errors.Join(errs, fmt.Errorf("no bot provided"))
	}
	if cfg.Session == nil {
		errs = errors.Join(errs, fmt.Errorf("no session manager provided"))
	}
	if cfg.Hub == nil {
		errs = errors.Join(errs, fmt.Errorf("no notification hub provided"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.Historic == nil {
			errs = errors.Join(errs, fmt.Errorf("no historic data provided for backtest"))
		}
	case false:
		if cfg.Source == nil {
			errs = errors.Join(errs, fmt.Errorf("no market data source provided"))
		}
		if cfg.Location == nil {
			errs = errors.Join(errs, fmt.Errorf("no location provided"))
		}
		if cfg.BarCloseDelay < 0 || cfg.BarCloseDelay > 59 {
			errs = errors.Join(errs, fmt.Errorf("bar close delay must be within [0, 59] seconds, got %d",
				cfg.BarCloseDelay))
		}
		if cfg.RefreshInterval <= 0 {
			errs = errors.Join(errs, fmt.Errorf("refresh interval must be positive"))
		}
	}

	return errs
}

// Trader represents the trading service.
type Trader struct {
	cfg          *TraderConfig
	jobScheduler *gocron.Scheduler
	report       *bot.Report
	reportMtx    sync.Mutex
	logger       zerolog.Logger
	wg           sync.WaitGroup
}

// NewTrader initializes a new trading service.
func NewTrader(cfg *TraderConfig) (*Trader, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating trader config: %w", err)
	}

	t := &Trader{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("service", "trader").Logger(),
	}

	if !cfg.Backtest {
		t.jobScheduler = gocron.NewScheduler(cfg.Location)
		err = t.scheduleJobs()
		if err != nil {
			return nil, fmt.Errorf("scheduling jobs: %w", err)
		}
	}

	return t, nil
}

// scheduleJobs registers the live trading jobs.
func (t *Trader) scheduleJobs() error {
	_, err := t.jobScheduler.CronWithSeconds(fmt.Sprintf("%d * * * * 1-5", t.cfg.BarCloseDelay)).
		SingletonMode().Do(t.handleBarClose)
	if err != nil {
		return fmt.Errorf("scheduling bar close job: %w", err)
	}

	_, err = t.jobScheduler.Every(t.cfg.RefreshInterval).SingletonMode().Do(t.handleStatusRefresh)
	if err != nil {
		return fmt.Errorf("scheduling status refresh job: %w", err)
	}

	flatten := t.cfg.FlatPositionsTime + flattenGrace
	_, err = t.jobScheduler.Cron(fmt.Sprintf("%d %d * * 1-5", int(flatten)%60, int(flatten)/60)).
		Do(t.handleFlatten)
	if err != nil {
		return fmt.Errorf("scheduling flatten job: %w", err)
	}

	return nil
}

// handleBarClose fetches the latest chart and submits the actions of its last closed bar to the
// session.
func (t *Trader) handleBarClose() {
	ctx, cancel := context.WithTimeout(context.Background(), barCloseTimeout)
	defer cancel()

	c, err := t.cfg.Source.FetchChart(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("fetching chart")
		return
	}

	actions, err := t.cfg.Bot.Submit(ctx, c)
	if err != nil {
		t.logger.Error().Err(err).Msg("submitting bar actions")
		return
	}

	t.logger.Debug().Msgf("processed %d actions for %s", len(actions), c.Ticker)
}

// handleStatusRefresh reconciles the tracked position with the broker.
func (t *Trader) handleStatusRefresh() {
	err := t.cfg.Session.RefreshStatus(context.Background())
	if err != nil {
		t.logger.Error().Err(err).Msg("refreshing status")
	}
}

// handleFlatten flattens a position still open after the flat positions time.
func (t *Trader) handleFlatten() {
	pos := t.cfg.Session.Position()
	if pos == nil {
		return
	}

	t.logger.Warn().Msgf("%s still open after %s, force flattening", pos.String(),
		t.cfg.FlatPositionsTime.String())

	err := t.cfg.Session.ForceFlatten(context.Background())
	if err != nil {
		t.logger.Error().Err(err).Msg("force flattening")
	}
}

// Report returns the backtest report, nil until a backtest completes.
func (t *Trader) Report() *bot.Report {
	t.reportMtx.Lock()
	defer t.reportMtx.Unlock()

	return t.report
}

// backtest replays the historic data and cancels the service context once done.
func (t *Trader) backtest(ctx context.Context) {
	defer t.cfg.Cancel()

	report, err := t.cfg.Bot.Replay(ctx, t.cfg.Historic.FetchTicker(), t.cfg.Historic.Bars())
	if err != nil {
		t.logger.Error().Err(err).Msg("replaying historic data")
		return
	}

	t.reportMtx.Lock()
	t.report = report
	t.reportMtx.Unlock()

	for idx := range report.Trades {
		t.logger.Info().Msgf("trade %d: %s", idx+1, report.Trades[idx].String())
	}

	t.logger.Info().Msgf("backtest for %s done: %s", t.cfg.Historic.FetchTicker(), report.String())
}

// Run handles the lifecycle processes of the trading service.
func (t *Trader) Run(ctx context.Context) {
	t.wg.Add(2)

	go func() {
		t.cfg.Hub.Run(ctx)
		t.wg.Done()
	}()

	go func() {
		t.cfg.Session.Run(ctx)
		t.wg.Done()
	}()

	switch t.cfg.Backtest {
	case true:
		t.backtest(ctx)

	case false:
		t.jobScheduler.StartAsync()
		t.logger.Info().Msgf("trading %s live, bar close at second %d of every minute", t.cfg.Ticker,
			t.cfg.BarCloseDelay)

		<-ctx.Done()
		t.jobScheduler.Stop()
	}

	t.wg.Wait()
}
