package account

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TrackerConfig represents the account tracker configuration.
type TrackerConfig struct {
	// PointValue is the currency value of a point per contract.
	PointValue float64
	// InitialBalance is the starting balance of both books.
	InitialBalance float64
	// MaxDrawdown is the account drawdown that moves a live account to sim mode.
	MaxDrawdown float64
	// RecoveryToLive is the model recovery above the latest trough that moves a sim account back
	// to the broker on probation.
	RecoveryToLive float64
	// ProbationMaxDrawdown is the account drawdown since probation started that moves the account
	// back to sim mode.
	ProbationMaxDrawdown float64
	// Location is the time zone trading days are expressed in.
	Location *time.Location
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// Validate asserts the config has sane inputs.
func (cfg *TrackerConfig) Validate() error {
	var errs error

	if cfg.PointValue <= 0 {
		errs = errors.Join(errs, fmt.Errorf("point value must be positive, got %f", cfg.PointValue))
	}
	if cfg.MaxDrawdown <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max drawdown must be positive, got %f", cfg.MaxDrawdown))
	}
	if cfg.RecoveryToLive <= 0 {
		errs = errors.Join(errs, fmt.Errorf("recovery to live must be positive, got %f", cfg.RecoveryToLive))
	}
	if cfg.ProbationMaxDrawdown <= 0 {
		errs = errors.Join(errs, fmt.Errorf("probation max drawdown must be positive, got %f",
			cfg.ProbationMaxDrawdown))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("no location provided"))
	}

	return errs
}

// Tracker tracks the account books, the trading mode transitions and the daily profit of settled
// trades.
type Tracker struct {
	cfg                  *TrackerConfig
	pointValue           decimal.Decimal
	maxDrawdown          decimal.Decimal
	recoveryToLive       decimal.Decimal
	probationMaxDrawdown decimal.Decimal
	state                State
	daily                map[time.Time]decimal.Decimal
	mtx                  sync.RWMutex
	logger               zerolog.Logger
}

// NewTracker initializes a new account tracker.
func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating account config: %w", err)
	}

	return &Tracker{
		cfg:                  cfg,
		pointValue:           decimal.NewFromFloat(cfg.PointValue),
		maxDrawdown:          decimal.NewFromFloat(cfg.MaxDrawdown),
		recoveryToLive:       decimal.NewFromFloat(cfg.RecoveryToLive),
		probationMaxDrawdown: decimal.NewFromFloat(cfg.ProbationMaxDrawdown),
		state:                NewState(decimal.NewFromFloat(cfg.InitialBalance)),
		daily:                make(map[time.Time]decimal.Decimal),
		logger:               cfg.Logger.With().Str("component", "account").Logger(),
	}, nil
}

// State returns a copy of the account state.
func (t *Tracker) State() State {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	return t.state
}

// SimMode checks whether orders should be routed to the paper gateway.
func (t *Tracker) SimMode() bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	return t.state.SimMode
}

// Restore replaces the account state with a persisted one. The provided trades rebuild the daily
// profit book without touching the balances.
func (t *Tracker) Restore(state State, trades []position.Trade) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	t.state = state
	t.daily = make(map[time.Time]decimal.Decimal)
	for idx := range trades {
		t.recordDaily(&trades[idx])
	}

	t.logger.Info().Msgf("restored account state, %s", t.state.String())
}

// recordDaily adds the provided trade's profit to its trading day.
//
// This assumes the caller is holding the tracker lock.
func (t *Tracker) recordDaily(trade *position.Trade) {
	day := shared.TradingDay(trade.ExitTime, t.cfg.Location)
	profit := decimal.NewFromFloat(trade.Profit()).Mul(decimal.NewFromInt(int64(trade.Size)))
	t.daily[day] = t.daily[day].Add(profit)
}

// Settle applies the provided closed trade to the account books and evaluates mode transitions.
// The resulting state is returned.
func (t *Tracker) Settle(trade position.Trade) State {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	size := decimal.NewFromInt(int64(trade.Size))
	commission := decimal.NewFromFloat(trade.Commission)
	ideal := decimal.NewFromFloat(trade.IdealProfit()).Mul(size).Mul(t.pointValue)
	actual := decimal.NewFromFloat(trade.Profit()).Mul(size).Mul(t.pointValue).Sub(commission)

	s := &t.state
	s.ModelBalance = s.ModelBalance.Add(ideal)
	if s.ModelBalance.GreaterThan(s.ModelPeak) {
		s.ModelPeak = s.ModelBalance
	}
	if s.ModelBalance.LessThan(s.LatestTrough) {
		s.LatestTrough = s.ModelBalance
	}

	if !trade.Simulated {
		s.AccBalance = s.AccBalance.Add(actual)
		if s.AccBalance.GreaterThan(s.AccPeak) {
			s.AccPeak = s.AccBalance
		}
	}

	t.recordDaily(&trade)

	before := s.Mode()
	t.transition()
	after := s.Mode()

	if before != after {
		t.logger.Info().Msgf("account mode %s -> %s, %s", before.String(), after.String(), s.String())
	}

	return t.state
}

// transition applies the mode rules to the current state.
//
// This assumes the caller is holding the tracker lock.
func (t *Tracker) transition() {
	s := &t.state

	switch s.Mode() {
	case Live:
		if s.AccDrawdown().GreaterThanOrEqual(t.maxDrawdown) {
			s.SimMode = true
			s.LatestTrough = s.ModelBalance
		}

	case Sim:
		if s.ModelBalance.Sub(s.LatestTrough).GreaterThanOrEqual(t.recoveryToLive) {
			s.SimMode = false
			s.ProbationMode = true
			s.ProbationStart = s.AccBalance
		}

	case Probation:
		switch {
		case s.AccBalance.GreaterThan(s.ProbationStart) && s.AccBalance.Equal(s.AccPeak):
			s.ProbationMode = false

		case s.ProbationDrawdown().GreaterThanOrEqual(t.probationMaxDrawdown):
			s.ProbationMode = false
			s.SimMode = true
			s.LatestTrough = s.ModelBalance
		}
	}
}

// DailyPNL returns the profit in points of the trades settled on the trading day of the provided
// time.
func (t *Tracker) DailyPNL(at time.Time) float64 {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	pnl, _ := t.daily[shared.TradingDay(at, t.cfg.Location)].Float64()
	return pnl
}

// Halted checks whether new entries are halted for the trading day of the provided time.
func (t *Tracker) Halted(at time.Time, maxDailyLoss float64) bool {
	return t.DailyPNL(at) <= maxDailyLoss
}
