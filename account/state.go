package account

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mode represents the trading mode of an account.
type Mode int

const (
	// Live routes orders to the broker.
	Live Mode = iota
	// Sim routes orders to the paper gateway after a drawdown.
	Sim
	// Probation routes orders to the broker until the account sets a new peak.
	Probation
)

// String stringifies the provided mode.
func (m Mode) String() string {
	switch m {
	case Live:
		return "live"
	case Sim:
		return "sim"
	case Probation:
		return "probation"
	default:
		return "unknown"
	}
}

// State represents the balances and mode of an account. The model book tracks every trade at
// ideal prices, the account book tracks live trades at actual prices.
type State struct {
	SimMode       bool
	ProbationMode bool
	ModelBalance  decimal.Decimal
	AccBalance    decimal.Decimal
	ModelPeak     decimal.Decimal
	AccPeak       decimal.Decimal
	// LatestTrough is the lowest model balance since the account last entered sim mode.
	LatestTrough decimal.Decimal
	// ProbationStart is the account balance when probation started.
	ProbationStart decimal.Decimal
}

// NewState initializes a live account state at the provided balance.
func NewState(balance decimal.Decimal) State {
	return State{
		ModelBalance:   balance,
		AccBalance:     balance,
		ModelPeak:      balance,
		AccPeak:        balance,
		LatestTrough:   balance,
		ProbationStart: balance,
	}
}

// Mode returns the trading mode of the state.
func (s *State) Mode() Mode {
	switch {
	case s.SimMode:
		return Sim
	case s.ProbationMode:
		return Probation
	default:
		return Live
	}
}

// ModelDrawdown returns the distance of the model balance from its peak.
func (s *State) ModelDrawdown() decimal.Decimal {
	return s.ModelPeak.Sub(s.ModelBalance)
}

// AccDrawdown returns the distance of the account balance from its peak.
func (s *State) AccDrawdown() decimal.Decimal {
	return s.AccPeak.Sub(s.AccBalance)
}

// ProbationDrawdown returns the distance of the account balance below its balance when
// probation started.
func (s *State) ProbationDrawdown() decimal.Decimal {
	return s.ProbationStart.Sub(s.AccBalance)
}

// String stringifies the provided state.
func (s *State) String() string {
	return fmt.Sprintf("%s: model %s (peak %s), account %s (peak %s), trough %s",
		s.Mode().String(), s.ModelBalance.StringFixed(2), s.ModelPeak.StringFixed(2),
		s.AccBalance.StringFixed(2), s.AccPeak.StringFixed(2), s.LatestTrough.StringFixed(2))
}
