package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dnldd/abletrend/shared"
	"gopkg.in/yaml.v3"
)

// Settings represents the tunables of the trading strategy. Settings are an immutable snapshot
// for the lifetime of an engine.
type Settings struct {
	// MaxRisk is the maximum points risked on an entry.
	MaxRisk float64 `yaml:"max_risk"`
	// MinBarStop is the minimum stop distance in points for stops derived from the entry bar.
	MinBarStop float64 `yaml:"min_bar_stop"`
	// SweetSpotMinDistance is how close in points a pullback must come to the signal stop to
	// qualify as a sweet spot.
	SweetSpotMinDistance float64 `yaml:"sweet_spot_min_distance"`
	// MinProfitToUseTwoGreenBarsExit is the minimum profit in points a two green bars stop must
	// secure.
	MinProfitToUseTwoGreenBarsExit float64 `yaml:"min_profit_to_use_two_green_bars_exit"`
	// ProfitRequiredAbandonTwoGreenBarsExit is the secured profit in points beyond which two
	// green bars stops are no longer considered.
	ProfitRequiredAbandonTwoGreenBarsExit float64 `yaml:"profit_required_abandon_two_green_bars_exit"`
	// ProfitRequiredToReenterOnPullback is the profit in points the previous trade must have made
	// to allow pullback re-entries in the same move.
	ProfitRequiredToReenterOnPullback float64 `yaml:"profit_required_to_reenter_on_pullback"`
	// HighRiskEntryWindow is the window where wider risk is tolerated and entries are less gated.
	HighRiskEntryWindow shared.TimeWindow `yaml:"high_risk_entry_window"`
	// TradingWindow is the window new entries are allowed in.
	TradingWindow shared.TimeWindow `yaml:"trading_window"`
	// ClearPositionTime is the time after which positions are closed on a favorable bar.
	ClearPositionTime shared.Clock `yaml:"clear_position_time"`
	// FlatPositionsTime is the time after which positions are closed unconditionally.
	FlatPositionsTime shared.Clock `yaml:"flat_positions_time"`
	// MaxDailyLoss is the daily profit in points at or below which new entries halt.
	MaxDailyLoss float64 `yaml:"max_daily_loss"`
	// PositionSize is the number of contracts traded per entry.
	PositionSize int `yaml:"position_size"`
	// BypassTradingRestrictions disables the trading window gate.
	BypassTradingRestrictions bool `yaml:"bypass_trading_restrictions"`
	// Location is the time zone the windows are expressed in.
	Location string `yaml:"location"`
}

// DefaultSettings returns the default strategy settings.
func DefaultSettings() Settings {
	return Settings{
		MaxRisk:                               10,
		MinBarStop:                            3,
		SweetSpotMinDistance:                  2,
		MinProfitToUseTwoGreenBarsExit:        2,
		ProfitRequiredAbandonTwoGreenBarsExit: 20,
		ProfitRequiredToReenterOnPullback:     4,
		HighRiskEntryWindow:                   shared.TimeWindow{Start: 9*60 + 30, End: 9*60 + 32},
		TradingWindow:                         shared.TimeWindow{Start: 9*60 + 30, End: 15*60 + 50},
		ClearPositionTime:                     15*60 + 50,
		FlatPositionsTime:                     15*60 + 55,
		MaxDailyLoss:                          -50,
		PositionSize:                          1,
		Location:                              shared.NewYorkLocation,
	}
}

// Validate asserts the settings are sane.
func (s *Settings) Validate() error {
	var errs error

	if s.MaxRisk <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max risk must be positive, got %f", s.MaxRisk))
	}
	if s.MinBarStop <= 0 {
		errs = errors.Join(errs, fmt.Errorf("min bar stop must be positive, got %f", s.MinBarStop))
	}
	if s.SweetSpotMinDistance < 0 {
		errs = errors.Join(errs, fmt.Errorf("sweet spot min distance cannot be negative"))
	}
	if s.MinProfitToUseTwoGreenBarsExit < 0 {
		errs = errors.Join(errs, fmt.Errorf("min profit to use two green bars exit cannot be negative"))
	}
	if s.MaxDailyLoss > 0 {
		errs = errors.Join(errs, fmt.Errorf("max daily loss cannot be positive, got %f", s.MaxDailyLoss))
	}
	if s.PositionSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("position size must be positive, got %d", s.PositionSize))
	}
	if s.FlatPositionsTime < s.ClearPositionTime {
		errs = errors.Join(errs, fmt.Errorf("flat positions time %s precedes clear position time %s",
			s.FlatPositionsTime.String(), s.ClearPositionTime.String()))
	}
	if _, err := time.LoadLocation(s.Location); err != nil {
		errs = errors.Join(errs, fmt.Errorf("loading location %q: %w", s.Location, err))
	}

	return errs
}

// LoadSettings loads strategy settings from the provided yaml file, fields absent from the file
// keep their defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("reading settings file: %w", err)
	}

	err = yaml.Unmarshal(data, &settings)
	if err != nil {
		return settings, fmt.Errorf("parsing settings file: %w", err)
	}

	err = settings.Validate()
	if err != nil {
		return settings, fmt.Errorf("validating settings: %w", err)
	}

	return settings, nil
}
