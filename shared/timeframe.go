package shared

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	// SessionTimeLayout is the format layout for parsing session times in a day.
	SessionTimeLayout = "15:04"
	// DateLayout is the format layout for parsing dates.
	DateLayout = "2006-01-02 15:04:05"
	// NewYorkLocation is the locale trading hours are expressed in.
	NewYorkLocation = "America/New_York"
)

// Timeframe represents the interval a trend signal was computed on.
type Timeframe int

const (
	OneMinute Timeframe = iota
	TwoMinute
	ThreeMinute
)

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1m"
	case TwoMinute:
		return "2m"
	case ThreeMinute:
		return "3m"
	default:
		return "unknown"
	}
}

// Duration returns the bar duration of the provided timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case TwoMinute:
		return time.Minute * 2
	case ThreeMinute:
		return time.Minute * 3
	default:
		return time.Minute
	}
}

// ParseTimeframe parses the provided timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1m", "1":
		return OneMinute, nil
	case "2m", "2":
		return TwoMinute, nil
	case "3m", "3":
		return ThreeMinute, nil
	default:
		return OneMinute, fmt.Errorf("unknown timeframe provided: %s", s)
	}
}

// NewYorkTime returns the current time in new york (EST/EDT adjusted automatically).
func NewYorkTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}

// NextInterval returns the close of the bar currently forming for the provided timeframe.
func NextInterval(timeframe Timeframe, current time.Time) time.Time {
	return current.Truncate(timeframe.Duration()).Add(timeframe.Duration())
}

// SameMinute checks whether both times fall within the same wall clock minute.
func SameMinute(a time.Time, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}
