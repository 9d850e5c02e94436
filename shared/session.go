package shared

import (
	"fmt"
	"time"
)

// Clock represents a time of day, in minutes after midnight.
type Clock int

// ParseClock parses a "15:04" formatted time of day.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(SessionTimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("parsing clock time %q: %w", s, err)
	}

	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the time of day of the provided time in the provided location.
func ClockOf(t time.Time, loc *time.Location) Clock {
	if loc != nil {
		t = t.In(loc)
	}

	return Clock(t.Hour()*60 + t.Minute())
}

// String stringifies the provided clock.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText encodes the clock as "15:04".
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a "15:04" clock.
func (c *Clock) UnmarshalText(text []byte) error {
	clock, err := ParseClock(string(text))
	if err != nil {
		return err
	}

	*c = clock
	return nil
}

// TimeWindow represents a daily time of day interval, the start is inclusive and the end
// exclusive.
type TimeWindow struct {
	Start Clock `yaml:"start"`
	End   Clock `yaml:"end"`
}

// NewTimeWindow initializes a new time window from "15:04" formatted bounds.
func NewTimeWindow(start string, end string) (TimeWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parsing window start: %w", err)
	}

	e, err := ParseClock(end)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("parsing window end: %w", err)
	}

	return TimeWindow{Start: s, End: e}, nil
}

// Contains checks whether the provided time falls within the window.
func (w TimeWindow) Contains(t time.Time, loc *time.Location) bool {
	clock := ClockOf(t, loc)
	if w.End < w.Start {
		// The window wraps around midnight.
		return clock >= w.Start || clock < w.End
	}

	return clock >= w.Start && clock < w.End
}

// String stringifies the provided window.
func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// TradingDay returns the calendar day the provided time belongs to in the provided location.
func TradingDay(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
