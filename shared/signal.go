package shared

import (
	"time"
)

// Color represents the trend color of a signal.
type Color int

const (
	// Green marks a neutral or pulling back trend.
	Green Color = iota
	// Blue marks an up trend.
	Blue
	// Red marks a down trend.
	Red
)

// String stringifies the provided color.
func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Red:
		return "red"
	default:
		return "unknown"
	}
}

// ParseColor parses the provided color string, defaulting to green.
func ParseColor(s string) Color {
	switch s {
	case "blue":
		return Blue
	case "red":
		return Red
	default:
		return Green
	}
}

// EntryColor returns the bar color that confirms the provided direction.
func EntryColor(direction Direction) Color {
	switch direction {
	case Long:
		return Blue
	case Short:
		return Red
	default:
		return Green
	}
}

// ReversalColor returns the bar color that opposes the provided direction.
func ReversalColor(direction Direction) Color {
	switch direction {
	case Long:
		return Red
	case Short:
		return Blue
	default:
		return Green
	}
}

// Signal represents a trend signal for a timeframe.
type Signal struct {
	Date      time.Time
	Timeframe Timeframe
	Color     Color
	Direction Direction
	Stop      *float64
}

// NewSignal initializes a new signal. A zero or negative stop is treated as absent.
func NewSignal(date time.Time, timeframe Timeframe, color Color, direction Direction, stop float64) Signal {
	sig := Signal{
		Date:      date,
		Timeframe: timeframe,
		Color:     color,
		Direction: direction,
	}

	if stop > 0 {
		sig.Stop = &stop
	}

	return sig
}

// HasStop checks whether the signal carries a stop level.
func (s *Signal) HasStop() bool {
	return s.Stop != nil
}
