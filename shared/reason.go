package shared

// Direction represents market direction.
type Direction int

const (
	NoDirection Direction = iota
	Long
	Short
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	case NoDirection:
		return "none"
	default:
		return "unknown"
	}
}

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return NoDirection
	}
}

// ParseDirection parses the provided direction string.
func ParseDirection(s string) Direction {
	switch s {
	case "long", "buy", "up":
		return Long
	case "short", "sell", "down":
		return Short
	default:
		return NoDirection
	}
}

// EntryType represents how strict the entry criteria applied to a setup are.
type EntryType int

const (
	// InitialEntry only requires signal confirmation.
	InitialEntry EntryType = iota
	// PullbackEntry requires a green run followed by a colored run.
	PullbackEntry
	// SweetSpotEntry requires a pullback that approached the signal stop.
	SweetSpotEntry
)

// String stringifies the provided entry type.
func (e EntryType) String() string {
	switch e {
	case InitialEntry:
		return "initial"
	case PullbackEntry:
		return "pullback"
	case SweetSpotEntry:
		return "sweet spot"
	default:
		return "unknown"
	}
}

// ExitMethod represents the reason a position was closed.
type ExitMethod int

const (
	UnknownExit ExitMethod = iota
	BrokeSupportResistance
	TwoGreenBarsExit
	SignalReversed
	EndOfDay
	ForceFlattened
)

// String stringifies the provided exit method.
func (e ExitMethod) String() string {
	switch e {
	case BrokeSupportResistance:
		return "broke support/resistance"
	case TwoGreenBarsExit:
		return "two green bars"
	case SignalReversed:
		return "signal reversed"
	case EndOfDay:
		return "end of day"
	case ForceFlattened:
		return "force flattened"
	default:
		return "unknown"
	}
}

// StopLossSource represents the method that produced a stop loss.
type StopLossSource int

const (
	SupportResistanceLevel StopLossSource = iota
	CurrentBar
	TwoGreenBars
)

// String stringifies the provided stop loss source.
func (s StopLossSource) String() string {
	switch s {
	case SupportResistanceLevel:
		return "support/resistance level"
	case CurrentBar:
		return "current bar"
	case TwoGreenBars:
		return "two green bars"
	default:
		return "unknown"
	}
}

// ExitMethodFor returns the exit method recorded when a stop from the provided source is hit.
func ExitMethodFor(source StopLossSource) ExitMethod {
	switch source {
	case TwoGreenBars:
		return TwoGreenBarsExit
	default:
		return BrokeSupportResistance
	}
}
