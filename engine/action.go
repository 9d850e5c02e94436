package engine

import (
	"fmt"
	"time"

	"github.com/dnldd/abletrend/position"
	"github.com/dnldd/abletrend/shared"
)

// ActionKind represents the kind of trade action the engine requests.
type ActionKind int

const (
	NoAction ActionKind = iota
	OpenPosition
	ReversePosition
	UpdateStop
	VerifyPositionClosed
	ForceClosePosition
)

// String stringifies the provided action kind.
func (k ActionKind) String() string {
	switch k {
	case NoAction:
		return "no action"
	case OpenPosition:
		return "open position"
	case ReversePosition:
		return "reverse position"
	case UpdateStop:
		return "update stop"
	case VerifyPositionClosed:
		return "verify position closed"
	case ForceClosePosition:
		return "force close position"
	default:
		return "unknown"
	}
}

// TradeAction represents a trade action decided for a closed bar.
type TradeAction struct {
	Kind ActionKind
	// BarTime is the time of the bar the action was decided on.
	BarTime time.Time
	// Position is the position to open, set for open and reverse actions.
	Position *position.Position
	// Closing is the position to close, set for reverse, verify and force close actions.
	Closing *position.Position
	// Stop is the new stop, set for update stop actions.
	Stop position.StopLoss
	// ExitPrice is the ideal exit price of the closing position.
	ExitPrice float64
	// ExitMethod is the reason the closing position is closed.
	ExitMethod shared.ExitMethod
	// Reason is the human readable rationale of the action.
	Reason string
}

// String stringifies the provided trade action.
func (a TradeAction) String() string {
	switch a.Kind {
	case OpenPosition:
		return fmt.Sprintf("%s %s: %s", a.Kind.String(), a.Position.String(), a.Reason)
	case ReversePosition:
		return fmt.Sprintf("%s @ %.2f (%s) into %s", a.Kind.String(), a.ExitPrice,
			a.ExitMethod.String(), a.Position.String())
	case UpdateStop:
		return fmt.Sprintf("%s to %s", a.Kind.String(), a.Stop.String())
	case VerifyPositionClosed, ForceClosePosition:
		return fmt.Sprintf("%s @ %.2f (%s)", a.Kind.String(), a.ExitPrice, a.ExitMethod.String())
	default:
		return fmt.Sprintf("%s: %s", a.Kind.String(), a.Reason)
	}
}

// noAction returns a no action for the provided bar time.
func noAction(at time.Time, format string, args ...any) TradeAction {
	return TradeAction{
		Kind:    NoAction,
		BarTime: at,
		Reason:  fmt.Sprintf(format, args...),
	}
}
