package shared

import (
	"fmt"
	"time"
)

// BarID derives the unique bar identifier from its time.
func BarID(t time.Time) int64 {
	return t.Truncate(time.Minute).Unix()
}

// PriceBar represents a one minute bar annotated with the trend signals of each timeframe.
type PriceBar struct {
	ID      int64
	Candle  Candlestick
	Signals []Signal
}

// NewPriceBar initializes a new price bar.
func NewPriceBar(candle Candlestick, signals ...Signal) (*PriceBar, error) {
	bar := &PriceBar{
		ID:      BarID(candle.Date),
		Candle:  candle,
		Signals: signals,
	}

	err := bar.Validate()
	if err != nil {
		return nil, err
	}

	return bar, nil
}

// Validate asserts there is at most one signal per timeframe.
func (b *PriceBar) Validate() error {
	seen := make(map[Timeframe]struct{}, len(b.Signals))
	for idx := range b.Signals {
		tf := b.Signals[idx].Timeframe
		if _, ok := seen[tf]; ok {
			return fmt.Errorf("bar %d has more than one %s signal", b.ID, tf.String())
		}
		seen[tf] = struct{}{}
	}

	return nil
}

// Date returns the time of the bar.
func (b *PriceBar) Date() time.Time {
	return b.Candle.Date
}

// Signal returns the first signal of the provided timeframe, or nil if absent.
func (b *PriceBar) Signal(timeframe Timeframe) *Signal {
	for idx := range b.Signals {
		if b.Signals[idx].Timeframe == timeframe {
			return &b.Signals[idx]
		}
	}

	return nil
}

// OneMinSignal returns the one minute signal.
func (b *PriceBar) OneMinSignal() *Signal {
	return b.Signal(OneMinute)
}

// TwoMinSignal returns the two minute signal.
func (b *PriceBar) TwoMinSignal() *Signal {
	return b.Signal(TwoMinute)
}

// ThreeMinSignal returns the three minute signal.
func (b *PriceBar) ThreeMinSignal() *Signal {
	return b.Signal(ThreeMinute)
}

// BarColor returns the color of the one minute signal, green if absent.
func (b *PriceBar) BarColor() Color {
	sig := b.OneMinSignal()
	if sig == nil {
		return Green
	}

	return sig.Color
}

// Direction returns the direction of the one minute signal.
func (b *PriceBar) Direction() Direction {
	sig := b.OneMinSignal()
	if sig == nil {
		return NoDirection
	}

	return sig.Direction
}
