package shared

import (
	"fmt"
	"time"
)

// Candlestick represents a unit candlestick for a market.
type Candlestick struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
	Date  time.Time
}

// Validate asserts the candlestick is well formed.
func (c *Candlestick) Validate() error {
	switch {
	case c.Date.IsZero():
		return fmt.Errorf("candlestick date cannot be zero")
	case c.High < c.Low:
		return fmt.Errorf("candlestick high %f is below low %f", c.High, c.Low)
	case c.Close > c.High || c.Close < c.Low:
		return fmt.Errorf("candlestick close %f outside range [%f, %f]", c.Close, c.Low, c.High)
	case c.Open > c.High || c.Open < c.Low:
		return fmt.Errorf("candlestick open %f outside range [%f, %f]", c.Open, c.Low, c.High)
	}

	return nil
}
