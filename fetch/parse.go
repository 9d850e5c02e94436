package fetch

import (
	"fmt"
	"time"

	"github.com/dnldd/abletrend/shared"
	"github.com/tidwall/gjson"
)

// ParseSignal parses a trend signal from the provided json data.
func ParseSignal(data gjson.Result, date time.Time) (shared.Signal, error) {
	tf, err := shared.ParseTimeframe(data.Get("timeframe").String())
	if err != nil {
		return shared.Signal{}, fmt.Errorf("parsing signal timeframe: %w", err)
	}

	direction := shared.ParseDirection(data.Get("direction").String())

	color := shared.EntryColor(direction)
	if c := data.Get("color"); c.Exists() {
		color = shared.ParseColor(c.String())
	}

	return shared.NewSignal(date, tf, color, direction, data.Get("stop").Float()), nil
}

// ParsePriceBars parses price bars from the provided json data. Dates are interpreted in the
// provided location.
func ParsePriceBars(data []gjson.Result, loc *time.Location) ([]*shared.PriceBar, error) {
	bars := make([]*shared.PriceBar, 0, len(data))

	for idx := range data {
		dt, err := time.ParseInLocation(shared.DateLayout, data[idx].Get("date").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing price bar date: %w", err)
		}

		candle := shared.Candlestick{
			Open:  data[idx].Get("open").Float(),
			High:  data[idx].Get("high").Float(),
			Low:   data[idx].Get("low").Float(),
			Close: data[idx].Get("close").Float(),
			Date:  dt,
		}

		err = candle.Validate()
		if err != nil {
			return nil, fmt.Errorf("validating candle at %s: %w", dt.Format(shared.DateLayout), err)
		}

		rawSignals := data[idx].Get("signals").Array()
		signals := make([]shared.Signal, 0, len(rawSignals))
		for sdx := range rawSignals {
			sig, err := ParseSignal(rawSignals[sdx], dt)
			if err != nil {
				return nil, fmt.Errorf("parsing signal of bar at %s: %w", dt.Format(shared.DateLayout), err)
			}
			signals = append(signals, sig)
		}

		bar, err := shared.NewPriceBar(candle, signals...)
		if err != nil {
			return nil, fmt.Errorf("creating price bar at %s: %w", dt.Format(shared.DateLayout), err)
		}

		bars = append(bars, bar)
	}

	return bars, nil
}
