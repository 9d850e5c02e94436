package fetch

import (
	"testing"
	"time"

	"github.com/dnldd/abletrend/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/tidwall/gjson"
)

func TestParsePriceBars(t *testing.T) {
	data := `[{"date":"2025-03-04 10:02:00","open":99,"high":101,"low":98,"close":100,
		"signals":[{"timeframe":"1m","color":"blue","direction":"long","stop":97},
		{"timeframe":"2m","direction":"long"},{"timeframe":"3m","direction":"short","stop":0}]}]`

	bars, err := ParsePriceBars(gjson.Parse(data).Array(), time.UTC)
	assert.NoError(t, err)
	assert.Equal(t, len(bars), 1)

	bar := bars[0]
	assert.Equal(t, bar.Candle.Open, float64(99))
	assert.Equal(t, bar.Candle.High, float64(101))
	assert.Equal(t, bar.Candle.Low, float64(98))
	assert.Equal(t, bar.Candle.Close, float64(100))
	assert.Equal(t, bar.Date(), time.Date(2025, 3, 4, 10, 2, 0, 0, time.UTC))
	assert.Equal(t, bar.ID, shared.BarID(bar.Date()))

	assert.Equal(t, bar.BarColor(), shared.Blue)
	assert.Equal(t, bar.Direction(), shared.Long)
	assert.NotNil(t, bar.OneMinSignal().Stop)
	assert.Equal(t, *bar.OneMinSignal().Stop, float64(97))

	// Ensure signal colors default to the direction's entry color.
	assert.Equal(t, bar.TwoMinSignal().Color, shared.Blue)
	assert.Equal(t, bar.ThreeMinSignal().Color, shared.Red)
	assert.Nil(t, bar.ThreeMinSignal().Stop)

	tests := []struct {
		name string
		data string
	}{
		{name: "bad date", data: `[{"date":"yesterday","open":1,"high":1,"low":1,"close":1}]`},
		{name: "bad candle", data: `[{"date":"2025-03-04 10:02:00","open":1,"high":1,"low":2,"close":1}]`},
		{name: "bad timeframe", data: `[{"date":"2025-03-04 10:02:00","open":1,"high":1,"low":1,"close":1,
			"signals":[{"timeframe":"5m","direction":"long"}]}]`},
		{name: "duplicate timeframe", data: `[{"date":"2025-03-04 10:02:00","open":1,"high":1,"low":1,"close":1,
			"signals":[{"timeframe":"1m","direction":"long"},{"timeframe":"1m","direction":"short"}]}]`},
	}

	for _, test := range tests {
		_, err := ParsePriceBars(gjson.Parse(test.data).Array(), time.UTC)
		if err == nil {
			t.Errorf("%s: expected a parsing error", test.name)
		}
	}
}
