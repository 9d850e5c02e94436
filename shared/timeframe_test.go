package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestNewYorkTime(t *testing.T) {
	// Ensure new york locale times can be created.
	now, loc, err := NewYorkTime()
	assert.NoError(t, err)
	assert.Equal(t, now.Location().String(), "America/New_York")
	assert.Equal(t, now.Location().String(), loc.String())
}

func TestTimeframeString(t *testing.T) {
	tests := []struct {
		name      string
		timeframe Timeframe
		want      string
	}{
		{
			"One Minute",
			OneMinute,
			"1m",
		},
		{
			"Two Minute",
			TwoMinute,
			"2m",
		},
		{
			"Three Minute",
			ThreeMinute,
			"3m",
		},
		{
			"unknown",
			Timeframe(999),
			"unknown",
		},
	}

	for _, test := range tests {
		str := test.timeframe.String()
		if str != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, str)
		}
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("2m")
	assert.NoError(t, err)
	assert.Equal(t, tf, TwoMinute)

	tf, err = ParseTimeframe("3")
	assert.NoError(t, err)
	assert.Equal(t, tf, ThreeMinute)

	_, err = ParseTimeframe("5m")
	assert.Error(t, err)
}

func TestNextInterval(t *testing.T) {
	now := time.Date(2025, 3, 4, 10, 3, 20, 0, time.UTC)

	// Ensure the next interval is the close of the forming bar.
	assert.Equal(t, NextInterval(OneMinute, now), time.Date(2025, 3, 4, 10, 4, 0, 0, time.UTC))
	assert.Equal(t, NextInterval(ThreeMinute, now), time.Date(2025, 3, 4, 10, 6, 0, 0, time.UTC))
}

func TestSameMinute(t *testing.T) {
	a := time.Date(2025, 3, 4, 10, 3, 20, 0, time.UTC)
	assert.True(t, SameMinute(a, a.Add(time.Second*30)))
	assert.False(t, SameMinute(a, a.Add(time.Minute)))
}
