package shared

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
)

func TestParseClock(t *testing.T) {
	clock, err := ParseClock("09:30")
	assert.NoError(t, err)
	assert.Equal(t, clock, Clock(570))
	assert.Equal(t, clock.String(), "09:30")

	_, err = ParseClock("9h30")
	assert.Error(t, err)

	// Ensure clocks round trip through text.
	var decoded Clock
	err = decoded.UnmarshalText([]byte("15:55"))
	assert.NoError(t, err)
	text, err := decoded.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, string(text), "15:55")
}

func TestTimeWindowContains(t *testing.T) {
	_, loc, err := NewYorkTime()
	assert.NoError(t, err)

	window, err := NewTimeWindow("09:30", "15:50")
	assert.NoError(t, err)
	assert.Equal(t, window.String(), "09:30-15:50")

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"before open", time.Date(2025, 3, 4, 9, 29, 0, 0, loc), false},
		{"at open", time.Date(2025, 3, 4, 9, 30, 0, 0, loc), true},
		{"midday", time.Date(2025, 3, 4, 12, 0, 0, 0, loc), true},
		{"at end", time.Date(2025, 3, 4, 15, 50, 0, 0, loc), false},
		{"utc equivalent of midday", time.Date(2025, 3, 4, 17, 0, 0, 0, time.UTC), true},
	}

	for _, test := range tests {
		got := window.Contains(test.at, loc)
		if got != test.want {
			t.Errorf("%s: expected %v, got %v", test.name, test.want, got)
		}
	}

	// Ensure windows wrapping midnight are supported.
	overnight, err := NewTimeWindow("18:00", "03:00")
	assert.NoError(t, err)
	assert.True(t, overnight.Contains(time.Date(2025, 3, 4, 23, 0, 0, 0, loc), loc))
	assert.True(t, overnight.Contains(time.Date(2025, 3, 4, 1, 0, 0, 0, loc), loc))
	assert.False(t, overnight.Contains(time.Date(2025, 3, 4, 12, 0, 0, 0, loc), loc))

	_, err = NewTimeWindow("bad", "15:00")
	assert.Error(t, err)
	_, err = NewTimeWindow("09:00", "bad")
	assert.Error(t, err)
}

func TestTradingDay(t *testing.T) {
	_, loc, err := NewYorkTime()
	assert.NoError(t, err)

	// 02:00 UTC is still the previous day in new york.
	at := time.Date(2025, 3, 5, 2, 0, 0, 0, time.UTC)
	day := TradingDay(at, loc)
	assert.Equal(t, day.Day(), 4)
	assert.Equal(t, day.Hour(), 0)
}
