package chart

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dnldd/abletrend/shared"
)

// Chart represents the ordered price bars of a ticker.
type Chart struct {
	Ticker string

	ids     []int64
	bars    map[int64]*shared.PriceBar
	dataMtx sync.RWMutex
}

// NewChart initializes a new chart.
func NewChart(ticker string) *Chart {
	return &Chart{
		Ticker: ticker,
		ids:    make([]int64, 0, 512),
		bars:   make(map[int64]*shared.PriceBar, 512),
	}
}

// NewChartFromBars initializes a chart with the provided chronological bars.
func NewChartFromBars(ticker string, bars []*shared.PriceBar) (*Chart, error) {
	c := NewChart(ticker)
	for idx := range bars {
		err := c.Append(bars[idx])
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Append adds the provided bar to the chart. A bar sharing the identifier of the last bar
// replaces it since the last bar is still forming, older bars are rejected.
func (c *Chart) Append(bar *shared.PriceBar) error {
	if bar == nil {
		return errors.New("bar cannot be nil")
	}

	c.dataMtx.Lock()
	defer c.dataMtx.Unlock()

	count := len(c.ids)
	if count > 0 {
		last := c.ids[count-1]
		switch {
		case bar.ID == last:
			c.bars[bar.ID] = bar
			return nil
		case bar.ID < last:
			return fmt.Errorf("bar %d predates the last chart bar %d", bar.ID, last)
		}
	}

	c.ids = append(c.ids, bar.ID)
	c.bars[bar.ID] = bar

	return nil
}

// Len returns the number of bars in the chart.
func (c *Chart) Len() int {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	return len(c.ids)
}

// Bar returns the bar at the provided index, or nil if out of range.
func (c *Chart) Bar(idx int) *shared.PriceBar {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	if idx < 0 || idx >= len(c.ids) {
		return nil
	}

	return c.bars[c.ids[idx]]
}

// Get returns the bar with the provided identifier.
func (c *Chart) Get(id int64) *shared.PriceBar {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	return c.bars[id]
}

// Index returns the position of the bar with the provided identifier, or -1 if unknown.
func (c *Chart) Index(id int64) int {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	return c.index(id)
}

// index performs a binary search over the ordered identifiers. Callers must hold the lock.
func (c *Chart) index(id int64) int {
	lo, hi := 0, len(c.ids)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case c.ids[mid] == id:
			return mid
		case c.ids[mid] < id:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}

	return -1
}

// Last returns the newest bar, which may still be forming.
func (c *Chart) Last() *shared.PriceBar {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	if len(c.ids) == 0 {
		return nil
	}

	return c.bars[c.ids[len(c.ids)-1]]
}

// LastClosedBar returns the bar trading decisions are made on. The newest bar's multi-minute
// signals are not final yet, so this is always the second to last bar.
func (c *Chart) LastClosedBar() *shared.PriceBar {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	count := len(c.ids)
	if count < 2 {
		return nil
	}

	return c.bars[c.ids[count-2]]
}

// PreviousBar returns the bar preceding the provided bar identifier, or nil at the chart start.
func (c *Chart) PreviousBar(id int64) *shared.PriceBar {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	idx := c.index(id)
	if idx <= 0 {
		return nil
	}

	return c.bars[c.ids[idx-1]]
}

// Bars returns the chart bars in chronological order.
func (c *Chart) Bars() []*shared.PriceBar {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	set := make([]*shared.PriceBar, len(c.ids))
	for idx := range c.ids {
		set[idx] = c.bars[c.ids[idx]]
	}

	return set
}

// SameDirectionRange checks whether every signal of any timeframe from the bars between the
// provided identifiers (inclusive) has either no direction or the provided direction.
func (c *Chart) SameDirectionRange(direction shared.Direction, from int64, to int64) bool {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	for _, id := range c.ids {
		if id < from {
			continue
		}
		if id > to {
			break
		}

		bar := c.bars[id]
		for idx := range bar.Signals {
			dir := bar.Signals[idx].Direction
			if dir != shared.NoDirection && dir != direction {
				return false
			}
		}
	}

	return true
}

// Clone returns a copy of the chart sharing the immutable bars.
func (c *Chart) Clone() *Chart {
	c.dataMtx.RLock()
	defer c.dataMtx.RUnlock()

	clone := &Chart{
		Ticker: c.Ticker,
		ids:    make([]int64, len(c.ids), cap(c.ids)),
		bars:   make(map[int64]*shared.PriceBar, len(c.bars)),
	}

	copy(clone.ids, c.ids)
	for k, v := range c.bars {
		clone.bars[k] = v
	}

	return clone
}
