package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dnldd/abletrend/chart"
	"github.com/rs/zerolog"
)

// Source provides chart snapshots of a ticker. Charts only ever grow, the last bar may still be
// forming.
type Source interface {
	// FetchChart returns the current chart snapshot.
	FetchChart(ctx context.Context) (*chart.Chart, error)
}

// FeedSourceConfig represents the feed source configuration.
type FeedSourceConfig struct {
	// Client fetches bars from the signal feed.
	Client *FeedClient
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// FeedSource builds a chart incrementally from the signal feed.
type FeedSource struct {
	cfg      *FeedSourceConfig
	chart    *chart.Chart
	chartMtx sync.Mutex
	logger   zerolog.Logger
}

// Ensure the feed source implements the Source interface.
var _ Source = (*FeedSource)(nil)

// NewFeedSource initializes a new feed source.
func NewFeedSource(cfg *FeedSourceConfig) *FeedSource {
	return &FeedSource{
		cfg:    cfg,
		chart:  chart.NewChart(cfg.Client.cfg.Ticker),
		logger: cfg.Logger.With().Str("component", "feed").Logger(),
	}
}

// FetchChart fetches the bars since the last known bar and returns a snapshot of the updated
// chart.
func (s *FeedSource) FetchChart(ctx context.Context) (*chart.Chart, error) {
	s.chartMtx.Lock()
	defer s.chartMtx.Unlock()

	var from int64
	if last := s.chart.Last(); last != nil {
		// Refetch the last bar, it may have been forming.
		from = last.ID
	}

	bars, err := s.cfg.Client.FetchBars(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("fetching bars: %w", err)
	}

	var appended int
	for idx := range bars {
		if last := s.chart.Last(); last != nil && bars[idx].ID < last.ID {
			continue
		}

		err = s.chart.Append(bars[idx])
		if err != nil {
			return nil, fmt.Errorf("appending bar: %w", err)
		}
		appended++
	}

	s.logger.Debug().Msgf("updated %s chart with %d bars, %d total", s.chart.Ticker, appended, s.chart.Len())

	return s.chart.Clone(), nil
}
