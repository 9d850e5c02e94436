package fetch

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dnldd/abletrend/chart"
	"github.com/dnldd/abletrend/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// Ticker represents the traded instrument.
	Ticker string
	// FilePath is the filepath to the historic bar data.
	FilePath string
	// Location is the time zone bar dates are expressed in.
	Location *time.Location
	// Logger represents the application logger.
	Logger zerolog.Logger
}

// HistoricData represents historic bar data loaded from a file.
type HistoricData struct {
	cfg  *HistoricDataConfig
	bars []*shared.PriceBar
}

// Ensure historic data implements the Source interface.
var _ Source = (*HistoricData)(nil)

// loadHistoricData loads the historic data from the provided file path.
func loadHistoricData(filepath string) ([]gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %w", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return nil, fmt.Errorf("historic data file '%s' is not valid json", filepath)
	}

	return gjson.ParseBytes(readb).Array(), nil
}

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	data, err := loadHistoricData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading historic data: %w", err)
	}

	bars, err := ParsePriceBars(data, cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("parsing price bars: %w", err)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no price bars found in '%s'", cfg.FilePath)
	}

	cfg.Logger.Info().Msgf("loaded %d %s bars from %s to %s", len(bars), cfg.Ticker,
		bars[0].Date().Format(shared.DateLayout), bars[len(bars)-1].Date().Format(shared.DateLayout))

	return &HistoricData{cfg: cfg, bars: bars}, nil
}

// Bars returns the loaded price bars in chronological order.
func (h *HistoricData) Bars() []*shared.PriceBar {
	return h.bars
}

// FetchStartTime returns the time of the first bar.
func (h *HistoricData) FetchStartTime() time.Time {
	return h.bars[0].Date()
}

// FetchEndTime returns the time of the last bar.
func (h *HistoricData) FetchEndTime() time.Time {
	return h.bars[len(h.bars)-1].Date()
}

// FetchTicker returns the ticker of the historic data.
func (h *HistoricData) FetchTicker() string {
	return h.cfg.Ticker
}

// FetchChart returns a chart of every loaded bar.
func (h *HistoricData) FetchChart(ctx context.Context) (*chart.Chart, error) {
	return chart.NewChartFromBars(h.cfg.Ticker, h.bars)
}
