package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/abletrend/shared"
	"github.com/tidwall/gjson"
)

const (
	barsPath = "/bars"
	// defaultFeedTimeout is the default request timeout of the feed client.
	defaultFeedTimeout = time.Second * 5
)

// FeedConfig represents the configuration for the signal feed client.
type FeedConfig struct {
	// BaseURL is the base url of the signal feed.
	BaseURL string
	// APIKey is the signal feed API key.
	APIKey string
	// Ticker is the instrument bars are fetched for.
	Ticker string
	// Location is the time zone the feed expresses bar dates in.
	Location *time.Location
	// Timeout is the request timeout.
	Timeout time.Duration
}

// Validate asserts the config has sane inputs.
func (cfg *FeedConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("no feed base url provided"))
	}
	if cfg.Ticker == "" {
		errs = errors.Join(errs, fmt.Errorf("no feed ticker provided"))
	}

	return errs
}

// FeedClient fetches price bars annotated with trend signals over http.
type FeedClient struct {
	cfg   *FeedConfig
	httpc http.Client
}

// NewFeedClient instantiates a new signal feed client.
func NewFeedClient(cfg *FeedConfig) (*FeedClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating feed config: %w", err)
	}

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultFeedTimeout
	}

	return &FeedClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: cfg.Timeout},
	}, nil
}

// formURL creates full urls including parameters for the feed.
func (c *FeedClient) formURL(path string, params string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(c.cfg.BaseURL, "/"))
	b.WriteString(path)
	b.WriteString("?")
	b.WriteString(params)

	return b.String()
}

// FetchBars fetches the bars at or after the provided bar identifier, all retained bars when
// zero.
func (c *FeedClient) FetchBars(ctx context.Context, from int64) ([]*shared.PriceBar, error) {
	params := url.Values{}
	params.Add("symbol", c.cfg.Ticker)
	if c.cfg.APIKey != "" {
		params.Add("apikey", c.cfg.APIKey)
	}
	if from > 0 {
		params.Add("from", strconv.FormatInt(from, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(barsPath, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating bars request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars: %w", c.cfg.Ticker, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching %s bars: %d (%s)", c.cfg.Ticker,
			resp.StatusCode, gjson.GetBytes(body, "error").String())
	}

	data := gjson.ParseBytes(body)
	if bars := data.Get("bars"); bars.Exists() {
		data = bars
	}

	return ParsePriceBars(data.Array(), c.cfg.Location)
}
