package acquire

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"breakout/internal/domain"
	"breakout/internal/util"
)

// Compile-time interface check.
var _ Source = (*YahooSource)(nil)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooSource fetches daily bars from the Yahoo Finance chart API.
type YahooSource struct {
	client  *http.Client
	baseURL string
	limiter *util.RateLimiter
}

// YahooOptions configures a YahooSource.
type YahooOptions struct {
	// Timeout bounds each HTTP request. Zero means 30 seconds.
	Timeout time.Duration
	// SkipTLSVerify disables certificate verification (ssl_verify: false).
	SkipTLSVerify bool
	// RateLimitPerMin caps request rate. Zero disables limiting.
	RateLimitPerMin int
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

// NewYahooSource creates a Yahoo Finance source with the given options.
func NewYahooSource(opts YahooOptions) *YahooSource {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{}
	if opts.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	return &YahooSource{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: baseURL,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
	}
}

// Name returns "yahoo".
func (s *YahooSource) Name() string { return "yahoo" }

// yahooChart is the response structure from the Yahoo Finance chart API.
// Null entries appear for days without trades.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchDailyBars requests the symbol's daily bars for [start, end].
func (s *YahooSource) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// period2 is exclusive; extend one day so the end date's bar is included.
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		s.baseURL, url.PathEscape(symbol), start.Unix(), end.AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo request for %s: %w", symbol, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch %s: %v", domain.ErrSourceUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo read body for %s: %v", domain.ErrSourceUnavailable, symbol, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: yahoo has no symbol %s", domain.ErrDataUnavailable, symbol)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: yahoo status %d for %s", domain.ErrSourceUnavailable, resp.StatusCode, symbol)
	default:
		return nil, fmt.Errorf("%w: yahoo status %d for %s: %s", domain.ErrDataUnavailable, resp.StatusCode, symbol, body)
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: yahoo decode for %s: %v", domain.ErrSourceUnavailable, symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo api error for %s: %s", domain.ErrDataUnavailable, symbol, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no data for %s", domain.ErrDataUnavailable, symbol)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no quote block for %s", domain.ErrDataUnavailable, symbol)
	}
	quote := result.Indicators.Quote[0]

	// A truncated response can carry quote arrays shorter than the
	// timestamp list; treat that as a bad payload, not a null bar.
	n := len(result.Timestamp)
	if len(quote.Open) < n || len(quote.High) < n || len(quote.Low) < n || len(quote.Close) < n {
		return nil, fmt.Errorf("%w: yahoo returned ragged quote arrays for %s (%d timestamps, %d/%d/%d/%d ohlc)",
			domain.ErrSourceUnavailable, symbol, n,
			len(quote.Open), len(quote.High), len(quote.Low), len(quote.Close))
	}

	bars := make([]domain.Bar, 0, n)
	for i, ts := range result.Timestamp {
		if quote.Close[i] == nil || quote.Open[i] == nil ||
			quote.High[i] == nil || quote.Low[i] == nil {
			continue // null bar (holiday, halted day)
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		day := time.Unix(ts, 0).UTC()
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    volume,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	// The chart API rounds period boundaries to session times in the
	// exchange's timezone; trim anything outside the requested days.
	trimmed := bars[:0]
	for _, b := range bars {
		d := b.Date()
		if d.Before(start) || d.After(end) {
			continue
		}
		trimmed = append(trimmed, b)
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: yahoo returned no bars in range for %s", domain.ErrDataUnavailable, symbol)
	}
	return trimmed, nil
}
