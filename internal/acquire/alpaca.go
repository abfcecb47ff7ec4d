package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"breakout/internal/domain"
)

// Compile-time interface check.
var _ Source = (*AlpacaSource)(nil)

// AlpacaSource fetches daily bars for US equities from the Alpaca
// market-data API.
type AlpacaSource struct {
	client *marketdata.Client
	feed   marketdata.Feed
}

// NewAlpacaSource creates an Alpaca source with the given credentials.
// dataURL overrides the API endpoint when non-empty.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		feed:   marketdata.IEX,
	}
}

// Name returns "alpaca".
func (s *AlpacaSource) Name() string { return "alpaca" }

// FetchDailyBars requests the symbol's daily bars for [start, end].
func (s *AlpacaSource) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	alpacaBars, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end.AddDate(0, 0, 1),
		Feed:      s.feed,
	})
	if err != nil {
		// The SDK does not expose a typed not-found error; treat every
		// failure as transient and let retry exhaustion degrade it.
		return nil, fmt.Errorf("%w: alpaca GetBars %s: %v", domain.ErrSourceUnavailable, symbol, err)
	}
	if len(alpacaBars) == 0 {
		return nil, fmt.Errorf("%w: alpaca returned no data for %s", domain.ErrDataUnavailable, symbol)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		ts := ab.Timestamp.UTC()
		d := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		if d.Before(start) || d.After(end) {
			continue
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: d,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: alpaca returned no bars in range for %s", domain.ErrDataUnavailable, symbol)
	}
	return bars, nil
}
