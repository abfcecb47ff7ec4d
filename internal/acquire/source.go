// Package acquire fetches daily OHLCV bars from external market-data
// sources with retry, validation, and per-symbol failure isolation.
package acquire

import (
	"context"
	"time"

	"breakout/internal/domain"
)

// Source fetches daily bars for one symbol over [start, end] from an
// external provider. Implementations classify their failures: transient
// errors (network, timeout, rate limit, server-side) wrap
// domain.ErrSourceUnavailable and are retried; a definitive "no data for
// this symbol" wraps domain.ErrDataUnavailable and is not.
type Source interface {
	// Name returns the provider identifier, e.g. "yahoo" or "alpaca".
	Name() string

	// FetchDailyBars returns the symbol's daily bars with dates in
	// [start, end], ordered ascending.
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}
