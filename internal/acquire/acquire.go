package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"breakout/internal/domain"
	"breakout/internal/util"
)

// Options configures an Acquirer.
type Options struct {
	// RetryAttempts is the maximum number of tries per fetch. Zero means 3.
	RetryAttempts int
	// RetryDelay is the initial backoff delay. Zero means one second.
	RetryDelay time.Duration
	// Logger receives per-attempt diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// Acquirer fetches bars from a Source with bounded retries. Transient
// source failures are retried with exponential backoff; retry exhaustion
// degrades the error to domain.ErrDataUnavailable for that symbol so the
// caller can exclude it without aborting the run.
type Acquirer struct {
	source        Source
	retryAttempts int
	retryDelay    time.Duration
	log           *slog.Logger
}

// New creates an Acquirer over the given source.
func New(source Source, opts Options) *Acquirer {
	attempts := opts.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	delay := opts.RetryDelay
	if delay == 0 {
		delay = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		source:        source,
		retryAttempts: attempts,
		retryDelay:    delay,
		log:           logger.With("source", source.Name()),
	}
}

// Fetch downloads daily bars for one symbol over [start, end], retrying
// transient failures. The returned bars are guaranteed to be strictly
// date-ordered and within range.
func (a *Acquirer) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	attempt := 0

	err := util.RetryIf(ctx, a.retryAttempts, a.retryDelay,
		func(err error) bool { return errors.Is(err, domain.ErrSourceUnavailable) },
		func() error {
			attempt++
			var ferr error
			bars, ferr = a.source.FetchDailyBars(ctx, symbol, start, end)
			if ferr != nil && errors.Is(ferr, domain.ErrSourceUnavailable) {
				a.log.Warn("fetch attempt failed",
					"symbol", symbol,
					"attempt", fmt.Sprintf("%d/%d", attempt, a.retryAttempts),
					"err", ferr,
				)
			}
			return ferr
		})
	if err != nil {
		if errors.Is(err, domain.ErrSourceUnavailable) {
			return nil, fmt.Errorf("%w: %s: retries exhausted: %v", domain.ErrDataUnavailable, symbol, err)
		}
		return nil, err
	}

	series := domain.PriceSeries{Symbol: symbol, Bars: bars}
	if verr := series.Validate(); verr != nil {
		return nil, fmt.Errorf("%w: %s: source returned malformed series: %v", domain.ErrDataUnavailable, symbol, verr)
	}

	a.log.Debug("fetched", "symbol", symbol, "bars", len(bars),
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))
	return bars, nil
}

// Source returns the underlying source, for logging and diagnostics.
func (a *Acquirer) Source() Source { return a.source }
