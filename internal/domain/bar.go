// Package domain defines the core data types shared across the backtester:
// OHLCV bars, price series, trade events, and the error taxonomy.
package domain

import (
	"fmt"
	"time"
)

// Bar is one day of OHLCV data for a single symbol. Timestamps are
// normalized to midnight UTC of the trading day.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Date returns the bar's trading day truncated to midnight UTC.
func (b Bar) Date() time.Time {
	return time.Date(b.Timestamp.Year(), b.Timestamp.Month(), b.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
}

// PriceSeries is an ordered sequence of bars for one symbol. Dates are
// strictly increasing; Validate enforces the invariant.
type PriceSeries struct {
	Symbol string
	Bars   []Bar
}

// Validate checks that the series is non-empty, belongs to a single symbol,
// and that bar dates are strictly increasing with no duplicates.
func (s PriceSeries) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("series %s: %w: no bars", s.Symbol, ErrValidation)
	}
	for i, b := range s.Bars {
		if b.Symbol != s.Symbol {
			return fmt.Errorf("series %s: %w: bar %d has symbol %s", s.Symbol, ErrValidation, i, b.Symbol)
		}
		if i > 0 && !s.Bars[i-1].Date().Before(b.Date()) {
			return fmt.Errorf("series %s: %w: dates not strictly increasing at index %d (%s >= %s)",
				s.Symbol, ErrValidation, i,
				s.Bars[i-1].Date().Format("2006-01-02"), b.Date().Format("2006-01-02"))
		}
	}
	return nil
}

// Start returns the date of the first bar, or the zero time for an empty series.
func (s PriceSeries) Start() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Date()
}

// End returns the date of the last bar, or the zero time for an empty series.
func (s PriceSeries) End() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date()
}

// Slice returns the sub-series with dates in [start, end]. The underlying
// bar slice is shared, not copied.
func (s PriceSeries) Slice(start, end time.Time) PriceSeries {
	lo := 0
	for lo < len(s.Bars) && s.Bars[lo].Date().Before(start) {
		lo++
	}
	hi := len(s.Bars)
	for hi > lo && s.Bars[hi-1].Date().After(end) {
		hi--
	}
	return PriceSeries{Symbol: s.Symbol, Bars: s.Bars[lo:hi]}
}
