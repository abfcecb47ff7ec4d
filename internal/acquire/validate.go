package acquire

import (
	"fmt"

	"breakout/internal/domain"
	"breakout/internal/util"
)

// QualityThresholds are the series-quality limits a symbol must meet to
// participate in a run.
type QualityThresholds struct {
	// MinTradingDays is the minimum bar count.
	MinTradingDays int
	// MaxMissingRatio is the largest tolerated fraction of weekdays between
	// the series' first and last bar that have no bar. Exchange holidays
	// land in this budget.
	MaxMissingRatio float64
}

// CheckQuality validates a series against the thresholds. Violations wrap
// domain.ErrValidation; the caller excludes the symbol and reports it.
func CheckQuality(series domain.PriceSeries, th QualityThresholds) error {
	if len(series.Bars) < th.MinTradingDays {
		return fmt.Errorf("%w: %s: %d trading days, need at least %d",
			domain.ErrValidation, series.Symbol, len(series.Bars), th.MinTradingDays)
	}

	expected := util.CountTradingDays(series.Start(), series.End())
	if expected == 0 {
		return fmt.Errorf("%w: %s: empty trading-day span", domain.ErrValidation, series.Symbol)
	}
	missing := float64(expected-len(series.Bars)) / float64(expected)
	if missing > th.MaxMissingRatio {
		return fmt.Errorf("%w: %s: missing-bar ratio %.3f exceeds %.3f (%d bars over %d weekdays)",
			domain.ErrValidation, series.Symbol, missing, th.MaxMissingRatio, len(series.Bars), expected)
	}
	return nil
}
