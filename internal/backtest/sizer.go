package backtest

import (
	"fmt"
	"math"

	"breakout/internal/domain"
)

// Sizer converts an entry signal into a whole-share quantity given the cash
// available at that moment and the effective (slippage-adjusted) buy price.
type Sizer interface {
	Quantity(cash, price float64) int64
}

// Compile-time interface checks.
var (
	_ Sizer = (*PercentSizer)(nil)
	_ Sizer = (*FixedSizer)(nil)
)

// PercentSizer spends a fixed percentage of the currently available cash on
// each entry.
type PercentSizer struct {
	Percent float64
}

func (s *PercentSizer) Quantity(cash, price float64) int64 {
	if price <= 0 {
		return 0
	}
	budget := cash * s.Percent / 100
	return int64(math.Floor(budget / price))
}

// FixedSizer buys the same share count on every entry.
type FixedSizer struct {
	Shares int64
}

func (s *FixedSizer) Quantity(_, _ float64) int64 { return s.Shares }

// NewSizer constructs the named sizing policy. Unknown types wrap
// domain.ErrConfig.
func NewSizer(typ string, percents float64, shares int64) (Sizer, error) {
	switch typ {
	case "percent":
		if percents <= 0 || percents > 100 {
			return nil, fmt.Errorf("%w: sizer percents %.2f, need (0, 100]", domain.ErrConfig, percents)
		}
		return &PercentSizer{Percent: percents}, nil
	case "fixed":
		if shares < 1 {
			return nil, fmt.Errorf("%w: sizer shares %d, need at least 1", domain.ErrConfig, shares)
		}
		return &FixedSizer{Shares: shares}, nil
	default:
		return nil, fmt.Errorf("%w: unknown sizer type %q", domain.ErrConfig, typ)
	}
}
