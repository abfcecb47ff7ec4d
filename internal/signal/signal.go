// Package signal holds the per-symbol trading strategies. A strategy
// consumes a validated price series bar-by-bar and emits entry and exit
// events; it carries no cross-symbol state.
package signal

import (
	"fmt"
	"sort"

	"breakout/internal/domain"
)

// Strategy evaluates one symbol's price series into a chronological
// sequence of trade events. Implementations must be deterministic: the same
// series always yields the same events.
type Strategy interface {
	Name() string
	Evaluate(series domain.PriceSeries) []domain.TradeEvent
}

// Params are the tunables shared by the registered strategies.
type Params struct {
	SMAWindow  int
	HighWindow int
}

var registry = map[string]func(Params) (Strategy, error){
	"breakout20": newBreakout,
}

// New constructs the named strategy. Unknown names wrap domain.ErrConfig.
func New(name string, p Params) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (have %v)", domain.ErrConfig, name, Names())
	}
	return ctor(p)
}

// Names returns the registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
