package signal

import (
	"fmt"

	"breakout/internal/domain"
)

var _ Strategy = (*breakout)(nil)

type mode int

const (
	modeIdle mode = iota
	modeTracking
	modeInPosition
)

// breakout implements the breakout20 strategy: a close below the SMA arms
// the symbol (Tracking), a close above the highest high of the prior
// high-window bars enters, and an intraday low under the entry bar's low
// exits at that day's close. Once armed, Tracking persists until the
// breakout fires; the close moving back above the SMA does not disarm it.
type breakout struct {
	smaWindow  int
	highWindow int
}

func newBreakout(p Params) (Strategy, error) {
	if p.SMAWindow < 1 {
		return nil, fmt.Errorf("%w: sma window %d, need at least 1", domain.ErrConfig, p.SMAWindow)
	}
	if p.HighWindow < 1 {
		return nil, fmt.Errorf("%w: high window %d, need at least 1", domain.ErrConfig, p.HighWindow)
	}
	return &breakout{smaWindow: p.SMAWindow, highWindow: p.HighWindow}, nil
}

func (s *breakout) Name() string { return "breakout20" }

// Evaluate runs the state machine over the series in a single pass. The SMA
// is kept as a rolling sum and the prior-window high as a monotonic deque,
// so each bar costs amortized constant time.
func (s *breakout) Evaluate(series domain.PriceSeries) []domain.TradeEvent {
	bars := series.Bars
	if len(bars) == 0 {
		return nil
	}

	var (
		events   []domain.TradeEvent
		state    = modeIdle
		entryLow float64
		smaSum   float64
		deque    []int // indices into bars, highs strictly decreasing
	)

	// No transition fires before both windows have a full history, so a
	// close under the SMA inside the warmup cannot pre-arm the symbol.
	warmup := s.smaWindow
	if s.highWindow > warmup {
		warmup = s.highWindow
	}

	for t, bar := range bars {
		// Rolling SMA over closes [t-smaWindow+1, t].
		smaSum += bar.Close
		if t >= s.smaWindow {
			smaSum -= bars[t-s.smaWindow].Close
		}
		smaReady := t >= s.smaWindow-1

		// Prior-window high over [t-highWindow, t-1]: push yesterday's
		// bar, then expire indices that fell out of the window. The
		// current bar is excluded to avoid lookahead.
		if t > 0 {
			for len(deque) > 0 && bars[deque[len(deque)-1]].High <= bars[t-1].High {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, t-1)
		}
		for len(deque) > 0 && deque[0] < t-s.highWindow {
			deque = deque[1:]
		}
		priorHighReady := t >= s.highWindow

		if t < warmup-1 {
			continue
		}

		switch state {
		case modeInPosition:
			if bar.Low < entryLow {
				events = append(events, domain.TradeEvent{
					Symbol: series.Symbol,
					Action: domain.ActionExit,
					Date:   bar.Date(),
					Price:  bar.Close,
					Reason: domain.ReasonStop,
				})
				state = modeIdle
			}

		case modeTracking:
			if priorHighReady && bar.Close > bars[deque[0]].High {
				events = append(events, domain.TradeEvent{
					Symbol: series.Symbol,
					Action: domain.ActionEnter,
					Date:   bar.Date(),
					Price:  bar.Close,
					Reason: domain.ReasonBreakout,
				})
				entryLow = bar.Low
				state = modeInPosition
			}

		case modeIdle:
			if smaReady && bar.Close < smaSum/float64(s.smaWindow) {
				state = modeTracking
			}
		}
	}

	if state == modeInPosition {
		last := bars[len(bars)-1]
		events = append(events, domain.TradeEvent{
			Symbol: series.Symbol,
			Action: domain.ActionExit,
			Date:   last.Date(),
			Price:  last.Close,
			Reason: domain.ReasonEndOfData,
		})
	}

	return events
}
