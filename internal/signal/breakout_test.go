package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"breakout/internal/domain"
)

// seriesFrom builds a series from parallel high/low/close values, one bar
// per consecutive weekday starting Mon 2024-06-03.
func seriesFrom(t *testing.T, symbol string, highs, lows, closes []float64) domain.PriceSeries {
	t.Helper()
	require.Len(t, lows, len(highs))
	require.Len(t, closes, len(highs))

	d := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, 0, len(highs))
	for i := range highs {
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: d,
			Open:      closes[i],
			High:      highs[i],
			Low:       lows[i],
			Close:     closes[i],
			Volume:    1000,
		})
		d = d.AddDate(0, 0, 1)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
	}
	series := domain.PriceSeries{Symbol: symbol, Bars: bars}
	require.NoError(t, series.Validate())
	return series
}

func mustStrategy(t *testing.T, p Params) Strategy {
	t.Helper()
	s, err := New("breakout20", p)
	require.NoError(t, err)
	return s
}

// A full cycle with window 2: arm on the close under the average, enter on
// the close over the prior two-day high, stop out when the low undercuts
// the entry bar's low.
func TestBreakoutFullCycle(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 2, HighWindow: 2})
	series := seriesFrom(t, "2330.TW",
		//    t0    t1    t2    t3    t4
		[]float64{10.5, 10.0, 11.2, 12.5, 9.5}, // highs
		[]float64{9.5, 7.5, 8.0, 11.0, 7.0},    // lows
		[]float64{10.0, 8.0, 11.0, 12.0, 9.0},  // closes
	)
	// t1: close 8 < SMA(10,8)=9, arms.
	// t2: close 11 > max(high t0,t1)=10.5, enters at 11 with entry low 8.
	// t4: low 7 < 8, exits at that day's close 9.

	events := s.Evaluate(series)
	require.Len(t, events, 2)

	enter, exit := events[0], events[1]
	require.Equal(t, domain.ActionEnter, enter.Action)
	require.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), enter.Date)
	require.Equal(t, 11.0, enter.Price)
	require.Equal(t, domain.ReasonBreakout, enter.Reason)

	require.Equal(t, domain.ActionExit, exit.Action)
	require.Equal(t, time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC), exit.Date)
	require.Equal(t, 9.0, exit.Price, "exit executes at the close, not the stop low")
	require.Equal(t, domain.ReasonStop, exit.Reason)
}

func TestBreakoutIsDeterministic(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 3, HighWindow: 3})
	series := seriesFrom(t, "AAPL",
		[]float64{10, 11, 9, 8, 12, 13, 12, 9, 8, 14},
		[]float64{9, 10, 7, 6, 10, 11, 10, 6, 6, 12},
		[]float64{9.5, 10.5, 8, 7, 11.5, 12.5, 11, 7, 7.5, 13.5},
	)

	first := s.Evaluate(series)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, s.Evaluate(series))
	}
}

func TestBreakoutNeverEntersFromIdle(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 2, HighWindow: 2})
	// Closes only rise: the SMA arm condition never fires, so the highs
	// being taken out must not produce an entry.
	series := seriesFrom(t, "UP",
		[]float64{10, 11, 12, 13, 14},
		[]float64{9, 10, 11, 12, 13},
		[]float64{10, 11, 12, 13, 14},
	)

	require.Empty(t, s.Evaluate(series))
}

// Once armed, the close recrossing the average does not disarm: the entry
// still fires on a later breakout. A continuous below-average requirement
// would have suppressed this entry.
func TestBreakoutTrackingPersistsAfterRecross(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 2, HighWindow: 2})
	series := seriesFrom(t, "PERSIST",
		[]float64{10.0, 9.0, 9.6, 9.7, 11.5},
		[]float64{9.0, 7.0, 9.0, 9.2, 10.0},
		[]float64{10.0, 8.0, 9.5, 9.6, 11.0},
	)
	// t1: close 8 < SMA 9, arms.
	// t2: close 9.5 > SMA(8,9.5)=8.75, recross; 9.5 <= prior high 10, no entry.
	// t3: 9.6 <= max(9, 9.6)... prior highs (9.0, 9.6), 9.6 not greater, no entry.
	// t4: 11 > max(9.6, 9.7)=9.7, enters.

	events := s.Evaluate(series)
	require.Len(t, events, 2, "enter plus forced end close-out")
	require.Equal(t, domain.ActionEnter, events[0].Action)
	require.Equal(t, time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC), events[0].Date)
	require.Equal(t, 11.0, events[0].Price)
}

func TestBreakoutForcedExitAtEndOfData(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 2, HighWindow: 2})
	series := seriesFrom(t, "HOLD",
		[]float64{10.5, 10.0, 11.2, 12.5},
		[]float64{9.5, 7.5, 8.0, 11.0},
		[]float64{10.0, 8.0, 11.0, 12.0},
	)
	// Enters at t2, never stops out.

	events := s.Evaluate(series)
	require.Len(t, events, 2)
	exit := events[1]
	require.Equal(t, domain.ActionExit, exit.Action)
	require.Equal(t, domain.ReasonEndOfData, exit.Reason)
	require.Equal(t, 12.0, exit.Price)
	require.Equal(t, series.End(), exit.Date)
}

func TestBreakoutEventsAlternate(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 3, HighWindow: 3})
	series := seriesFrom(t, "ALT",
		[]float64{10, 11, 9, 8, 12, 13, 12, 9, 8, 14, 15, 9},
		[]float64{9, 10, 7, 6, 10, 11, 10, 6, 6, 12, 13, 7},
		[]float64{9.5, 10.5, 8, 7, 11.5, 12.5, 11, 7, 7.5, 13.5, 14, 8},
	)

	events := s.Evaluate(series)
	for i, ev := range events {
		want := domain.ActionEnter
		if i%2 == 1 {
			want = domain.ActionExit
		}
		require.Equal(t, want, ev.Action, "event %d", i)
		if i > 0 {
			require.False(t, ev.Date.Before(events[i-1].Date))
		}
	}
}

// With a short SMA window and a longer high window, a close under the SMA
// before the high window has a full history must not arm the symbol: the
// warmup covers the larger of the two windows.
func TestBreakoutWarmupWithAsymmetricWindows(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 2, HighWindow: 4})
	series := seriesFrom(t, "ASYM",
		[]float64{10.5, 10.0, 10.8, 10.9, 11.2},
		[]float64{9.5, 7.5, 10.0, 10.3, 10.5},
		[]float64{10.0, 8.0, 10.6, 10.7, 11.0},
	)
	// t1: close 8 < SMA(10,8)=9, but only two bars seen, inside warmup.
	// No later close dips under the SMA, so nothing arms; the t4 close 11
	// over the prior four-day high 10.9 must not turn into an entry.

	require.Empty(t, s.Evaluate(series))
}

func TestBreakoutShortSeriesStaysQuiet(t *testing.T) {
	s := mustStrategy(t, Params{SMAWindow: 20, HighWindow: 20})
	series := seriesFrom(t, "SHORT",
		[]float64{10, 9, 8},
		[]float64{9, 8, 7},
		[]float64{9.5, 8.5, 7.5},
	)
	require.Empty(t, s.Evaluate(series), "warmup window not met")
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New("momentum", Params{SMAWindow: 20, HighWindow: 20})
	require.ErrorIs(t, err, domain.ErrConfig)
}

func TestNewRejectsBadWindows(t *testing.T) {
	_, err := New("breakout20", Params{SMAWindow: 0, HighWindow: 20})
	require.ErrorIs(t, err, domain.ErrConfig)
	_, err = New("breakout20", Params{SMAWindow: 20, HighWindow: -1})
	require.ErrorIs(t, err, domain.ErrConfig)
}
