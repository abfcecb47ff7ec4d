// Package backtest drives a strategy over many symbols against a shared
// cash ledger with commission and slippage, producing the trade ledger and
// the daily equity curve.
package backtest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"breakout/internal/domain"
	"breakout/internal/signal"
)

// Options configures a Runner.
type Options struct {
	// Cash is the starting cash balance.
	Cash float64
	// Commission is the rate charged on every fill's notional.
	Commission float64
	// Slippage is the adverse price rate: buys pay price*(1+s), sells
	// receive price*(1-s).
	Slippage float64
	// Sizer converts entries into share quantities.
	Sizer Sizer
	// Workers bounds concurrent strategy evaluation. Zero means 4.
	Workers int
	// Logger receives run diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// Runner executes one backtest over a set of per-symbol series.
type Runner struct {
	opts Options
	log  *slog.Logger
}

// Ledger is the immutable outcome of a run: the ordered trade ledger and
// the daily equity curve.
type Ledger struct {
	Trades []domain.TradeRecord
	Equity []domain.EquityPoint
}

// Summary are headline metrics over a finished run.
type Summary struct {
	StartCash   float64
	FinalEquity float64
	TotalReturn float64 // fraction, 0.1 is +10%
	Trades      int     // filled entries
	Wins        int
	WinRate     float64
	MaxDrawdown float64 // fraction of peak equity
	SkippedCash int     // entries skipped for insufficient cash
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, log: logger}
}

// position is one open holding.
type position struct {
	quantity   int64
	entryPrice float64
}

// Run evaluates the strategy over every series and applies the resulting
// events against the shared cash ledger. Evaluation is per-symbol parallel;
// application is sequential in date order, with the symbol order given by
// the caller breaking ties, so cash priority follows the configured symbol
// list. Exits apply before entries on the same date.
func (r *Runner) Run(ctx context.Context, strat signal.Strategy, order []string, series map[string]domain.PriceSeries) (*Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events := r.evaluateAll(strat, order, series)
	r.log.Info("strategy evaluated", "strategy", strat.Name(), "symbols", len(series), "events", len(events))

	rank := make(map[string]int, len(order))
	for i, s := range order {
		rank[s] = i
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Action != b.Action {
			return a.Action == domain.ActionExit
		}
		return rank[a.Symbol] < rank[b.Symbol]
	})

	return r.apply(events, series), nil
}

// evaluateAll runs the strategy over each symbol concurrently.
func (r *Runner) evaluateAll(strat signal.Strategy, order []string, series map[string]domain.PriceSeries) []domain.TradeEvent {
	type result struct {
		symbol string
		events []domain.TradeEvent
	}

	jobs := make(chan string)
	out := make(chan result, len(series))
	var wg sync.WaitGroup

	workers := r.opts.Workers
	if workers > len(series) {
		workers = len(series)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				out <- result{symbol, strat.Evaluate(series[symbol])}
			}
		}()
	}
	for _, symbol := range order {
		if _, ok := series[symbol]; ok {
			jobs <- symbol
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	var events []domain.TradeEvent
	for res := range out {
		events = append(events, res.events...)
	}
	return events
}

// apply replays the ordered events against the cash ledger and marks open
// positions to market for each trading day in the union of all series.
func (r *Runner) apply(events []domain.TradeEvent, series map[string]domain.PriceSeries) *Ledger {
	cash := r.opts.Cash
	positions := map[string]*position{}
	closes := closeIndex(series)
	dates := tradingDates(series)

	ledger := &Ledger{}
	ei := 0

	for _, date := range dates {
		for ei < len(events) && events[ei].Date.Equal(date) {
			ev := events[ei]
			ei++
			switch ev.Action {
			case domain.ActionEnter:
				cash = r.applyEnter(ledger, positions, ev, cash)
			case domain.ActionExit:
				cash = r.applyExit(ledger, positions, ev, cash)
			}
		}

		equity := cash
		for symbol, pos := range positions {
			equity += float64(pos.quantity) * closes.at(symbol, date)
		}
		ledger.Equity = append(ledger.Equity, domain.EquityPoint{Date: date, TotalEquity: equity})
	}

	return ledger
}

func (r *Runner) applyEnter(ledger *Ledger, positions map[string]*position, ev domain.TradeEvent, cash float64) float64 {
	buyPrice := ev.Price * (1 + r.opts.Slippage)
	quantity := r.opts.Sizer.Quantity(cash, buyPrice)
	notional := float64(quantity) * ev.Price
	commission := r.opts.Commission * notional
	slipCost := float64(quantity) * ev.Price * r.opts.Slippage
	total := float64(quantity)*buyPrice + commission

	if quantity < 1 || total > cash {
		r.log.Warn("entry skipped, insufficient cash",
			"symbol", ev.Symbol, "date", ev.Date.Format("2006-01-02"),
			"price", ev.Price, "cash", cash)
		ledger.Trades = append(ledger.Trades, domain.TradeRecord{
			Symbol:        ev.Symbol,
			Action:        domain.ActionEnter,
			Date:          ev.Date,
			Price:         ev.Price,
			ResultingCash: cash,
			Note:          domain.NoteInsufficientCash,
		})
		return cash
	}

	cash -= total
	positions[ev.Symbol] = &position{quantity: quantity, entryPrice: ev.Price}
	ledger.Trades = append(ledger.Trades, domain.TradeRecord{
		Symbol:        ev.Symbol,
		Action:        domain.ActionEnter,
		Date:          ev.Date,
		Price:         ev.Price,
		Quantity:      quantity,
		Commission:    commission,
		Slippage:      slipCost,
		ResultingCash: cash,
	})
	return cash
}

func (r *Runner) applyExit(ledger *Ledger, positions map[string]*position, ev domain.TradeEvent, cash float64) float64 {
	pos, ok := positions[ev.Symbol]
	if !ok {
		// An exit without a tracked position means its entry was skipped.
		return cash
	}
	delete(positions, ev.Symbol)

	notional := float64(pos.quantity) * ev.Price
	commission := r.opts.Commission * notional
	slipCost := notional * r.opts.Slippage
	proceeds := notional - slipCost - commission

	cash += proceeds
	ledger.Trades = append(ledger.Trades, domain.TradeRecord{
		Symbol:        ev.Symbol,
		Action:        domain.ActionExit,
		Date:          ev.Date,
		Price:         ev.Price,
		Quantity:      pos.quantity,
		Commission:    commission,
		Slippage:      slipCost,
		ResultingCash: cash,
	})
	return cash
}

// Summarize computes headline metrics for a finished run.
func (r *Runner) Summarize(ledger *Ledger) Summary {
	s := Summary{StartCash: r.opts.Cash}
	if len(ledger.Equity) > 0 {
		s.FinalEquity = ledger.Equity[len(ledger.Equity)-1].TotalEquity
		if r.opts.Cash > 0 {
			s.TotalReturn = s.FinalEquity/r.opts.Cash - 1
		}
	}

	entryPrice := map[string]float64{}
	for _, tr := range ledger.Trades {
		if tr.Note == domain.NoteInsufficientCash {
			s.SkippedCash++
			continue
		}
		switch tr.Action {
		case domain.ActionEnter:
			s.Trades++
			entryPrice[tr.Symbol] = tr.Price
		case domain.ActionExit:
			if tr.Price > entryPrice[tr.Symbol] {
				s.Wins++
			}
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}

	peak := 0.0
	for _, pt := range ledger.Equity {
		if pt.TotalEquity > peak {
			peak = pt.TotalEquity
		}
		if peak > 0 {
			dd := (peak - pt.TotalEquity) / peak
			if dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}
	return s
}

// closeLookup maps symbol and date to the last known close on or before
// that date, so positions stay marked on days the symbol has no bar.
type closeLookup map[string][]domain.Bar

func closeIndex(series map[string]domain.PriceSeries) closeLookup {
	idx := make(closeLookup, len(series))
	for symbol, s := range series {
		idx[symbol] = s.Bars
	}
	return idx
}

func (c closeLookup) at(symbol string, date time.Time) float64 {
	bars := c[symbol]
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Date().After(date) })
	if i == 0 {
		return 0
	}
	return bars[i-1].Close
}

// tradingDates returns the sorted union of bar dates across all series.
func tradingDates(series map[string]domain.PriceSeries) []time.Time {
	seen := map[time.Time]struct{}{}
	for _, s := range series {
		for _, b := range s.Bars {
			seen[b.Date()] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
