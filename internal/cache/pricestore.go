// Package cache provides the cached price-series store: cache-first reads
// with coverage and staleness tracking, incremental range extension, and a
// bounded-concurrency batch front end over the acquirer.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"breakout/internal/acquire"
	"breakout/internal/domain"
	"breakout/internal/store"
)

// Options configures a PriceStore.
type Options struct {
	// Enabled turns the cache on. When false every Get goes straight to
	// the source and nothing is persisted.
	Enabled bool
	// ExpiryDays is the cache entry age beyond which the series tail is
	// refreshed. Zero means 3.
	ExpiryDays int
	// RefreshWindowDays is how many trailing days are refetched when an
	// entry is stale. Zero means 30.
	RefreshWindowDays int
	// MaxWorkers bounds GetBatch concurrency. Zero means 4.
	MaxWorkers int
	// Quality is applied to each requested slice before it is returned.
	Quality acquire.QualityThresholds
	// Now is the clock, replaced in tests. Nil means time.Now.
	Now func() time.Time
	// Logger receives cache diagnostics. Nil means slog.Default.
	Logger *slog.Logger
}

// PriceStore serves price series cache-first. Cached coverage is tracked per
// symbol; a request outside or beyond the covered range triggers fetches for
// the uncovered sub-ranges only, and a stale entry gets its trailing window
// refetched so late corrections from the source are picked up.
type PriceStore struct {
	bars  store.BarStore
	index store.CacheIndex
	acq   *acquire.Acquirer

	enabled       bool
	expiry        time.Duration
	refreshWindow int
	maxWorkers    int
	quality       acquire.QualityThresholds
	now           func() time.Time
	log           *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// SeriesResult is the per-symbol outcome of a GetBatch call.
type SeriesResult struct {
	Series domain.PriceSeries
	Err    error
}

// New creates a PriceStore over the given bar store, cache index and
// acquirer.
func New(bars store.BarStore, index store.CacheIndex, acq *acquire.Acquirer, opts Options) *PriceStore {
	expiryDays := opts.ExpiryDays
	if expiryDays == 0 {
		expiryDays = 3
	}
	refreshWindow := opts.RefreshWindowDays
	if refreshWindow == 0 {
		refreshWindow = 30
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers == 0 {
		maxWorkers = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PriceStore{
		bars:          bars,
		index:         index,
		acq:           acq,
		enabled:       opts.Enabled,
		expiry:        time.Duration(expiryDays) * 24 * time.Hour,
		refreshWindow: refreshWindow,
		maxWorkers:    maxWorkers,
		quality:       opts.Quality,
		now:           now,
		log:           logger,
	}
}

func (p *PriceStore) symLock(symbol string) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.RWMutex)
	}
	lk, ok := p.locks[symbol]
	if !ok {
		lk = &sync.RWMutex{}
		p.locks[symbol] = lk
	}
	return lk
}

// Get returns the symbol's daily bars over [start, end], reading the cache
// when it covers the range freshly and fetching only the uncovered or stale
// sub-ranges otherwise. The returned slice has passed the quality
// thresholds; failures wrap domain.ErrValidation or
// domain.ErrDataUnavailable.
func (p *PriceStore) Get(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	start = dateOnly(start)
	end = dateOnly(end)
	if end.Before(start) {
		return domain.PriceSeries{}, fmt.Errorf("%w: %s: end %s before start %s",
			domain.ErrConfig, symbol, end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	if !p.enabled {
		bars, err := p.acq.Fetch(ctx, symbol, start, end)
		if err != nil {
			return domain.PriceSeries{}, err
		}
		return p.finish(domain.PriceSeries{Symbol: symbol, Bars: bars}, start, end)
	}

	lk := p.symLock(symbol)

	// Fast path: a fresh covering entry needs no mutation, so concurrent
	// readers of the same symbol proceed in parallel.
	lk.RLock()
	series, hit := p.tryCached(ctx, symbol, start, end)
	lk.RUnlock()
	if hit {
		return p.finish(series, start, end)
	}

	lk.Lock()
	defer lk.Unlock()

	// Another writer may have refreshed while we waited for the lock.
	if series, hit := p.tryCached(ctx, symbol, start, end); hit {
		return p.finish(series, start, end)
	}

	series, err := p.refresh(ctx, symbol, start, end)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	return p.finish(series, start, end)
}

// tryCached returns the requested slice when the cache entry covers
// [start, end] and is not stale. Any read problem reports a miss; the
// write-locked path deals with corruption.
func (p *PriceStore) tryCached(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, bool) {
	entry, err := p.index.Entry(ctx, symbol)
	if err != nil || entry == nil {
		return domain.PriceSeries{}, false
	}
	if start.Before(entry.Start) || end.After(entry.End) {
		return domain.PriceSeries{}, false
	}
	if p.now().Sub(entry.FetchedAt) > p.expiry {
		return domain.PriceSeries{}, false
	}
	bars, err := p.bars.ReadBars(ctx, symbol)
	if err != nil || len(bars) == 0 {
		return domain.PriceSeries{}, false
	}
	return domain.PriceSeries{Symbol: symbol, Bars: bars}.Slice(start, end), true
}

// refresh brings the cached series up to covering [start, end] freshly,
// fetching only what is missing, and returns the requested slice. Called
// with the symbol's write lock held.
func (p *PriceStore) refresh(ctx context.Context, symbol string, start, end time.Time) (domain.PriceSeries, error) {
	entry, err := p.index.Entry(ctx, symbol)
	if err != nil {
		p.log.Warn("cache index unreadable, resetting symbol", "symbol", symbol, "err", err)
		entry = nil
	}
	if entry != nil {
		if _, rerr := p.bars.ReadBars(ctx, symbol); rerr != nil {
			if !errors.Is(rerr, domain.ErrCacheCorrupt) {
				return domain.PriceSeries{}, rerr
			}
			p.log.Warn("cache entry corrupt, refetching", "symbol", symbol, "err", rerr)
			if derr := p.bars.DeleteBars(ctx, symbol); derr != nil {
				return domain.PriceSeries{}, fmt.Errorf("purge corrupt cache for %s: %w", symbol, derr)
			}
			if derr := p.index.DeleteEntry(ctx, symbol); derr != nil {
				return domain.PriceSeries{}, fmt.Errorf("purge corrupt cache index for %s: %w", symbol, derr)
			}
			entry = nil
		}
	}

	now := p.now()

	if entry == nil {
		bars, err := p.acq.Fetch(ctx, symbol, start, end)
		if err != nil {
			return domain.PriceSeries{}, err
		}
		if err := p.persist(ctx, symbol, bars, store.CacheEntry{
			Symbol: symbol, Start: start, End: end, FetchedAt: now,
		}); err != nil {
			return domain.PriceSeries{}, err
		}
		return domain.PriceSeries{Symbol: symbol, Bars: bars}.Slice(start, end), nil
	}

	newStart, newEnd := entry.Start, entry.End
	fetched := false

	// Head extension.
	if start.Before(entry.Start) {
		bars, ferr := p.acq.Fetch(ctx, symbol, start, entry.Start.AddDate(0, 0, -1))
		if ferr != nil && !errors.Is(ferr, domain.ErrDataUnavailable) {
			return domain.PriceSeries{}, ferr
		}
		if ferr != nil {
			// No bars before the current coverage, e.g. the symbol
			// listed later. Record coverage so we don't re-ask.
			p.log.Debug("no bars in head extension", "symbol", symbol, "err", ferr)
		} else if err := p.bars.WriteBars(ctx, symbol, bars); err != nil {
			return domain.PriceSeries{}, err
		}
		newStart = start
		fetched = true
	}

	// Tail extension, widened to the refresh window when the entry is
	// stale so recent corrections from the source are re-read.
	tailFrom := entry.End.AddDate(0, 0, 1)
	if now.Sub(entry.FetchedAt) > p.expiry {
		windowStart := end.AddDate(0, 0, -p.refreshWindow)
		if windowStart.Before(tailFrom) {
			tailFrom = windowStart
		}
		if tailFrom.Before(newStart) {
			tailFrom = newStart
		}
	}
	if end.After(entry.End) || now.Sub(entry.FetchedAt) > p.expiry {
		bars, ferr := p.acq.Fetch(ctx, symbol, tailFrom, end)
		if ferr != nil && !errors.Is(ferr, domain.ErrDataUnavailable) {
			return domain.PriceSeries{}, ferr
		}
		if ferr != nil {
			// Weekends and holidays at the range tail yield no bars.
			p.log.Debug("no bars in tail refresh", "symbol", symbol, "err", ferr)
		} else if err := p.bars.WriteBars(ctx, symbol, bars); err != nil {
			return domain.PriceSeries{}, err
		}
		if end.After(newEnd) {
			newEnd = end
		}
		fetched = true
	}

	if fetched {
		if err := p.index.PutEntry(ctx, store.CacheEntry{
			Symbol: symbol, Start: newStart, End: newEnd, FetchedAt: now,
		}); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("update cache index for %s: %w", symbol, err)
		}
	}

	bars, err := p.bars.ReadBars(ctx, symbol)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	return domain.PriceSeries{Symbol: symbol, Bars: bars}.Slice(start, end), nil
}

func (p *PriceStore) persist(ctx context.Context, symbol string, bars []domain.Bar, entry store.CacheEntry) error {
	if err := p.bars.WriteBars(ctx, symbol, bars); err != nil {
		return fmt.Errorf("cache bars for %s: %w", symbol, err)
	}
	if err := p.index.PutEntry(ctx, entry); err != nil {
		return fmt.Errorf("index cache entry for %s: %w", symbol, err)
	}
	return nil
}

// finish applies the quality thresholds to the requested slice.
func (p *PriceStore) finish(series domain.PriceSeries, start, end time.Time) (domain.PriceSeries, error) {
	series = series.Slice(start, end)
	if len(series.Bars) == 0 {
		return domain.PriceSeries{}, fmt.Errorf("%w: %s: no bars in requested range", domain.ErrDataUnavailable, series.Symbol)
	}
	if err := acquire.CheckQuality(series, p.quality); err != nil {
		return domain.PriceSeries{}, err
	}
	return series, nil
}

// GetBatch fetches all symbols over [start, end] with a bounded worker
// pool. Failures are per-symbol: the result map always holds one entry per
// requested symbol, either its series or its error.
func (p *PriceStore) GetBatch(ctx context.Context, symbols []string, start, end time.Time) map[string]SeriesResult {
	results := make(map[string]SeriesResult, len(symbols))
	if len(symbols) == 0 {
		return results
	}

	jobs := make(chan string)
	var (
		wg sync.WaitGroup
		rm sync.Mutex
	)

	workers := p.maxWorkers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				series, err := p.Get(ctx, symbol, start, end)
				rm.Lock()
				results[symbol] = SeriesResult{Series: series, Err: err}
				rm.Unlock()
			}
		}()
	}

	for _, symbol := range symbols {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return results
}

// Partition splits batch results into the usable symbols with their series,
// preserving the requested order, and the count excluded by errors. An empty
// usable list is not an error: the caller reports the exclusions and skips
// the run.
func Partition(order []string, results map[string]SeriesResult) ([]string, map[string]domain.PriceSeries, int) {
	series := make(map[string]domain.PriceSeries, len(results))
	var usable []string
	excluded := 0
	for _, symbol := range order {
		res, ok := results[symbol]
		if !ok || res.Err != nil {
			excluded++
			continue
		}
		series[symbol] = res.Series
		usable = append(usable, symbol)
	}
	return usable, series, excluded
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
