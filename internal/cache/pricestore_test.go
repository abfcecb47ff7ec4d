package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"breakout/internal/acquire"
	"breakout/internal/domain"
	"breakout/internal/store"
	"breakout/internal/util"
)

// genSource synthesizes one bar per weekday in the requested range and
// records every fetch it serves.
type genSource struct {
	mu     sync.Mutex
	calls  []fetchCall
	broken map[string]error // per-symbol scripted failure
}

type fetchCall struct {
	symbol     string
	start, end time.Time
}

func (g *genSource) Name() string { return "gen" }

func (g *genSource) FetchDailyBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	g.mu.Lock()
	g.calls = append(g.calls, fetchCall{symbol, start, end})
	ferr := g.broken[symbol]
	g.mu.Unlock()
	if ferr != nil {
		return nil, ferr
	}

	var bars []domain.Bar
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !util.IsTradingDay(d) {
			continue
		}
		price := float64(d.Day()) + float64(d.Month())*0.1
		bars = append(bars, domain.Bar{
			Symbol: symbol, Timestamp: d,
			Open: price, High: price + 1, Low: price - 1, Close: price + 0.5,
			Volume: 1000,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s: no weekdays in range", domain.ErrDataUnavailable, symbol)
	}
	return bars, nil
}

func (g *genSource) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// memBars is an in-memory BarStore with scripted corruption.
type memBars struct {
	mu      sync.Mutex
	bars    map[string][]domain.Bar
	corrupt map[string]bool
}

func newMemBars() *memBars {
	return &memBars{bars: map[string][]domain.Bar{}, corrupt: map[string]bool{}}
}

func (m *memBars) WriteBars(_ context.Context, symbol string, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byDate := map[time.Time]domain.Bar{}
	for _, b := range m.bars[symbol] {
		byDate[b.Date()] = b
	}
	for _, b := range bars {
		byDate[b.Date()] = b
	}
	merged := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	for i := 0; i < len(merged); i++ {
		for j := i + 1; j < len(merged); j++ {
			if merged[j].Date().Before(merged[i].Date()) {
				merged[i], merged[j] = merged[j], merged[i]
			}
		}
	}
	m.bars[symbol] = merged
	return nil
}

func (m *memBars) ReadBars(_ context.Context, symbol string) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corrupt[symbol] {
		return nil, fmt.Errorf("%w: %s: scripted corruption", domain.ErrCacheCorrupt, symbol)
	}
	return m.bars[symbol], nil
}

func (m *memBars) DeleteBars(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bars, symbol)
	m.corrupt[symbol] = false
	return nil
}

// memIndex is an in-memory CacheIndex.
type memIndex struct {
	mu      sync.Mutex
	entries map[string]store.CacheEntry
}

func newMemIndex() *memIndex { return &memIndex{entries: map[string]store.CacheEntry{}} }

func (m *memIndex) Entry(_ context.Context, symbol string) (*store.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[symbol]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memIndex) PutEntry(_ context.Context, entry store.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Symbol] = entry
	return nil
}

func (m *memIndex) DeleteEntry(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, symbol)
	return nil
}

var _ store.BarStore = (*memBars)(nil)
var _ store.CacheIndex = (*memIndex)(nil)

type fixture struct {
	src   *genSource
	bars  *memBars
	index *memIndex
	store *PriceStore
	clock *time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	src := &genSource{broken: map[string]error{}}
	bars := newMemBars()
	index := newMemIndex()
	clock := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	opts.Enabled = true
	opts.Now = func() time.Time { return clock }
	if opts.Quality == (acquire.QualityThresholds{}) {
		opts.Quality = acquire.QualityThresholds{MinTradingDays: 1, MaxMissingRatio: 1}
	}
	acq := acquire.New(src, acquire.Options{RetryAttempts: 1, RetryDelay: time.Nanosecond})
	return &fixture{
		src:   src,
		bars:  bars,
		index: index,
		store: New(bars, index, acq, opts),
		clock: &clock,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGetCachesAndServesRepeatsWithoutFetching(t *testing.T) {
	fx := newFixture(t, Options{})
	start, end := day(2024, 6, 3), day(2024, 6, 14)

	first, err := fx.store.Get(context.Background(), "2330.TW", start, end)
	require.NoError(t, err)
	require.Len(t, first.Bars, 10)
	require.Equal(t, 1, fx.src.callCount())

	second, err := fx.store.Get(context.Background(), "2330.TW", start, end)
	require.NoError(t, err)
	require.Equal(t, first.Bars, second.Bars)
	require.Equal(t, 1, fx.src.callCount(), "covered fresh range must not refetch")
}

func TestGetExtendsCoverageIncrementally(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	// [Jun 3, Jun 7] then [Jun 5, Jun 14]: second call fetches only the tail.
	_, err := fx.store.Get(ctx, "AAPL", day(2024, 6, 3), day(2024, 6, 7))
	require.NoError(t, err)
	require.Equal(t, 1, fx.src.callCount())

	extended, err := fx.store.Get(ctx, "AAPL", day(2024, 6, 5), day(2024, 6, 14))
	require.NoError(t, err)
	require.Equal(t, 2, fx.src.callCount())
	tail := fx.src.calls[1]
	require.Equal(t, day(2024, 6, 8), tail.start, "tail fetch starts after covered end")
	require.Equal(t, day(2024, 6, 14), tail.end)

	// Piecewise result must match a cold fetch of the full range.
	cold := newFixture(t, Options{})
	whole, err := cold.store.Get(ctx, "AAPL", day(2024, 6, 5), day(2024, 6, 14))
	require.NoError(t, err)
	require.Equal(t, whole.Bars, extended.Bars)
}

func TestGetExtendsCoverageAtHead(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()

	_, err := fx.store.Get(ctx, "AAPL", day(2024, 6, 10), day(2024, 6, 14))
	require.NoError(t, err)

	series, err := fx.store.Get(ctx, "AAPL", day(2024, 6, 3), day(2024, 6, 14))
	require.NoError(t, err)
	require.Len(t, series.Bars, 10)
	require.Equal(t, 2, fx.src.callCount())
	head := fx.src.calls[1]
	require.Equal(t, day(2024, 6, 3), head.start)
	require.Equal(t, day(2024, 6, 9), head.end, "head fetch ends before covered start")
}

func TestGetRefreshesStaleTail(t *testing.T) {
	fx := newFixture(t, Options{ExpiryDays: 3, RefreshWindowDays: 5})
	ctx := context.Background()
	start, end := day(2024, 6, 3), day(2024, 6, 14)

	_, err := fx.store.Get(ctx, "2330.TW", start, end)
	require.NoError(t, err)
	require.Equal(t, 1, fx.src.callCount())

	// Within expiry nothing is refetched.
	*fx.clock = fx.clock.Add(48 * time.Hour)
	_, err = fx.store.Get(ctx, "2330.TW", start, end)
	require.NoError(t, err)
	require.Equal(t, 1, fx.src.callCount())

	// Past expiry the trailing window is refetched.
	*fx.clock = fx.clock.Add(5 * 24 * time.Hour)
	_, err = fx.store.Get(ctx, "2330.TW", start, end)
	require.NoError(t, err)
	require.Equal(t, 2, fx.src.callCount())
	refresh := fx.src.calls[1]
	require.Equal(t, end.AddDate(0, 0, -5), refresh.start)
	require.Equal(t, end, refresh.end)
}

func TestGetRecoversFromCorruptCache(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	start, end := day(2024, 6, 3), day(2024, 6, 14)

	_, err := fx.store.Get(ctx, "BAD", start, end)
	require.NoError(t, err)

	fx.bars.mu.Lock()
	fx.bars.corrupt["BAD"] = true
	fx.bars.mu.Unlock()

	series, err := fx.store.Get(ctx, "BAD", start, end)
	require.NoError(t, err, "corruption is treated as a cache miss")
	require.Len(t, series.Bars, 10)
	require.Equal(t, 2, fx.src.callCount(), "recovery refetches the full range")

	entry, err := fx.index.Entry(ctx, "BAD")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, start, entry.Start)
	require.Equal(t, end, entry.End)
}

func TestGetAppliesQualityThresholds(t *testing.T) {
	fx := newFixture(t, Options{Quality: acquire.QualityThresholds{MinTradingDays: 50, MaxMissingRatio: 0.1}})

	_, err := fx.store.Get(context.Background(), "SHORT", day(2024, 6, 3), day(2024, 6, 14))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetBatchIsolatesFailures(t *testing.T) {
	fx := newFixture(t, Options{MaxWorkers: 2})
	fx.src.broken["DEAD"] = fmt.Errorf("%w: delisted", domain.ErrDataUnavailable)

	results := fx.store.GetBatch(context.Background(),
		[]string{"AAPL", "DEAD", "2330.TW"}, day(2024, 6, 3), day(2024, 6, 14))

	require.Len(t, results, 3)
	require.NoError(t, results["AAPL"].Err)
	require.NoError(t, results["2330.TW"].Err)
	require.Len(t, results["AAPL"].Series.Bars, 10)
	require.ErrorIs(t, results["DEAD"].Err, domain.ErrDataUnavailable)
}

func TestPartition(t *testing.T) {
	good := domain.PriceSeries{Symbol: "AAPL", Bars: []domain.Bar{{Symbol: "AAPL"}}}
	results := map[string]SeriesResult{
		"AAPL": {Series: good},
		"DEAD": {Err: fmt.Errorf("%w: delisted", domain.ErrDataUnavailable)},
		"GONE": {Err: fmt.Errorf("%w: no bars", domain.ErrDataUnavailable)},
	}

	usable, series, excluded := Partition([]string{"DEAD", "AAPL", "GONE"}, results)
	require.Equal(t, []string{"AAPL"}, usable)
	require.Equal(t, good, series["AAPL"])
	require.Equal(t, 2, excluded)

	// Every symbol failing leaves an empty usable list, not an error: the
	// caller reports and skips the run.
	usable, series, excluded = Partition([]string{"DEAD", "GONE"}, results)
	require.Empty(t, usable)
	require.Empty(t, series)
	require.Equal(t, 2, excluded)
}

func TestDisabledCacheBypassesStores(t *testing.T) {
	src := &genSource{broken: map[string]error{}}
	acq := acquire.New(src, acquire.Options{RetryAttempts: 1, RetryDelay: time.Nanosecond})
	ps := New(nil, nil, acq, Options{
		Enabled: false,
		Quality: acquire.QualityThresholds{MinTradingDays: 1, MaxMissingRatio: 1},
	})

	ctx := context.Background()
	_, err := ps.Get(ctx, "AAPL", day(2024, 6, 3), day(2024, 6, 7))
	require.NoError(t, err)
	_, err = ps.Get(ctx, "AAPL", day(2024, 6, 3), day(2024, 6, 7))
	require.NoError(t, err)
	require.Equal(t, 2, src.callCount(), "every read goes to the source")
}
