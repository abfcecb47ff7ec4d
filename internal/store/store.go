// Package store defines storage interfaces for persisting and retrieving
// cached price bars, cache-coverage metadata, and backtest results.
package store

import (
	"context"
	"time"

	"breakout/internal/domain"
)

// BarStore persists and retrieves a cached OHLCV series per symbol.
type BarStore interface {
	// WriteBars merges a batch of bars into the symbol's cached series.
	// On date overlap the new bars win.
	WriteBars(ctx context.Context, symbol string, bars []domain.Bar) error

	// ReadBars returns the full cached series for a symbol in date order.
	// An absent entry returns (nil, nil); an unreadable one returns an
	// error wrapping domain.ErrCacheCorrupt.
	ReadBars(ctx context.Context, symbol string) ([]domain.Bar, error)

	// DeleteBars removes the cached series for a symbol.
	DeleteBars(ctx context.Context, symbol string) error
}

// CacheEntry records which date range a symbol's cached series covers and
// when it was last fetched from a source.
type CacheEntry struct {
	Symbol    string
	Start     time.Time
	End       time.Time
	FetchedAt time.Time
}

// CacheIndex persists cache-coverage metadata per symbol.
type CacheIndex interface {
	// Entry returns the cache entry for a symbol, or nil if none exists.
	Entry(ctx context.Context, symbol string) (*CacheEntry, error)

	// PutEntry inserts or replaces the cache entry for entry.Symbol.
	PutEntry(ctx context.Context, entry CacheEntry) error

	// DeleteEntry removes the cache entry for a symbol.
	DeleteEntry(ctx context.Context, symbol string) error
}

// LedgerStore persists completed backtest runs: the trade ledger and the
// daily equity curve.
type LedgerStore interface {
	// SaveRun stores a completed run and returns its assigned run ID.
	SaveRun(ctx context.Context, strategy string, trades []domain.TradeRecord, equity []domain.EquityPoint) (int64, error)

	// ReadTrades returns the trade ledger of a stored run in insertion order.
	ReadTrades(ctx context.Context, runID int64) ([]domain.TradeRecord, error)

	// ReadEquity returns the equity curve of a stored run in date order.
	ReadEquity(ctx context.Context, runID int64) ([]domain.EquityPoint, error)
}
