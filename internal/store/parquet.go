package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"breakout/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore with one Parquet file per symbol under
// <DataDir>/bars/<SYMBOL>.parquet.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// barRecord is the Parquet schema for daily bar data.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, midnight UTC
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// WriteBars merges bars into the symbol's Parquet file, deduplicating by
// date with the incoming bars winning.
func (s *ParquetStore) WriteBars(_ context.Context, symbol string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	path := s.barPath(symbol)

	// A corrupt existing file is dropped and rebuilt from the incoming bars.
	existing, err := readBarFile(path)
	if err != nil {
		existing = nil
	}

	incoming := make([]barRecord, 0, len(bars))
	for _, b := range bars {
		incoming = append(incoming, barRecord{
			Symbol:    symbol,
			Timestamp: b.Date().UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	merged := mergeBarRecords(existing, incoming)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating bar dir for %s: %w", symbol, err)
	}
	if err := parquet.WriteFile(path, merged); err != nil {
		return fmt.Errorf("writing bars for %s: %w", symbol, err)
	}
	return nil
}

// ReadBars returns the symbol's full cached series in date order.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string) ([]domain.Bar, error) {
	path := s.barPath(symbol)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	records, err := readBarFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCacheCorrupt, symbol, err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for _, r := range records {
		bars = append(bars, domain.Bar{
			Symbol:    r.Symbol,
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// DeleteBars removes the symbol's Parquet file if present.
func (s *ParquetStore) DeleteBars(_ context.Context, symbol string) error {
	err := os.Remove(s.barPath(symbol))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting bars for %s: %w", symbol, err)
	}
	return nil
}

// barPath returns the filesystem path for a symbol's bar file.
// Layout: <dataDir>/bars/<SYMBOL>.parquet
func (s *ParquetStore) barPath(symbol string) string {
	// Exchange-suffixed symbols like 2330.TW map to files named 2330_TW.
	name := strings.ReplaceAll(strings.ToUpper(symbol), ".", "_")
	return filepath.Join(s.DataDir, "bars", name+".parquet")
}

func readBarFile(path string) ([]barRecord, error) {
	return parquet.ReadFile[barRecord](path)
}

// mergeBarRecords deduplicates records by timestamp, preferring incoming
// over existing, and returns them sorted by timestamp.
func mergeBarRecords(existing, incoming []barRecord) []barRecord {
	seen := make(map[int64]barRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]barRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
