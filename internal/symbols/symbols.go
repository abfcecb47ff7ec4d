// Package symbols loads stock-list CSV files into an ordered, deduplicated
// symbol universe. List order is preserved: it decides cash-allocation
// priority during the backtest.
package symbols

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads symbols from the first column of a CSV file. A first row
// whose first cell is "symbol" is treated as a header and skipped. Symbols
// are upper-cased; empty cells are ignored.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol list %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading symbol list %s: %w", path, err)
	}

	var symbols []string
	for i, row := range records {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell == "" {
			continue
		}
		if i == 0 && strings.EqualFold(cell, "symbol") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(cell))
	}
	return symbols, nil
}

// LoadFiles loads and concatenates multiple stock-list files, dropping
// duplicates while keeping first-seen order.
func LoadFiles(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	for _, path := range paths {
		syms, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, s := range syms {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out, nil
}

// WithSuffix appends the exchange suffix (e.g. ".TW") to every symbol that
// does not already carry it. An empty suffix returns the input unchanged.
func WithSuffix(symbols []string, suffix string) []string {
	if suffix == "" {
		return symbols
	}
	out := make([]string, len(symbols))
	for i, s := range symbols {
		if strings.HasSuffix(s, suffix) {
			out[i] = s
		} else {
			out[i] = s + suffix
		}
	}
	return out
}
