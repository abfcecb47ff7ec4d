package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteTradesCSV writes the trade ledger as CSV.
func WriteTradesCSV(w io.Writer, ledger *Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"symbol", "action", "date", "price", "quantity",
		"commission", "slippage", "resulting_cash", "note",
	}); err != nil {
		return err
	}
	for _, tr := range ledger.Trades {
		rec := []string{
			tr.Symbol,
			string(tr.Action),
			tr.Date.Format("2006-01-02"),
			strconv.FormatFloat(tr.Price, 'f', -1, 64),
			strconv.FormatInt(tr.Quantity, 10),
			strconv.FormatFloat(tr.Commission, 'f', -1, 64),
			strconv.FormatFloat(tr.Slippage, 'f', -1, 64),
			strconv.FormatFloat(tr.ResultingCash, 'f', -1, 64),
			tr.Note,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the daily equity curve as CSV.
func WriteEquityCSV(w io.Writer, ledger *Ledger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "total_equity"}); err != nil {
		return err
	}
	for _, pt := range ledger.Equity {
		rec := []string{
			pt.Date.Format("2006-01-02"),
			strconv.FormatFloat(pt.TotalEquity, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportCSV writes the trade ledger to path and the equity curve next to it
// with an "_equity" suffix before the extension.
func ExportCSV(path string, ledger *Ledger) error {
	if err := writeFileCSV(path, ledger, WriteTradesCSV); err != nil {
		return fmt.Errorf("write trades csv: %w", err)
	}
	if err := writeFileCSV(EquityCSVPath(path), ledger, WriteEquityCSV); err != nil {
		return fmt.Errorf("write equity csv: %w", err)
	}
	return nil
}

// EquityCSVPath derives the equity-curve path from the trades path:
// results.csv becomes results_equity.csv.
func EquityCSVPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_equity" + ext
}

func writeFileCSV(path string, ledger *Ledger, write func(io.Writer, *Ledger) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, ledger); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
