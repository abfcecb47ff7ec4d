package backtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"breakout/internal/domain"
)

func TestExportCSV(t *testing.T) {
	ledger := &Ledger{
		Trades: []domain.TradeRecord{
			{
				Symbol: "2330.TW", Action: domain.ActionEnter,
				Date:  time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
				Price: 11, Quantity: 10, Commission: 1.1, Slippage: 2.2,
				ResultingCash: 886.7,
			},
			{
				Symbol: "AAPL", Action: domain.ActionEnter,
				Date:  time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
				Price: 200, ResultingCash: 886.7,
				Note: domain.NoteInsufficientCash,
			},
		},
		Equity: []domain.EquityPoint{
			{Date: time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), TotalEquity: 996.7},
		},
	}

	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, ExportCSV(path, ledger))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "symbol", rows[0][0])
	require.Equal(t, []string{"2330.TW", "enter", "2024-06-05", "11", "10", "1.1", "2.2", "886.7", ""}, rows[1])
	require.Equal(t, "insufficient_cash", rows[2][8])

	equityPath := EquityCSVPath(path)
	require.True(t, strings.HasSuffix(equityPath, "results_equity.csv"))
	ef, err := os.Open(equityPath)
	require.NoError(t, err)
	defer ef.Close()
	erows, err := csv.NewReader(ef).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{{"date", "total_equity"}, {"2024-06-05", "996.7"}}, erows)
}
