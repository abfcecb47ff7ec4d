package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"breakout/internal/acquire"
	"breakout/internal/backtest"
	"breakout/internal/cache"
	"breakout/internal/config"
	"breakout/internal/signal"
	"breakout/internal/store"
	"breakout/internal/symbols"
	"breakout/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfgPath := "config/backtest.yaml"
	if p := os.Getenv("BACKTEST_CONFIG"); p != "" {
		cfgPath = p
	}
	if *cfgFlag != "" {
		cfgPath = *cfgFlag
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/backtest-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("backtest error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	syms, err := symbols.LoadFiles(cfg.SymbolFiles)
	if err != nil {
		return fmt.Errorf("loading symbol files: %w", err)
	}
	syms = symbols.WithSuffix(syms, cfg.SymbolSuffix)
	slog.Info("universe loaded", "symbols", len(syms), "files", len(cfg.SymbolFiles))

	prices, sdb, err := buildPriceStore(cfg)
	if err != nil {
		return err
	}
	defer sdb.Close()

	start, end := cfg.Start(), cfg.End()
	results := prices.GetBatch(ctx, syms, start, end)
	for _, symbol := range syms {
		if res := results[symbol]; res.Err != nil {
			slog.Warn("symbol excluded", "symbol", symbol, "err", res.Err)
		}
	}

	usable, series, excluded := cache.Partition(syms, results)
	slog.Info("price data ready", "usable", len(usable), "excluded", excluded)
	if len(usable) == 0 {
		// Data problems are per-symbol and non-fatal; with nothing left
		// to run there is no result, but the exit stays clean.
		slog.Error("no usable symbols in universe, skipping backtest", "excluded", excluded)
		return nil
	}

	strat, err := signal.New(cfg.Strategy.Name, signal.Params{
		SMAWindow:  cfg.Strategy.Params.SMAWindow,
		HighWindow: cfg.Strategy.Params.HighWindow,
	})
	if err != nil {
		return err
	}
	sizer, err := backtest.NewSizer(cfg.Sizer.Type, cfg.Sizer.Percents, cfg.Sizer.Shares)
	if err != nil {
		return err
	}

	runner := backtest.NewRunner(backtest.Options{
		Cash:       cfg.Cash,
		Commission: cfg.Commission,
		Slippage:   cfg.Slippage,
		Sizer:      sizer,
		Workers:    cfg.Data.MaxWorkers,
		Logger:     slog.Default(),
	})
	ledger, err := runner.Run(ctx, strat, usable, series)
	if err != nil {
		return err
	}

	if err := backtest.ExportCSV(cfg.Output.CSVPath, ledger); err != nil {
		return err
	}
	runID, err := sdb.SaveRun(ctx, strat.Name(), ledger.Trades, ledger.Equity)
	if err != nil {
		return fmt.Errorf("persisting run: %w", err)
	}

	sum := runner.Summarize(ledger)
	slog.Info("backtest complete",
		"run_id", runID,
		"csv", cfg.Output.CSVPath,
		"final_equity", fmt.Sprintf("%.2f", sum.FinalEquity),
		"total_return", fmt.Sprintf("%.2f%%", sum.TotalReturn*100),
		"trades", sum.Trades,
		"win_rate", fmt.Sprintf("%.1f%%", sum.WinRate*100),
		"max_drawdown", fmt.Sprintf("%.2f%%", sum.MaxDrawdown*100),
		"skipped_insufficient_cash", sum.SkippedCash,
	)
	return nil
}

// buildPriceStore wires the configured source, the parquet bar cache, and
// the sqlite index into a PriceStore.
func buildPriceStore(cfg *config.Config) (*cache.PriceStore, *store.SQLiteStore, error) {
	var source acquire.Source
	switch cfg.Data.Source {
	case "alpaca":
		source = acquire.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	default:
		source = acquire.NewYahooSource(acquire.YahooOptions{
			Timeout:         time.Duration(cfg.Data.DownloadTimeout) * time.Second,
			SkipTLSVerify:   !cfg.SSLVerify(),
			RateLimitPerMin: cfg.Data.RateLimitPerMin,
		})
	}

	acq := acquire.New(source, acquire.Options{
		RetryAttempts: cfg.Data.RetryAttempts,
		Logger:        slog.Default(),
	})

	if err := os.MkdirAll(cfg.Data.CacheDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating cache dir: %w", err)
	}
	dbPath := cfg.Output.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Data.CacheDir, "breakout.db")
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating db dir: %w", err)
	}
	sdb, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, err
	}

	prices := cache.New(store.NewParquetStore(cfg.Data.CacheDir), sdb, acq, cache.Options{
		Enabled:           cfg.CacheEnabled(),
		ExpiryDays:        cfg.Data.ExpiryDays,
		RefreshWindowDays: cfg.Data.RefreshWindowDays,
		MaxWorkers:        cfg.Data.MaxWorkers,
		Quality: acquire.QualityThresholds{
			MinTradingDays:  cfg.Data.MinTradingDays,
			MaxMissingRatio: cfg.Data.MaxMissingRatio,
		},
		Logger: slog.Default(),
	})
	return prices, sdb, nil
}
