// Command fetch warms the price cache for the configured symbol universe
// without running a backtest, so a later backtest run works offline.
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
	"breakout/internal/cache"
	"breakout/internal/config"
	"breakout/internal/store"
	"breakout/internal/symbols"
	"breakout/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "path to configuration file")
	startFlag := flag.String("start", "", "override start date (2006-01-02)")
	endFlag := flag.String("end", "", "override end date (2006-01-02)")
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
	if *startFlag != "" {
		cfg.StartDate = *startFlag
	}
	if *endFlag != "" {
		cfg.EndDate = *endFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid date overrides: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/fetch-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	util.SetDefault(util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format))

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("fetch error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	syms, err := symbols.LoadFiles(cfg.SymbolFiles)
	if err != nil {
		return fmt.Errorf("loading symbol files: %w", err)
	}
	syms = symbols.WithSuffix(syms, cfg.SymbolSuffix)

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
		return fmt.Errorf("creating cache dir: %w", err)
	}
	sdb, err := store.NewSQLiteStore(filepath.Join(cfg.Data.CacheDir, "breakout.db"))
	if err != nil {
		return err
	}
	defer sdb.Close()

	prices := cache.New(store.NewParquetStore(cfg.Data.CacheDir), sdb, acq, cache.Options{
		Enabled:           true,
		ExpiryDays:        cfg.Data.ExpiryDays,
		RefreshWindowDays: cfg.Data.RefreshWindowDays,
		MaxWorkers:        cfg.Data.MaxWorkers,
		Quality: acquire.QualityThresholds{
			MinTradingDays:  cfg.Data.MinTradingDays,
			MaxMissingRatio: cfg.Data.MaxMissingRatio,
		},
		Logger: slog.Default(),
	})

	slog.Info("warming cache",
		"symbols", len(syms), "source", source.Name(),
		"start", cfg.StartDate, "end", cfg.EndDate)

	results := prices.GetBatch(ctx, syms, cfg.Start(), cfg.End())
	warmed, failed := 0, 0
	for _, symbol := range syms {
		res := results[symbol]
		if res.Err != nil {
			failed++
			slog.Warn("symbol failed", "symbol", symbol, "err", res.Err)
			continue
		}
		warmed++
		slog.Debug("symbol cached", "symbol", symbol, "bars", len(res.Series.Bars))
	}

	slog.Info("cache warm complete", "warmed", warmed, "failed", failed)
	return nil
}
