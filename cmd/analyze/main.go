// cmd/analyze loads a historical daily series from Binance klines or the
// SQLite archive, runs one full analysis on it and prints the result as
// JSON. No live feed, Redis or HTTP server is involved.
//
// Usage:
//
//	go run ./cmd/analyze --symbol=BTC --source=sqlite --db=data/klines.db
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/config"
	"github.com/pxbt-dev/AiTradingCharts/internal/analysis"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/marketdata/history"
	"github.com/pxbt-dev/AiTradingCharts/internal/modelclient"
	"github.com/pxbt-dev/AiTradingCharts/internal/pattern"
	"github.com/pxbt-dev/AiTradingCharts/internal/predict"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a YAML config file (optional)")
	symbol := flag.String("symbol", "BTC", "Symbol to analyze")
	source := flag.String("source", "", "History source: binance or sqlite (default from config)")
	dbPath := flag.String("db", "", "SQLite archive path (default from config)")
	limit := flag.Int("limit", 0, "Points to load (default from config)")
	pretty := flag.Bool("pretty", true, "Indent the JSON output")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if *source != "" {
		cfg.History.Source = *source
	}
	if *dbPath != "" {
		cfg.History.SQLitePath = *dbPath
	}
	if *limit <= 0 {
		*limit = cfg.Cache.BootstrapLimit
	}
	sym := strings.ToUpper(strings.TrimSpace(*symbol))

	// Logs go to stderr so stdout carries only the result.
	cfg.Log.Output = "stderr"
	log, err := logger.Init("analyze", cfg.Log)
	if err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := openSource(cfg, log)
	if err != nil {
		fatalf("%v", err)
	}
	defer closeSrc()

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	points, err := src.Load(loadCtx, sym, *limit)
	cancel()
	if err != nil {
		fatalf("load history: %v", err)
	}
	if len(points) == 0 {
		fatalf("no history for %s", sym)
	}
	log.Info().Str("symbol", sym).Int("points", len(points)).Str("source", src.Name()).Msg("history loaded")

	detector := pattern.NewDetector(cfg.Analysis.Pattern, log)
	predictor := predict.New(nil, log)
	predictor.SetProviderBudget(cfg.Analysis.ProviderBudget)
	if cfg.Model.Enabled {
		client := modelclient.New(cfg.Model, log)
		for _, tf := range cfg.Model.Timeframes {
			predictor.Register(tf, client)
		}
	}
	res := analysis.New(detector, predictor, log).Analyze(sym, points)

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res); err != nil {
		fatalf("encode result: %v", err)
	}
}

func openSource(cfg *config.Config, log zerolog.Logger) (history.Source, func(), error) {
	switch cfg.History.Source {
	case config.HistorySQLite:
		s, err := history.NewSQLiteSource(cfg.History.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.HistoryBinance:
		return history.NewBinanceSource(cfg.History.Binance, log), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("source %q cannot be analyzed offline", cfg.History.Source)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "analyze: "+format+"\n", args...)
	os.Exit(1)
}
