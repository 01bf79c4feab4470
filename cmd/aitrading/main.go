// cmd/aitrading runs the live analysis service: Binance ticker feeds in,
// analyzed price updates out over websocket, Redis and HTTP.
//
// Usage:
//
//	go run ./cmd/aitrading --config=config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pxbt-dev/AiTradingCharts/config"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "Path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aitrading: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(cfg.Service.Name, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aitrading: %v\n", err)
		os.Exit(1)
	}
	log.Info().Strs("symbols", cfg.Service.Symbols).Str("history", cfg.History.Source).Msg("configuration loaded")

	svc, err := pipeline.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("service stopped with error")
	}
}
