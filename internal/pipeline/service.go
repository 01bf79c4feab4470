// Package pipeline wires the feed, cache, analysis, broadcast and optional
// Redis, model and training components into one service and owns their
// lifecycle.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/config"
	"github.com/pxbt-dev/AiTradingCharts/internal/analysis"
	"github.com/pxbt-dev/AiTradingCharts/internal/api"
	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/gateway"
	"github.com/pxbt-dev/AiTradingCharts/internal/ingest"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/marketdata/binance"
	"github.com/pxbt-dev/AiTradingCharts/internal/marketdata/history"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
	"github.com/pxbt-dev/AiTradingCharts/internal/modelclient"
	"github.com/pxbt-dev/AiTradingCharts/internal/pattern"
	"github.com/pxbt-dev/AiTradingCharts/internal/predict"
	"github.com/pxbt-dev/AiTradingCharts/internal/relay"
	"github.com/pxbt-dev/AiTradingCharts/internal/trainer"
)

// Service is the top-level orchestrator.
type Service struct {
	cfg *config.Config
	log zerolog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	cache    *cache.Cache
	store    *analysis.Store
	hub      *gateway.Hub
	relay    *relay.Relay
	archive  *history.SQLiteSource
	seeder   *history.Seeder
	stream   *binance.Stream
	ingestor *ingest.Ingestor
	trainer  *trainer.Trainer
	api      *api.Server
}

// New builds every component from cfg. Optional dependencies that fail to
// come up (Redis, the SQLite archive) are logged and left out.
func New(cfg *config.Config, log zerolog.Logger) (*Service, error) {
	svc := &Service{
		cfg:      cfg,
		log:      logger.Component(log, "pipeline"),
		registry: prometheus.NewRegistry(),
		health:   metrics.NewHealthStatus(),
		cache:    cache.New(cfg.Cache.Capacity),
		store:    analysis.NewStore(),
	}
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.metrics = metrics.NewMetrics(svc.registry)

	detector := pattern.NewDetector(cfg.Analysis.Pattern, log)
	detector.SetMetrics(svc.metrics)

	predictor := predict.New(nil, log)
	predictor.SetMetrics(svc.metrics)
	predictor.SetProviderBudget(cfg.Analysis.ProviderBudget)

	var provider *modelclient.Client
	if cfg.Model.Enabled {
		provider = modelclient.New(cfg.Model, log)
		for _, tf := range cfg.Model.Timeframes {
			if _, ok := predict.Lookup(tf); !ok {
				return nil, fmt.Errorf("model timeframe %q is not a known horizon", tf)
			}
			predictor.Register(tf, provider)
		}
		svc.log.Info().Str("url", cfg.Model.BaseURL).Strs("timeframes", cfg.Model.Timeframes).Msg("model provider registered")
	}

	analyzer := analysis.New(detector, predictor, log,
		analysis.WithStore(svc.store),
		analysis.WithMetrics(svc.metrics),
	)

	svc.hub = gateway.NewHub(log, svc.metrics)
	var pub model.Publisher = svc.hub

	svc.health.SetRedisEnabled(cfg.Redis.Enabled)
	if cfg.Redis.Enabled {
		r, err := relay.New(cfg.Redis, log)
		if err != nil {
			svc.log.Warn().Err(err).Msg("redis unavailable, continuing without relay")
		} else {
			r.SetMetrics(svc.metrics)
			r.Encode = svc.hub.Encode
			svc.relay = r
			pub = model.MultiPublisher{svc.hub, r}
		}
	}

	if err := svc.buildHistory(log); err != nil {
		svc.Close()
		return nil, err
	}

	svc.stream = binance.New(cfg.Feed, log)
	svc.stream.OnConnect = func(symbol string) {
		svc.health.SetFeedConnected(symbol, true)
	}
	svc.stream.OnDisconnect = func(symbol string, _ error) {
		svc.health.SetFeedConnected(symbol, false)
		svc.metrics.WSReconnects.WithLabelValues(symbol).Inc()
	}

	svc.ingestor = ingest.New(cfg.Service.Symbols, svc.stream, svc.cache, analyzer, pub, log,
		ingest.WithHealth(svc.health),
		ingest.WithLatency(svc.hub.Latency),
		ingest.WithMetrics(svc.metrics),
		ingest.WithWindow(cfg.Cache.AnalysisWindow),
	)

	if cfg.Trainer.Enabled && provider != nil {
		svc.trainer = trainer.New(cfg.Trainer, svc.ingestor.Symbols(), trainer.CacheSource{Cache: svc.cache}, provider, log)
		svc.trainer.SetMetrics(svc.metrics)
	}

	svc.api = api.NewServer(cfg.HTTP.Addr, api.Deps{
		Service:   cfg.Service.Name,
		Symbols:   svc.ingestor.Symbols(),
		Cache:     svc.cache,
		Store:     svc.store,
		Hub:       svc.hub,
		Refresher: svc.ingestor,
		Health:    svc.health,
		Gatherer:  svc.registry,
		WebSocket: svc.hub.ServeWS(cfg.HTTP.WebSocket, svc.ingestor),
	}, log)

	return svc, nil
}

func (svc *Service) buildHistory(log zerolog.Logger) error {
	cfg := svc.cfg
	var src history.Source
	switch cfg.History.Source {
	case config.HistoryBinance:
		src = history.NewBinanceSource(cfg.History.Binance, log)
	case config.HistorySQLite:
		archive, err := history.NewSQLiteSource(cfg.History.SQLitePath)
		if err != nil {
			return err
		}
		svc.archive = archive
		svc.health.SetArchiveEnabled(true)
		src = archive
	case config.HistoryNone:
		return nil
	default:
		return fmt.Errorf("unknown history source %q", cfg.History.Source)
	}
	svc.seeder = history.NewSeeder(src, svc.cache, cfg.Cache.BootstrapLimit, log, svc.metrics)
	return nil
}

// API returns the HTTP server.
func (svc *Service) API() *api.Server { return svc.api }

// Cache returns the price series cache.
func (svc *Service) Cache() *cache.Cache { return svc.cache }

// Store returns the latest-analysis store.
func (svc *Service) Store() *analysis.Store { return svc.store }

// Health returns the health tracker.
func (svc *Service) Health() *metrics.HealthStatus { return svc.health }

// Run seeds history, starts every subsystem and blocks until ctx is
// cancelled, then shuts down gracefully.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info().Strs("symbols", svc.ingestor.Symbols()).Msg("starting analysis service")

	var wg sync.WaitGroup
	if svc.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.relay.Run(ctx)
		}()
	}

	if svc.seeder != nil {
		seeded := svc.seeder.SeedAll(ctx, svc.ingestor.Symbols())
		svc.log.Info().Interface("points", seeded).Msg("history bootstrap complete")
	}

	var rdb *goredis.Client
	if svc.relay != nil {
		rdb = svc.relay.Client()
	}
	var archiveDB *sql.DB
	if svc.archive != nil {
		archiveDB = svc.archive.DB()
	}
	if cfg.Service.HealthInterval > 0 {
		svc.health.StartLivenessChecker(ctx, rdb, archiveDB, cfg.Service.HealthInterval)
	}

	svc.api.Start()

	if svc.trainer != nil {
		if err := svc.trainer.Start(ctx); err != nil {
			svc.log.Error().Err(err).Msg("trainer not started")
			svc.trainer = nil
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.ingestor.Run(ctx)
	}()

	svc.log.Info().
		Str("http", cfg.HTTP.Addr).
		Bool("redis", svc.relay != nil).
		Bool("model", cfg.Model.Enabled).
		Bool("trainer", svc.trainer != nil).
		Str("history", cfg.History.Source).
		Msg("all systems running")

	<-ctx.Done()
	svc.shutdown()
	wg.Wait()
	svc.Close()
	svc.log.Info().Msg("shutdown complete")
	return nil
}

func (svc *Service) shutdown() {
	svc.log.Info().Msg("shutdown signal received")
	timeout := svc.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := svc.api.Shutdown(shutCtx); err != nil {
		svc.log.Warn().Err(err).Msg("http shutdown")
	}
	if svc.trainer != nil {
		svc.trainer.Stop()
	}
}

// Close releases the Redis client and the archive handle.
func (svc *Service) Close() {
	if svc.relay != nil {
		if err := svc.relay.Close(); err != nil {
			svc.log.Warn().Err(err).Msg("redis close")
		}
		svc.relay = nil
	}
	if svc.archive != nil {
		if err := svc.archive.Close(); err != nil {
			svc.log.Warn().Err(err).Msg("archive close")
		}
		svc.archive = nil
	}
}
