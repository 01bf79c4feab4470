// Package trainer periodically builds training sets from price history and
// hands them to the registered model provider.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
	"github.com/pxbt-dev/AiTradingCharts/internal/predict"
)

// ErrTooFewSamples means a timeframe did not reach MinSamples.
var ErrTooFewSamples = errors.New("too few training samples")

// Config configures the training schedule.
type Config struct {
	Enabled    bool     `yaml:"enabled"`
	Schedule   string   `yaml:"schedule" default:"0 0 */6 * * *"`
	RunOnStart bool     `yaml:"run_on_start"`
	Timeframes []string `yaml:"timeframes" default:"[\"1h\",\"4h\",\"1d\"]"`
	MinPoints  int      `yaml:"min_points" default:"100" validate:"gte=1"`
	MinSamples int      `yaml:"min_samples" default:"50" validate:"gte=1"`
	HistoryMax int      `yaml:"history_max" default:"1000" validate:"gte=0"`
}

// Source provides the series a symbol is trained on.
type Source interface {
	Load(ctx context.Context, symbol string, limit int) ([]model.PricePoint, error)
}

// CacheSource trains on whatever the live cache holds.
type CacheSource struct {
	Cache *cache.Cache
}

// Load implements Source.
func (s CacheSource) Load(_ context.Context, symbol string, limit int) ([]model.PricePoint, error) {
	return s.Cache.Snapshot(symbol, limit), nil
}

// Trainer pools samples from every symbol per timeframe and trains once per
// timeframe per run.
type Trainer struct {
	cfg      Config
	symbols  []string
	src      Source
	provider model.ModelProvider
	cron     *cron.Cron
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// New creates a Trainer. provider receives every Train call.
func New(cfg Config, symbols []string, src Source, provider model.ModelProvider, log zerolog.Logger) *Trainer {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 0 */6 * * *"
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []string{predict.Hour, predict.FourHour, predict.Day}
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 100
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 50
	}
	return &Trainer{
		cfg:      cfg,
		symbols:  symbols,
		src:      src,
		provider: provider,
		cron:     cron.New(cron.WithSeconds()),
		log:      logger.Component(log, "trainer"),
	}
}

// SetMetrics attaches Prometheus metrics. m may be nil.
func (t *Trainer) SetMetrics(m *metrics.Metrics) { t.metrics = m }

// Start registers the schedule and starts the cron runner. ctx bounds each
// scheduled run.
func (t *Trainer) Start(ctx context.Context) error {
	if _, err := t.cron.AddFunc(t.cfg.Schedule, func() { t.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("register training schedule %q: %w", t.cfg.Schedule, err)
	}
	t.cron.Start()
	t.log.Info().Str("schedule", t.cfg.Schedule).Strs("timeframes", t.cfg.Timeframes).Msg("trainer started")
	if t.cfg.RunOnStart {
		go t.RunOnce(ctx)
	}
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (t *Trainer) Stop() {
	<-t.cron.Stop().Done()
	t.log.Info().Msg("trainer stopped")
}

// RunOnce trains every configured timeframe and returns the sample count
// used per trained timeframe. Per-timeframe failures are joined into err.
func (t *Trainer) RunOnce(ctx context.Context) (map[string]int, error) {
	series := t.load(ctx)
	trained := make(map[string]int, len(t.cfg.Timeframes))
	var errs []error

	for _, name := range t.cfg.Timeframes {
		tf, ok := predict.Lookup(name)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown timeframe %q", name))
			continue
		}
		var ds Dataset
		for _, sym := range sortedKeys(series) {
			ds.Append(BuildDataset(series[sym], tf.Bucket, FutureOffset(name)))
		}
		if ds.Len() < t.cfg.MinSamples {
			t.count(name, "skipped")
			t.log.Warn().Str("timeframe", name).Int("samples", ds.Len()).Int("need", t.cfg.MinSamples).Msg("insufficient training samples")
			errs = append(errs, fmt.Errorf("%s: %d samples: %w", name, ds.Len(), ErrTooFewSamples))
			continue
		}
		if err := t.provider.Train(name, ds.Features, ds.Targets); err != nil {
			t.count(name, "error")
			t.log.Error().Err(err).Str("timeframe", name).Msg("training failed")
			errs = append(errs, err)
			continue
		}
		t.count(name, "ok")
		trained[name] = ds.Len()
	}

	t.log.Info().Int("trained", len(trained)).Int("timeframes", len(t.cfg.Timeframes)).Msg("training run complete")
	return trained, errors.Join(errs...)
}

// load fetches every symbol's series, skipping those below MinPoints.
func (t *Trainer) load(ctx context.Context) map[string][]model.PricePoint {
	out := make(map[string][]model.PricePoint, len(t.symbols))
	for _, sym := range t.symbols {
		points, err := t.src.Load(ctx, sym, t.cfg.HistoryMax)
		if err != nil {
			t.log.Warn().Err(err).Str("symbol", sym).Msg("training history unavailable")
			continue
		}
		if len(points) < t.cfg.MinPoints {
			t.log.Warn().Str("symbol", sym).Int("points", len(points)).Int("need", t.cfg.MinPoints).Msg("insufficient history for training")
			continue
		}
		out[sym] = points
	}
	return out
}

func (t *Trainer) count(timeframe, result string) {
	if t.metrics != nil {
		t.metrics.TrainingRuns.WithLabelValues(timeframe, result).Inc()
	}
}

func sortedKeys(m map[string][]model.PricePoint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
