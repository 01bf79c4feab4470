// Package ingest drives the per-symbol tick → analyze → publish loop.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/analysis"
	"github.com/pxbt-dev/AiTradingCharts/internal/cache"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Feed delivers ticks for one symbol until ctx is cancelled. Run must call
// handle synchronously so ticks arrive in order, and must make any
// reconnection wait cancelable through ctx.
type Feed interface {
	Run(ctx context.Context, symbol string, handle func(model.Tick)) error
}

// LatencyObserver records tick-to-publish latency.
type LatencyObserver interface {
	Observe(d time.Duration)
}

// Drop reasons recorded on the dropped-ticks counter.
const (
	dropInvalidPrice = "invalid_price"
	dropOutOfOrder   = "out_of_order"
)

// Ingestor runs one feed goroutine per symbol. Each symbol's append,
// analysis and publish happen under that symbol's lock, so results are
// published in tick order even when refreshes run concurrently.
type Ingestor struct {
	symbols  []string
	feed     Feed
	cache    *cache.Cache
	analyzer *analysis.Analyzer
	pub      model.Publisher
	window   int

	locks    map[string]*sync.Mutex
	fallback sync.Mutex

	now     func() time.Time
	health  *metrics.HealthStatus
	latency LatencyObserver
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithHealth reports feed liveness to h.
func WithHealth(h *metrics.HealthStatus) Option { return func(in *Ingestor) { in.health = h } }

// WithLatency records tick-to-publish latency.
func WithLatency(l LatencyObserver) Option { return func(in *Ingestor) { in.latency = l } }

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(in *Ingestor) { in.metrics = m } }

// WithWindow bounds how many of the newest points each analysis sees.
// n <= 0 analyzes the whole cached series.
func WithWindow(n int) Option { return func(in *Ingestor) { in.window = n } }

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(in *Ingestor) { in.now = now } }

// New creates an Ingestor for symbols. Symbols are upper-cased.
func New(symbols []string, feed Feed, c *cache.Cache, a *analysis.Analyzer, pub model.Publisher, log zerolog.Logger, opts ...Option) *Ingestor {
	in := &Ingestor{
		feed:     feed,
		cache:    c,
		analyzer: a,
		pub:      pub,
		locks:    make(map[string]*sync.Mutex, len(symbols)),
		now:      time.Now,
		log:      logger.Component(log, "ingest"),
	}
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := in.locks[s]; dup {
			continue
		}
		in.symbols = append(in.symbols, s)
		in.locks[s] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Symbols returns the tracked symbols in configuration order.
func (in *Ingestor) Symbols() []string {
	out := make([]string, len(in.symbols))
	copy(out, in.symbols)
	return out
}

// Run starts every feed and blocks until all of them return. A feed that
// returns an error before ctx is done is logged; the others keep running.
func (in *Ingestor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sym := range in.symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			in.log.Info().Str("symbol", sym).Msg("feed started")
			err := in.feed.Run(ctx, sym, func(t model.Tick) { in.HandleTick(sym, t) })
			if err != nil && ctx.Err() == nil {
				in.log.Error().Err(err).Str("symbol", sym).Msg("feed stopped")
			}
			if in.health != nil {
				in.health.SetFeedConnected(sym, false)
			}
		}(sym)
	}
	wg.Wait()
	in.log.Info().Msg("all feeds stopped")
}

// HandleTick runs one tick through append, analysis and publish. Invalid
// and out-of-order ticks are dropped and counted.
func (in *Ingestor) HandleTick(symbol string, t model.Tick) {
	start := in.now()
	if t.Received.IsZero() {
		t.Received = start
	}
	if t.TickTS.IsZero() {
		t.TickTS = t.Received
	}
	t.Symbol = symbol

	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		in.drop(symbol, dropInvalidPrice, model.ErrInvalidTick)
		return
	}
	if t.Volume < 0 || math.IsNaN(t.Volume) || math.IsInf(t.Volume, 0) {
		t.Volume = 0
	}
	point := model.PointFromTick(t)

	mu := in.lock(symbol)
	mu.Lock()
	defer mu.Unlock()

	if err := in.cache.Append(symbol, point); err != nil {
		in.drop(symbol, dropOutOfOrder, err)
		return
	}
	if in.metrics != nil {
		in.metrics.TicksTotal.WithLabelValues(symbol).Inc()
	}
	if in.health != nil {
		in.health.SetFeedConnected(symbol, true)
		in.health.SetLastTickTime(symbol, t.Received)
	}

	ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(symbol, t.TickTS))
	in.publish(ctx, point)

	e2e := in.now().Sub(t.Received)
	if in.latency != nil {
		in.latency.Observe(e2e)
	}
	if in.metrics != nil {
		in.metrics.E2ELatency.Observe(e2e.Seconds())
	}
}

// publish analyzes the current series and hands the update to the
// publisher. The caller holds the symbol lock.
func (in *Ingestor) publish(ctx context.Context, point model.PricePoint) {
	points := in.cache.Snapshot(point.Symbol, in.window)
	res := in.analyzer.Analyze(point.Symbol, points)
	in.pub.Publish(model.PriceUpdate{
		Type:      model.MessagePriceUpdate,
		Symbol:    point.Symbol,
		Price:     point.Close,
		Volume:    point.Volume,
		Timestamp: point.Timestamp,
		Analysis:  res,
	})
	log := logger.FromContext(ctx, in.log)
	log.Trace().
		Str("symbol", point.Symbol).
		Float64("price", point.Close).
		Str("signal", string(res.TradingSignal)).
		Msg("update published")
}

// Refresh re-analyzes and re-publishes the latest point for symbol. An
// empty symbol refreshes every tracked symbol.
func (in *Ingestor) Refresh(symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return in.RefreshAll()
	}
	latest, ok := in.cache.Latest(symbol)
	if !ok {
		return fmt.Errorf("refresh %s: %w", symbol, model.ErrInsufficientData)
	}

	mu := in.lock(symbol)
	mu.Lock()
	defer mu.Unlock()
	if newer, ok := in.cache.Latest(symbol); ok {
		latest = newer
	}
	in.publish(context.Background(), latest)
	return nil
}

// RefreshAll refreshes every symbol that has data. Symbols without data
// are skipped; the error reports them.
func (in *Ingestor) RefreshAll() error {
	var errs []error
	for _, sym := range in.cache.Symbols() {
		if err := in.Refresh(sym); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AnalyzeAt analyzes symbol's cached series as if price had just traded.
// The live series and the latest stored analysis are left untouched.
func (in *Ingestor) AnalyzeAt(symbol string, price float64) (*model.AnalysisResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("analyze %s at %v: %w", symbol, price, model.ErrInvalidTick)
	}
	points := in.cache.Snapshot(symbol, in.window)
	if len(points) == 0 {
		return nil, fmt.Errorf("no data for %s: %w", symbol, model.ErrInsufficientData)
	}

	last := points[len(points)-1]
	ts := in.now().UnixMilli()
	if ts < last.Timestamp {
		ts = last.Timestamp
	}
	points = append(points, model.PricePoint{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    last.Volume,
	})
	return in.analyzer.Preview(symbol, points), nil
}

func (in *Ingestor) lock(symbol string) *sync.Mutex {
	if mu, ok := in.locks[symbol]; ok {
		return mu
	}
	// Symbols outside the configured set only arrive through Refresh of
	// seeded data; they share one fallback lock.
	return &in.fallback
}

func (in *Ingestor) drop(symbol, reason string, err error) {
	if in.metrics != nil {
		in.metrics.DroppedTicks.WithLabelValues(reason).Inc()
	}
	in.log.Debug().Err(err).Str("symbol", symbol).Str("reason", reason).Msg("tick dropped")
}
