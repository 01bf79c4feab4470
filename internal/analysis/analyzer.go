// Package analysis assembles the per-tick AnalysisResult from the pattern
// detector, Fibonacci calculator and prediction orchestrator.
package analysis

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/fibonacci"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
	"github.com/pxbt-dev/AiTradingCharts/internal/pattern"
	"github.com/pxbt-dev/AiTradingCharts/internal/predict"
)

// Analyzer is stateless apart from its collaborators and may be shared by
// every symbol's ingest goroutine.
type Analyzer struct {
	detector  *pattern.Detector
	predictor *predict.Orchestrator
	store     *Store
	now       func() time.Time
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStore records every result as the symbol's latest.
func WithStore(s *Store) Option { return func(a *Analyzer) { a.store = s } }

// WithClock overrides the wall clock used for result timestamps.
func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

// WithMetrics attaches the analysis duration histogram.
func WithMetrics(m *metrics.Metrics) Option { return func(a *Analyzer) { a.metrics = m } }

// New creates an analyzer.
func New(detector *pattern.Detector, predictor *predict.Orchestrator, log zerolog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		detector:  detector,
		predictor: predictor,
		now:       time.Now,
		log:       logger.Component(log, "analysis"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds a fresh result for points (oldest first) and records it as
// the symbol's latest. The caller owns points; the result never aliases it
// and is not mutated afterwards.
func (a *Analyzer) Analyze(symbol string, points []model.PricePoint) *model.AnalysisResult {
	res := a.Preview(symbol, points)
	if a.store != nil && len(points) > 0 {
		a.store.Put(res)
	}
	return res
}

// Preview is Analyze without recording the result. It serves what-if
// requests that must not replace the live analysis.
func (a *Analyzer) Preview(symbol string, points []model.PricePoint) *model.AnalysisResult {
	start := time.Now()
	now := a.now()

	res := &model.AnalysisResult{
		Symbol:            symbol,
		Predictions:       map[string]model.Prediction{},
		Patterns:          []model.Pattern{},
		FibonacciZones:    []model.FibonacciZone{},
		RetracementLevels: []model.FibonacciZone{},
		TradingSignal:     model.SignalHold,
		Timestamp:         now.UnixMilli(),
	}
	if len(points) == 0 {
		return res
	}
	res.CurrentPrice = points[len(points)-1].Close

	res.Patterns = a.detector.Detect(symbol, points)
	res.Predictions = a.predictor.PredictAll(symbol, points)
	a.guard(symbol, "fibonacci_time_zones", func() { res.FibonacciZones = fibonacci.TimeZones(symbol, points) })
	a.guard(symbol, "fibonacci_retracements", func() { res.RetracementLevels = fibonacci.Retracements(symbol, points, now) })
	if daily, ok := res.Predictions[predict.Day]; ok {
		res.TradingSignal = Signal(daily, res.CurrentPrice)
	}

	if a.metrics != nil {
		a.metrics.AnalysisDur.Observe(time.Since(start).Seconds())
	}

	a.log.Debug().
		Str("symbol", symbol).
		Int("points", len(points)).
		Int("patterns", len(res.Patterns)).
		Int("zones", len(res.FibonacciZones)).
		Str("signal", string(res.TradingSignal)).
		Dur("took", time.Since(start)).
		Msg("analysis complete")
	return res
}

// guard runs fn and logs a recovered panic; fn's target keeps its default.
func (a *Analyzer) guard(symbol, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error().
				Str("symbol", symbol).
				Str("stage", stage).
				Str("panic", fmt.Sprint(r)).
				Msg("analysis stage failed")
		}
	}()
	fn()
}
