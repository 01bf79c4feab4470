package predict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/indicator"
	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// DefaultProviderBudget bounds the model provider calls of one PredictAll.
const DefaultProviderBudget = time.Second

// Orchestrator predicts every configured timeframe for a series. Providers
// may be registered at any time; Predict is safe for concurrent use.
type Orchestrator struct {
	timeframes []Timeframe
	budget     time.Duration
	log        zerolog.Logger
	metrics    *metrics.Metrics

	mu        sync.RWMutex
	providers map[string]model.ModelProvider
}

// New creates an orchestrator. An empty timeframes list uses the defaults.
func New(timeframes []Timeframe, log zerolog.Logger) *Orchestrator {
	if len(timeframes) == 0 {
		timeframes = DefaultTimeframes()
	}
	return &Orchestrator{
		timeframes: timeframes,
		budget:     DefaultProviderBudget,
		log:        logger.Component(log, "predict"),
		providers:  make(map[string]model.ModelProvider),
	}
}

// SetMetrics attaches the prediction source counter.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) { o.metrics = m }

// SetProviderBudget sets the deadline shared by every provider call made for
// one series. Once it is spent the remaining timeframes use heuristics.
// d <= 0 restores DefaultProviderBudget.
func (o *Orchestrator) SetProviderBudget(d time.Duration) {
	if d <= 0 {
		d = DefaultProviderBudget
	}
	o.budget = d
}

// Timeframes returns the configured horizons in order.
func (o *Orchestrator) Timeframes() []Timeframe {
	return append([]Timeframe(nil), o.timeframes...)
}

// Register installs p as the model provider for timeframe tf. A nil p
// removes the registration.
func (o *Orchestrator) Register(tf string, p model.ModelProvider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p == nil {
		delete(o.providers, tf)
		return
	}
	o.providers[tf] = p
}

func (o *Orchestrator) provider(tf string) model.ModelProvider {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.providers[tf]
}

func (o *Orchestrator) timeframe(name string) (Timeframe, bool) {
	for _, tf := range o.timeframes {
		if tf.Name == name {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// PredictAll runs every timeframe over points (oldest first). A failure in
// one timeframe yields its fallback and never affects the others.
func (o *Orchestrator) PredictAll(symbol string, points []model.PricePoint) map[string]model.Prediction {
	ctx, cancel := context.WithTimeout(context.Background(), o.budget)
	defer cancel()

	out := make(map[string]model.Prediction, len(o.timeframes))
	for _, tf := range o.timeframes {
		out[tf.Name] = o.predict(ctx, symbol, tf, points)
	}
	return out
}

// Predict forecasts one timeframe. Unknown timeframes get a minimum
// confidence neutral prediction.
func (o *Orchestrator) Predict(symbol, timeframe string, points []model.PricePoint) model.Prediction {
	tf, ok := o.timeframe(timeframe)
	if !ok {
		o.log.Warn().Str("symbol", symbol).Str("timeframe", timeframe).Msg("unknown timeframe")
		current := 0.0
		if len(points) > 0 {
			current = points[len(points)-1].Close
		}
		return fallback(symbol, Timeframe{Name: timeframe, FallbackConfidence: minConfidence}, current)
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.budget)
	defer cancel()
	return o.predict(ctx, symbol, tf, points)
}

func (o *Orchestrator) predict(ctx context.Context, symbol string, tf Timeframe, points []model.PricePoint) (pred model.Prediction) {
	current := 0.0
	if len(points) > 0 {
		current = points[len(points)-1].Close
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().
				Str("symbol", symbol).
				Str("timeframe", tf.Name).
				Str("panic", fmt.Sprint(r)).
				Msg("prediction failed")
			pred = fallback(symbol, tf, current)
		}
		if o.metrics != nil {
			o.metrics.PredictionSource.WithLabelValues(tf.Name, string(pred.Source)).Inc()
		}
	}()

	window := windowFor(tf, points)
	if len(window) < tf.MinPoints || len(window) == 0 || current <= 0 {
		o.log.Debug().
			Str("symbol", symbol).
			Str("timeframe", tf.Name).
			Int("points", len(window)).
			Err(model.ErrInsufficientData).
			Msg("using fallback prediction")
		return fallback(symbol, tf, current)
	}

	sig := readSignals(model.Closes(window))
	heurConf := heuristicConfidence(tf.BaseConfidence, sig)

	if p := o.provider(tf.Name); p != nil {
		mp, err := o.fromProvider(ctx, p, symbol, tf, points, current, heurConf)
		if err == nil {
			return mp
		}
		ev := o.log.Warn()
		if errors.Is(err, model.ErrProviderUnavailable) {
			ev = o.log.Debug()
		}
		ev.Err(err).Str("symbol", symbol).Str("timeframe", tf.Name).Msg("model provider failed, using heuristic")
	}

	change := clampMove(heuristicChange(tf.Name, sig), tf.MaxMove)
	price := current * (1 + change)
	return model.Prediction{
		Symbol:         symbol,
		Timeframe:      tf.Name,
		PredictedPrice: price,
		Confidence:     heurConf,
		Trend:          trendDirection(sig),
		PriceTargets:   Targets(price, heurConf),
		Source:         model.SourceHeuristic,
	}
}

func (o *Orchestrator) fromProvider(ctx context.Context, p model.ModelProvider, symbol string, tf Timeframe, points []model.PricePoint, current, heurConf float64) (model.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return model.Prediction{}, fmt.Errorf("%w: prediction budget spent", model.ErrProviderUnavailable)
	}
	features := indicator.Features(tf.Bucket, tail(points, indicator.FeatureWindow))

	var (
		value, conf float64
		err         error
	)
	if cp, ok := p.(model.ContextPredictor); ok {
		value, conf, err = cp.PredictContext(ctx, features, tf.Name)
	} else {
		value, conf, err = p.Predict(features, tf.Name)
	}
	if err != nil {
		return model.Prediction{}, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return model.Prediction{}, fmt.Errorf("non-finite prediction %v", value)
	}

	change := clampMove(value, tf.MaxMove)
	if !(conf > 0 && conf <= 1) {
		conf = heurConf
	}
	conf = boundConfidence(conf)
	price := current * (1 + change)
	return model.Prediction{
		Symbol:         symbol,
		Timeframe:      tf.Name,
		PredictedPrice: price,
		Confidence:     conf,
		Trend:          changeDirection(change),
		PriceTargets:   Targets(price, conf),
		Source:         model.SourceModel,
	}, nil
}

func fallback(symbol string, tf Timeframe, current float64) model.Prediction {
	conf := math.Min(tf.FallbackConfidence, 0.4)
	if conf < minConfidence {
		conf = minConfidence
	}
	return model.Prediction{
		Symbol:         symbol,
		Timeframe:      tf.Name,
		PredictedPrice: current,
		Confidence:     conf,
		Trend:          model.TrendNeutral,
		PriceTargets:   Targets(current, conf),
		Source:         model.SourceFallback,
	}
}

func clampMove(change, maxMove float64) float64 {
	if math.IsNaN(change) {
		return 0
	}
	return indicator.Clamp(change, -maxMove, maxMove)
}

// windowFor keeps the points within tf.Window of the newest point.
func windowFor(tf Timeframe, points []model.PricePoint) []model.PricePoint {
	if tf.Window <= 0 || len(points) == 0 {
		return points
	}
	cutoff := points[len(points)-1].Time().Add(-tf.Window).UnixMilli()
	i := len(points)
	for i > 0 && points[i-1].Timestamp >= cutoff {
		i--
	}
	return points[i:]
}

func tail(points []model.PricePoint, n int) []model.PricePoint {
	if n <= 0 || len(points) <= n {
		return points
	}
	return points[len(points)-n:]
}
