// Package pattern detects chart and candlestick patterns in a price window.
package pattern

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/pxbt-dev/AiTradingCharts/internal/logger"
	"github.com/pxbt-dev/AiTradingCharts/internal/metrics"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Config tunes the detector. Zero fields take the defaults below.
type Config struct {
	MinPoints        int     `yaml:"min_points" default:"20" validate:"gte=1"`
	SwingWindow      int     `yaml:"swing_window" default:"3" validate:"gte=1"`
	ClusterTolerance float64 `yaml:"cluster_tolerance" default:"0.02" validate:"gt=0,lt=1"`
	MinTouches       int     `yaml:"min_touches" default:"2" validate:"gte=1"`
	TrendPeriod      int     `yaml:"trend_period" default:"10" validate:"gte=2"`
}

// DefaultConfig returns the stock detector settings.
func DefaultConfig() Config {
	return Config{
		MinPoints:        20,
		SwingWindow:      3,
		ClusterTolerance: 0.02,
		MinTouches:       2,
		TrendPeriod:      10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinPoints <= 0 {
		c.MinPoints = d.MinPoints
	}
	if c.SwingWindow <= 0 {
		c.SwingWindow = d.SwingWindow
	}
	if c.ClusterTolerance <= 0 {
		c.ClusterTolerance = d.ClusterTolerance
	}
	if c.MinTouches <= 0 {
		c.MinTouches = d.MinTouches
	}
	if c.TrendPeriod <= 1 {
		c.TrendPeriod = d.TrendPeriod
	}
	return c
}

// window is the input handed to every family.
type window struct {
	symbol  string
	points  []model.PricePoint
	closes  []float64
	volumes []float64
	ts      int64
}

func (w window) current() float64 { return w.closes[len(w.closes)-1] }

func (w window) pattern(t model.PatternType, level, confidence float64, desc string) model.Pattern {
	return model.Pattern{
		Symbol:      w.symbol,
		Type:        t,
		PriceLevel:  level,
		Confidence:  confidence,
		Description: desc,
		Timestamp:   w.ts,
	}
}

type family struct {
	name   string
	detect func(w window) []model.Pattern
}

// Detector runs every pattern family over a window. It holds no per-call
// state and is safe for concurrent use.
type Detector struct {
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	families []family
}

// NewDetector creates a detector.
func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	d := &Detector{
		cfg: cfg.withDefaults(),
		log: logger.Component(log, "pattern"),
	}
	d.families = []family{
		{"support_resistance", d.supportResistance},
		{"trend", d.trendLines},
		{"shapes", d.shapes},
		{"candlestick", d.candlesticks},
		{"weekly", d.weekly},
	}
	return d
}

// SetMetrics attaches Prometheus counters for recovered panics.
func (d *Detector) SetMetrics(m *metrics.Metrics) { d.metrics = m }

// Detect returns every pattern found in points (oldest first), sorted by
// descending confidence. Windows shorter than MinPoints yield an empty list.
// Timestamps are taken from the newest point.
func (d *Detector) Detect(symbol string, points []model.PricePoint) []model.Pattern {
	out := []model.Pattern{}
	if len(points) < d.cfg.MinPoints {
		d.log.Debug().Str("symbol", symbol).Int("points", len(points)).Msg("insufficient data for pattern detection")
		return out
	}

	w := window{
		symbol:  symbol,
		points:  points,
		closes:  model.Closes(points),
		volumes: model.Volumes(points),
		ts:      points[len(points)-1].Timestamp,
	}
	for _, f := range d.families {
		out = append(out, d.run(f, w)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	d.log.Debug().Str("symbol", symbol).Int("patterns", len(out)).Msg("patterns detected")
	return out
}

// Weekly returns only the WEEKLY_* family for points.
func (d *Detector) Weekly(symbol string, points []model.PricePoint) []model.Pattern {
	if len(points) < d.cfg.MinPoints {
		return []model.Pattern{}
	}
	w := window{
		symbol:  symbol,
		points:  points,
		closes:  model.Closes(points),
		volumes: model.Volumes(points),
		ts:      points[len(points)-1].Timestamp,
	}
	return d.run(family{"weekly", d.weekly}, w)
}

// run isolates one family; a panic costs that family's results only.
func (d *Detector) run(f family, w window) (found []model.Pattern) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("symbol", w.symbol).
				Str("family", f.name).
				Str("panic", fmt.Sprint(r)).
				Msg("pattern family failed")
			if d.metrics != nil {
				d.metrics.PatternPanics.WithLabelValues(f.name).Inc()
			}
			found = nil
		}
	}()
	return f.detect(w)
}
