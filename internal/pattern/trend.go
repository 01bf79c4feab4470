package pattern

import (
	"math"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

func (d *Detector) trendLines(w window) []model.Pattern {
	var out []model.Pattern
	p := w.closes
	if rising(p, d.cfg.TrendPeriod) {
		out = append(out, w.pattern(model.PatternUptrend, w.current(),
			trendStrength(p, true), "Higher highs and higher lows"))
	}
	if falling(p, d.cfg.TrendPeriod) {
		out = append(out, w.pattern(model.PatternDowntrend, w.current(),
			trendStrength(p, false), "Lower highs and lower lows"))
	}
	return out
}

// rising reports higher highs and higher lows over the last period points,
// each compared with the point period (or period-1) steps earlier.
func rising(p []float64, period int) bool {
	n := len(p)
	if n < period*2 {
		return false
	}
	for i := n - period; i < n-1; i++ {
		if p[i] <= p[i-period] {
			return false
		}
	}
	for i := n - period + 1; i < n; i++ {
		if p[i] <= p[i-period+1] {
			return false
		}
	}
	return true
}

func falling(p []float64, period int) bool {
	n := len(p)
	if n < period*2 {
		return false
	}
	for i := n - period; i < n-1; i++ {
		if p[i] >= p[i-period] {
			return false
		}
	}
	for i := n - period + 1; i < n; i++ {
		if p[i] >= p[i-period+1] {
			return false
		}
	}
	return true
}

// trendStrength averages the magnitude of recent same-direction returns,
// scaled by 10 and clipped to [0.5, 0.9].
func trendStrength(p []float64, up bool) float64 {
	n := len(p)
	if n < 10 {
		return 0.5
	}
	sum, count := 0.0, 0
	for i := 1; i < min(20, n); i++ {
		prev := p[n-i-1]
		if prev == 0 {
			continue
		}
		change := (p[n-i] - prev) / prev
		if (up && change > 0) || (!up && change < 0) {
			sum += math.Abs(change)
			count++
		}
	}
	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}
	return math.Min(0.9, math.Max(0.5, avg*10))
}
