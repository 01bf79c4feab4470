package pattern

import (
	"fmt"
	"math"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

type level struct {
	price   float64
	touches int
}

func (d *Detector) supportResistance(w window) []model.Pattern {
	var out []model.Pattern
	cur := w.current()
	if cur <= 0 {
		return nil
	}

	for _, lv := range clusterLevels(swingPoints(w.closes, d.cfg.SwingWindow, true), d.cfg.ClusterTolerance) {
		if lv.touches < d.cfg.MinTouches {
			continue
		}
		out = append(out, w.pattern(model.PatternResistance, lv.price,
			levelConfidence(lv.touches, math.Abs(lv.price-cur)/cur),
			fmt.Sprintf("Price rejected %d times", lv.touches)))
	}
	for _, lv := range clusterLevels(swingPoints(w.closes, d.cfg.SwingWindow, false), d.cfg.ClusterTolerance) {
		if lv.touches < d.cfg.MinTouches {
			continue
		}
		out = append(out, w.pattern(model.PatternSupport, lv.price,
			levelConfidence(lv.touches, math.Abs(lv.price-cur)/cur),
			fmt.Sprintf("Price bounced %d times", lv.touches)))
	}
	return out
}

// swingPoints returns prices that are strictly above (high) or below every
// neighbour within window on both sides.
func swingPoints(p []float64, window int, high bool) []float64 {
	var out []float64
	for i := window; i < len(p)-window; i++ {
		swing := true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if (high && p[j] >= p[i]) || (!high && p[j] <= p[i]) {
				swing = false
				break
			}
		}
		if swing {
			out = append(out, p[i])
		}
	}
	return out
}

// clusterLevels groups prices within tolerance (relative to the cluster's
// first member). Clusters keep first-seen order. Non-positive prices are
// ignored.
func clusterLevels(prices []float64, tolerance float64) []level {
	var clusters []level
	for _, p := range prices {
		if !(p > 0) {
			continue
		}
		matched := false
		for i := range clusters {
			if math.Abs(p-clusters[i].price)/clusters[i].price <= tolerance {
				clusters[i].touches++
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, level{price: p, touches: 1})
		}
	}
	return clusters
}

func levelConfidence(touches int, distance float64) float64 {
	touch := math.Min(0.8, float64(touches)*0.2)
	proximity := math.Max(0.2, 1-distance*10)
	return (touch + proximity) / 2
}
