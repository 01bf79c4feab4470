package predict

import (
	"math"

	"github.com/pxbt-dev/AiTradingCharts/internal/indicator"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

const (
	minConfidence = 0.1
	maxConfidence = 0.95
	rsiPeriod     = 14
)

// signals are the indicator readings the heuristic path blends.
type signals struct {
	trend      float64
	volatility float64
	momentum   float64
	rsi        float64
	points     int
}

func readSignals(p []float64) signals {
	return signals{
		trend:      indicator.WeightedTrend(p),
		volatility: indicator.RelativeVolatility(p),
		momentum:   indicator.AvgReturn(p),
		rsi:        indicator.RSI(p, rsiPeriod),
		points:     len(p),
	}
}

// heuristicChange is the unclamped fractional move for a timeframe. Longer
// horizons weigh trend more and momentum less.
func heuristicChange(tf string, s signals) float64 {
	switch tf {
	case Hour:
		return s.momentum * 0.2
	case FourHour:
		return s.trend*0.3 + s.momentum*0.1
	case Day:
		return s.trend * 0.5
	case Week:
		return s.trend * 0.8
	case Month:
		return s.trend*0.8 + indicator.Clamp(-2*s.volatility, -0.3, 0.3)
	default:
		return 0
	}
}

func heuristicConfidence(base float64, s signals) float64 {
	trendStrength := math.Min(1, math.Abs(s.trend)*10)
	dataQuality := math.Min(1, float64(s.points)/50)
	volPenalty := math.Max(0.3, 1-s.volatility*3)
	c := math.Max(minConfidence, base*(0.3+trendStrength*0.3+dataQuality*0.2+volPenalty*0.2))
	return boundConfidence(c)
}

func boundConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return minConfidence
	}
	return indicator.Clamp(c, minConfidence, maxConfidence)
}

// trendDirection reads direction from trend, momentum and RSI together.
func trendDirection(s signals) model.Trend {
	switch {
	case s.trend > 0.03 && s.momentum > 0 && s.rsi > 60:
		return model.TrendStrongBullish
	case s.trend > 0 || (s.momentum > 0 && s.rsi > 50):
		return model.TrendBullish
	case s.trend < -0.03 && s.momentum < 0 && s.rsi < 40:
		return model.TrendStrongBearish
	case s.trend < 0 || (s.momentum < 0 && s.rsi < 50):
		return model.TrendBearish
	default:
		return model.TrendNeutral
	}
}

// changeDirection classifies a predicted move using ±1.5% and ±5% bands.
func changeDirection(change float64) model.Trend {
	pct := change * 100
	switch {
	case pct > 5:
		return model.TrendStrongBullish
	case pct > 1.5:
		return model.TrendBullish
	case pct > -1.5:
		return model.TrendNeutral
	case pct > -5:
		return model.TrendBearish
	default:
		return model.TrendStrongBearish
	}
}
