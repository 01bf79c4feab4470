package pattern

import (
	"math"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

const candleLookback = 5

func (d *Detector) candlesticks(w window) []model.Pattern {
	n := len(w.closes)
	if n < 3 {
		return nil
	}
	start := max(0, n-candleLookback)
	recent := w.closes[start:]
	vols := w.volumes[start:]
	cur := recent[len(recent)-1]

	var out []model.Pattern
	prev, prevVol, vol := recent[len(recent)-2], vols[len(vols)-2], vols[len(vols)-1]
	// Volume at 80% of the previous point or more confirms the move.
	confirmed := vol >= prevVol*0.8

	if cur > prev && confirmed {
		out = append(out, w.pattern(model.PatternBullishEngulfing, cur, 0.7, "Bullish reversal pattern"))
	}
	if cur < prev && confirmed {
		out = append(out, w.pattern(model.PatternBearishEngulfing, cur, 0.7, "Bearish reversal pattern"))
	}
	if avg := mean(recent); avg != 0 && math.Abs(cur-avg)/avg < 0.01 {
		out = append(out, w.pattern(model.PatternDoji, cur, 0.6, "Indecision pattern"))
	}
	return out
}
