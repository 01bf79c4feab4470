package pattern

import (
	"math"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

func (d *Detector) shapes(w window) []model.Pattern {
	var out []model.Pattern
	p := w.closes
	cur := w.current()

	if headAndShoulders(p) {
		out = append(out, w.pattern(model.PatternHeadShoulders, cur, 0.75, "Classic reversal pattern"))
	}
	if doubleTop(p) {
		out = append(out, w.pattern(model.PatternDoubleTop, cur, 0.7, "Bearish reversal pattern"))
	}
	if doubleBottom(p) {
		out = append(out, w.pattern(model.PatternDoubleBottom, cur, 0.7, "Bullish reversal pattern"))
	}
	if triangle(p) {
		out = append(out, w.pattern(model.PatternTriangle, cur, 0.65, "Volatility contraction - breakout expected"))
	}
	return out
}

// headAndShoulders splits the window around its midpoint into left
// shoulder, head and right shoulder segments.
func headAndShoulders(p []float64) bool {
	if len(p) < 10 {
		return false
	}
	mid := len(p) / 2
	left := maxOf(p[:mid/2])
	head := maxOf(p[mid/2 : mid*3/2])
	right := maxOf(p[mid*3/2:])

	if head <= left*1.02 || head <= right*1.02 {
		return false
	}
	return math.Abs(left-right)/left < 0.02
}

func doubleTop(p []float64) bool {
	if len(p) < 8 {
		return false
	}
	mid := len(p) / 2
	first, second := maxOf(p[:mid]), maxOf(p[mid:])
	if math.Abs(first-second)/first >= 0.02 {
		return false
	}
	return minOf(p[mid/2:mid*3/2]) < first*0.98
}

func doubleBottom(p []float64) bool {
	if len(p) < 8 {
		return false
	}
	mid := len(p) / 2
	first, second := minOf(p[:mid]), minOf(p[mid:])
	if math.Abs(first-second)/first >= 0.02 {
		return false
	}
	return maxOf(p[mid/2:mid*3/2]) > first*1.02
}

// triangle is a strict contraction of dispersion across the window's thirds.
func triangle(p []float64) bool {
	n := len(p)
	if n < 15 {
		return false
	}
	early := stddev(p[:n/3])
	middle := stddev(p[n/3 : n*2/3])
	late := stddev(p[n*2/3:])
	return late < middle && middle < early
}

func maxOf(p []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	m := p[0]
	for _, v := range p[1:] {
		m = math.Max(m, v)
	}
	return m
}

func minOf(p []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	m := p[0]
	for _, v := range p[1:] {
		m = math.Min(m, v)
	}
	return m
}

func mean(p []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range p {
		sum += v
	}
	return sum / float64(len(p))
}

// stddev is the population standard deviation.
func stddev(p []float64) float64 {
	if len(p) == 0 {
		return 0
	}
	m := mean(p)
	sum := 0.0
	for _, v := range p {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(p)))
}
