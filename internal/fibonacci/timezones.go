// Package fibonacci projects Fibonacci time zones from significant swing
// points and derives weekly retracement levels.
package fibonacci

import (
	"fmt"
	"math"
	"sort"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Sequence is the set of period offsets projected from each swing point.
var Sequence = []int{1, 2, 3, 5, 8, 13, 21, 34, 55, 89}

const (
	minZonePoints = 10
	swingWindow   = 5
	significance  = 0.02
	maxAnchors    = 3
)

// TimeZones projects zones forward from the three highest significant highs
// and the three lowest significant lows in points (oldest first). Only
// projections landing inside the series are emitted. The result is sorted by
// descending start timestamp.
func TimeZones(symbol string, points []model.PricePoint) []model.FibonacciZone {
	zones := []model.FibonacciZone{}
	if len(points) < minZonePoints {
		return zones
	}

	highs := anchors(points, true)
	lows := anchors(points, false)

	zones = append(zones, project(symbol, points, highs, true)...)
	zones = append(zones, project(symbol, points, lows, false)...)

	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].StartTimestamp > zones[j].StartTimestamp
	})
	return zones
}

// anchors returns indices of significant swing points, ranked by price
// (highest first for highs, lowest first for lows) and capped at maxAnchors.
func anchors(points []model.PricePoint, high bool) []int {
	var idx []int
	for i := swingWindow; i < len(points)-swingWindow; i++ {
		if isExtremum(points, i, high) && isSignificant(points, i, high) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if high {
			return points[idx[a]].Close > points[idx[b]].Close
		}
		return points[idx[a]].Close < points[idx[b]].Close
	})
	if len(idx) > maxAnchors {
		idx = idx[:maxAnchors]
	}
	return idx
}

func isExtremum(points []model.PricePoint, i int, high bool) bool {
	cur := points[i].Close
	for j := i - swingWindow; j <= i+swingWindow; j++ {
		if j == i {
			continue
		}
		if (high && points[j].Close >= cur) || (!high && points[j].Close <= cur) {
			return false
		}
	}
	return true
}

// isSignificant requires the point to clear the mean of the five points on
// each side by the significance margin.
func isSignificant(points []model.PricePoint, i int, high bool) bool {
	if i < swingWindow || i >= len(points)-swingWindow {
		return false
	}
	cur := points[i].Close
	before := avgClose(points[i-swingWindow : i])
	after := avgClose(points[i+1 : i+1+swingWindow])
	if high {
		return cur > before*(1+significance) && cur > after*(1+significance)
	}
	return cur < before*(1-significance) && cur < after*(1-significance)
}

func avgClose(points []model.PricePoint) float64 {
	sum := 0.0
	for _, p := range points {
		sum += p.Close
	}
	return sum / float64(len(points))
}

func project(symbol string, points []model.PricePoint, anchors []int, high bool) []model.FibonacciZone {
	prefix, kind, bias := "FIB_LOW_", "low", model.BiasBullish
	if high {
		prefix, kind, bias = "FIB_HIGH_", "high", model.BiasBearish
	}

	var zones []model.FibonacciZone
	for _, i := range anchors {
		start := points[i]
		for _, fib := range Sequence {
			future := i + fib
			if future >= len(points) {
				continue
			}
			end := points[future]
			zones = append(zones, model.FibonacciZone{
				Symbol:         symbol,
				Label:          fmt.Sprintf("%s%d", prefix, fib),
				StartTimestamp: start.Timestamp,
				EndTimestamp:   end.Timestamp,
				StartPrice:     start.Close,
				EndPrice:       end.Close,
				Strength:       zoneStrength(fib, i, len(points)),
				Description:    fmt.Sprintf("Fibonacci Time Zone from %s: %d periods", kind, fib),
				Bias:           bias,
			})
		}
	}
	return zones
}

func zoneStrength(fib, index, total int) float64 {
	position := 1 - float64(index)/float64(total)
	fibFactor := 1 - float64(fib)/100
	return math.Min(0.9, math.Max(0.3, (position+fibFactor)/2))
}
