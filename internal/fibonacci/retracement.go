package fibonacci

import (
	"fmt"
	"time"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Level is one retracement ratio and its label.
type Level struct {
	Ratio float64
	Name  string
}

// Levels are measured down from the window high.
var Levels = []Level{
	{0.146, "MINOR_RESISTANCE"},
	{0.236, "WEAK_RESISTANCE"},
	{0.382, "MODERATE_RESISTANCE"},
	{0.5, "STRONG_RESISTANCE"},
	{0.618, "MODERATE_SUPPORT"},
	{0.786, "WEAK_SUPPORT"},
	{0.886, "MINOR_SUPPORT"},
}

const (
	minRetracementPoints = 20
	retracementSpan      = 7 * 24 * time.Hour
)

// Retracements returns one level per ratio between the window's high and
// low, valid for one week from now. Windows under 20 points yield none.
func Retracements(symbol string, points []model.PricePoint, now time.Time) []model.FibonacciZone {
	out := []model.FibonacciZone{}
	if len(points) < minRetracementPoints {
		return out
	}

	low, high := points[0].Close, points[0].Close
	for _, p := range points[1:] {
		low = min(low, p.Close)
		high = max(high, p.Close)
	}
	span := high - low
	start := now.UnixMilli()
	end := now.Add(retracementSpan).UnixMilli()

	for _, lv := range Levels {
		price := high - span*lv.Ratio
		bias := model.BiasSupport
		if price > high-span*0.5 {
			bias = model.BiasResistance
		}
		out = append(out, model.FibonacciZone{
			Symbol:         symbol,
			Label:          lv.Name,
			StartTimestamp: start,
			EndTimestamp:   end,
			StartPrice:     price,
			EndPrice:       price,
			Strength:       0.4 + lv.Ratio*0.6,
			Description:    fmt.Sprintf("Weekly Fibonacci %.1f%%", lv.Ratio*100),
			Bias:           bias,
		})
	}
	return out
}
