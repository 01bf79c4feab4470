// Package predict produces bounded per-timeframe price predictions from
// heuristic indicator blending or a registered model provider.
package predict

import (
	"time"

	"github.com/pxbt-dev/AiTradingCharts/internal/indicator"
)

// Timeframe is one prediction horizon.
type Timeframe struct {
	Name string
	// MinPoints below which the fallback prediction is returned.
	MinPoints int
	// Window limits the input to points no older than Window before the
	// newest point. Zero uses the whole series.
	Window             time.Duration
	BaseConfidence     float64
	MaxMove            float64
	FallbackConfidence float64
	Bucket             indicator.Bucket
}

// Timeframe names.
const (
	Hour     = "1h"
	FourHour = "4h"
	Day      = "1d"
	Week     = "1w"
	Month    = "1m"
)

// DefaultTimeframes returns the stock horizons, shortest first.
func DefaultTimeframes() []Timeframe {
	return []Timeframe{
		{Hour, 5, 24 * time.Hour, 0.60, 0.02, 0.3, indicator.BucketShort},
		{FourHour, 5, 48 * time.Hour, 0.65, 0.03, 0.3, indicator.BucketShort},
		{Day, 10, 168 * time.Hour, 0.70, 0.05, 0.4, indicator.BucketMedium},
		{Week, 20, 720 * time.Hour, 0.75, 0.08, 0.3, indicator.BucketLong},
		{Month, 30, 0, 0.80, 0.30, 0.2, indicator.BucketLong},
	}
}

// Lookup returns the default timeframe with the given name.
func Lookup(name string) (Timeframe, bool) {
	for _, tf := range DefaultTimeframes() {
		if tf.Name == name {
			return tf, true
		}
	}
	return Timeframe{}, false
}
