package trainer

import (
	"math"

	"github.com/pxbt-dev/AiTradingCharts/internal/indicator"
	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// maxAbsChange drops samples whose future move is an outlier.
const maxAbsChange = 0.5

// FutureOffset is how many points ahead a timeframe's target looks.
func FutureOffset(timeframe string) int {
	switch timeframe {
	case "1h":
		return 24
	case "4h":
		return 12
	case "1d":
		return 7
	default:
		return 24
	}
}

// Dataset is a set of aligned feature rows and fractional-change targets.
type Dataset struct {
	Features [][]float64
	Targets  []float64
}

// Len returns the sample count.
func (d Dataset) Len() int { return len(d.Targets) }

// Append adds other's samples to d.
func (d *Dataset) Append(other Dataset) {
	d.Features = append(d.Features, other.Features...)
	d.Targets = append(d.Targets, other.Targets...)
}

// BuildDataset slides a FeatureWindow-point window over points. The sample
// at index i uses points[i-window:i] as input and the change from points[i]
// to points[i+offset] as target. Samples without a future point are not
// emitted.
func BuildDataset(points []model.PricePoint, bucket indicator.Bucket, offset int) Dataset {
	const window = indicator.FeatureWindow
	var ds Dataset
	if offset <= 0 {
		return ds
	}
	for i := window; i+offset < len(points); i++ {
		cur := points[i].Close
		if cur <= 0 {
			continue
		}
		change := (points[i+offset].Close - cur) / cur
		if math.IsNaN(change) || math.Abs(change) >= maxAbsChange {
			continue
		}
		ds.Features = append(ds.Features, indicator.Features(bucket, points[i-window:i]))
		ds.Targets = append(ds.Targets, change)
	}
	return ds
}
