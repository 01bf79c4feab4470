package indicator

import (
	"time"

	"github.com/pxbt-dev/AiTradingCharts/internal/model"
)

// Bucket groups timeframes that share one feature layout.
type Bucket string

const (
	BucketShort  Bucket = "SHORT"
	BucketMedium Bucket = "MEDIUM"
	BucketLong   Bucket = "LONG"
)

// FeatureCount is the length of every feature vector.
const FeatureCount = 15

// FeatureWindow is the number of trailing points a feature vector is built
// from, for training samples and live queries alike.
const FeatureWindow = 50

// Features builds the indicator vector for a bucket. The layout per bucket is
// fixed; a model trained on one bucket's vectors can be queried with vectors
// from the same bucket only.
func Features(b Bucket, points []model.PricePoint) []float64 {
	p := model.Closes(points)
	v := model.Volumes(points)
	if len(p) == 0 {
		return make([]float64, FeatureCount)
	}

	switch b {
	case BucketMedium:
		return []float64{
			SMA(p, 20), SMA(p, 50),
			EMA(p, 26), RSI(p, 21),
			Volatility(p, 20), TrendStrength(p),
			SupportResistance(p), seasonality(points),
			MarketCycle(p), VolumeRatio(v),
			ROC(p, 10), Momentum(p, 15),
			ZScore(p), BollingerPosition(p),
			VolumePriceTrend(v, p),
		}
	case BucketLong:
		return []float64{
			SMA(p, 50), SMA(p, 200),
			Volatility(p, 50), LongTermTrend(p),
			maturity(p), SupportResistance(p),
			TrendStrength(p), seasonality(points),
			MarketCycle(p), VolumeRatio(v),
			ROC(p, 20), ZScore(p),
			BollingerPosition(p), VolumePriceTrend(v, p),
			adoption(len(p)),
		}
	default:
		return []float64{
			SMA(p, 5), SMA(p, 20),
			EMA(p, 12), RSI(p, 14),
			MACD(p), Volatility(p, 10),
			Momentum(p, 5), VolumeRatio(v),
			Acceleration(p), ZScore(p),
			BollingerPosition(p), VolumePriceTrend(v, p),
			SupportResistance(p), TrendStrength(p),
			ROC(p, 5),
		}
	}
}

// seasonality is +0.1 when the newest point falls Monday–Thursday (UTC),
// −0.1 otherwise. Needs a week of points.
func seasonality(points []model.PricePoint) float64 {
	if len(points) < 7 {
		return 0
	}
	switch points[len(points)-1].Time().Weekday() {
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday:
		return 0.1
	default:
		return -0.1
	}
}

func maturity(p []float64) float64 {
	if len(p) < 60 {
		return 0.1
	}
	m := 1 - Volatility(p, 60)*10
	if m < 0 {
		return 0
	}
	return m
}

func adoption(n int) float64 {
	if n > 180 {
		return 0.05
	}
	return 0.02
}
