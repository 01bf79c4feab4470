package model

// Trend is the predicted direction for a timeframe.
type Trend string

const (
	TrendStrongBullish Trend = "STRONG_BULLISH"
	TrendBullish       Trend = "BULLISH"
	TrendNeutral       Trend = "NEUTRAL"
	TrendBearish       Trend = "BEARISH"
	TrendStrongBearish Trend = "STRONG_BEARISH"
)

// PredictionSource records which path produced a prediction.
type PredictionSource string

const (
	SourceHeuristic PredictionSource = "heuristic"
	SourceModel     PredictionSource = "model"
	SourceFallback  PredictionSource = "fallback"
)

// PriceTargets are confidence-scaled levels around the predicted price.
type PriceTargets struct {
	Conservative float64 `json:"conservative"`
	Expected     float64 `json:"expected"`
	Optimistic   float64 `json:"optimistic"`
}

// Prediction is the forecast for one symbol and timeframe.
type Prediction struct {
	Symbol         string           `json:"symbol"`
	Timeframe      string           `json:"timeframe"`
	PredictedPrice float64          `json:"predictedPrice"`
	Confidence     float64          `json:"confidence"`
	Trend          Trend            `json:"trend"`
	PriceTargets   PriceTargets     `json:"priceTargets"`
	Source         PredictionSource `json:"source"`
}
