package model

// PatternType is the closed set of patterns the detector can emit.
type PatternType string

const (
	PatternSupport              PatternType = "SUPPORT"
	PatternResistance           PatternType = "RESISTANCE"
	PatternUptrend              PatternType = "UPTREND"
	PatternDowntrend            PatternType = "DOWNTREND"
	PatternHeadShoulders        PatternType = "HEAD_SHOULDERS"
	PatternDoubleTop            PatternType = "DOUBLE_TOP"
	PatternDoubleBottom         PatternType = "DOUBLE_BOTTOM"
	PatternTriangle             PatternType = "TRIANGLE"
	PatternBullishEngulfing     PatternType = "BULLISH_ENGULFING"
	PatternBearishEngulfing     PatternType = "BEARISH_ENGULFING"
	PatternDoji                 PatternType = "DOJI"
	PatternWeeklyUptrend        PatternType = "WEEKLY_UPTREND"
	PatternWeeklyDowntrend      PatternType = "WEEKLY_DOWNTREND"
	PatternHighWeeklyVolatility PatternType = "HIGH_WEEKLY_VOLATILITY"
	PatternWeeklyConsolidation  PatternType = "WEEKLY_CONSOLIDATION"
	PatternWeeklySupport        PatternType = "WEEKLY_SUPPORT"
	PatternWeeklyResistance     PatternType = "WEEKLY_RESISTANCE"
)

// Direction is the market bias implied by a pattern.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// Direction maps a pattern type to its implied bias.
func (t PatternType) Direction() Direction {
	switch t {
	case PatternUptrend, PatternBullishEngulfing, PatternDoubleBottom, PatternWeeklyUptrend:
		return DirectionBullish
	case PatternDowntrend, PatternBearishEngulfing, PatternDoubleTop, PatternHeadShoulders, PatternWeeklyDowntrend:
		return DirectionBearish
	case PatternSupport, PatternResistance, PatternTriangle, PatternDoji,
		PatternHighWeeklyVolatility, PatternWeeklyConsolidation, PatternWeeklySupport, PatternWeeklyResistance:
		return DirectionNeutral
	default:
		return DirectionNeutral
	}
}

// Pattern is one detected chart or candlestick pattern.
type Pattern struct {
	Symbol      string      `json:"symbol"`
	Type        PatternType `json:"patternType"`
	PriceLevel  float64     `json:"priceLevel"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
	Timestamp   int64       `json:"timestamp"`
}
