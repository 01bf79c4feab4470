package model

// Bias is the directional reading attached to a Fibonacci zone or level.
type Bias string

const (
	BiasSupport    Bias = "SUPPORT"
	BiasResistance Bias = "RESISTANCE"
	BiasBullish    Bias = "BULLISH"
	BiasBearish    Bias = "BEARISH"
)

// FibonacciZone is a projected time marker (or, for retracements, a price
// level valid over a time span).
type FibonacciZone struct {
	Symbol         string  `json:"symbol"`
	Label          string  `json:"label"`
	StartTimestamp int64   `json:"startTimestamp"`
	EndTimestamp   int64   `json:"endTimestamp"`
	StartPrice     float64 `json:"startPrice"`
	EndPrice       float64 `json:"endPrice"`
	Strength       float64 `json:"strength"`
	Description    string  `json:"description"`
	Bias           Bias    `json:"bias"`
}
