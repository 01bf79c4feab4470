package model

// TradingSignal is the action suggested by the daily prediction.
type TradingSignal string

const (
	SignalStrongBuy  TradingSignal = "STRONG_BUY"
	SignalBuy        TradingSignal = "BUY"
	SignalHold       TradingSignal = "HOLD"
	SignalSell       TradingSignal = "SELL"
	SignalStrongSell TradingSignal = "STRONG_SELL"
)

// AnalysisResult is the combined output for one tick. It is built once and
// never mutated, so it may be shared across goroutines.
type AnalysisResult struct {
	Symbol            string                `json:"symbol"`
	CurrentPrice      float64               `json:"currentPrice"`
	Predictions       map[string]Prediction `json:"timeframePredictions"`
	Patterns          []Pattern             `json:"chartPatterns"`
	FibonacciZones    []FibonacciZone       `json:"fibonacciTimeZones"`
	RetracementLevels []FibonacciZone       `json:"retracementLevels"`
	TradingSignal     TradingSignal         `json:"tradingSignal"`
	Timestamp         int64                 `json:"timestamp"`
}

// Message types written to subscribers.
const (
	MessagePriceUpdate = "price_update"
	MessageWelcome     = "welcome"
	MessageError       = "error"
)

// PriceUpdate is the outbound broadcast for one tick.
type PriceUpdate struct {
	Type      string          `json:"type"`
	Symbol    string          `json:"symbol"`
	Price     float64         `json:"price"`
	Volume    float64         `json:"volume"`
	Timestamp int64           `json:"timestamp"`
	Analysis  *AnalysisResult `json:"analysis"`
}

// DegradedAnalysis replaces the analysis payload when the result cannot be
// encoded.
type DegradedAnalysis struct {
	Error string `json:"error"`
}

// DegradedPriceUpdate is the fallback wire form of PriceUpdate.
type DegradedPriceUpdate struct {
	Type      string           `json:"type"`
	Symbol    string           `json:"symbol"`
	Price     float64          `json:"price"`
	Volume    float64          `json:"volume"`
	Timestamp int64            `json:"timestamp"`
	Analysis  DegradedAnalysis `json:"analysis"`
}
