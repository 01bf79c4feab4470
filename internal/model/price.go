package model

import "time"

// PricePoint is a single observation in a symbol's price history.
// Timestamp is epoch milliseconds. Live ticks carry Open=High=Low=Close.
type PricePoint struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Price returns the close, which every analysis treats as "the" price.
func (p PricePoint) Price() float64 { return p.Close }

// Time returns the point's timestamp as a UTC time.Time.
func (p PricePoint) Time() time.Time { return time.UnixMilli(p.Timestamp).UTC() }

// Tick is one normalized inbound feed update.
type Tick struct {
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	Volume   float64   `json:"volume"`
	TickTS   time.Time `json:"tick_ts"`
	Received time.Time `json:"-"`
}

// PointFromTick builds a flat OHLC point from a live tick.
func PointFromTick(t Tick) PricePoint {
	return PricePoint{
		Symbol:    t.Symbol,
		Timestamp: t.TickTS.UnixMilli(),
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    t.Volume,
	}
}

// Closes extracts close prices in order.
func Closes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// Volumes extracts volumes in order.
func Volumes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Volume
	}
	return out
}
