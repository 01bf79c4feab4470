package model

import "context"

// ── Port Interfaces ──
// These decouple the analysis core from concrete collaborators.

// ModelProvider is an optional trained-model capability for one or more
// timeframes. Predict returns a fractional price change and a confidence.
type ModelProvider interface {
	Train(timeframe string, features [][]float64, targets []float64) error
	Predict(features []float64, timeframe string) (value float64, confidence float64, err error)
}

// ContextPredictor is implemented by providers whose Predict can be bounded
// by a caller deadline. The orchestrator prefers it over Predict.
type ContextPredictor interface {
	PredictContext(ctx context.Context, features []float64, timeframe string) (value float64, confidence float64, err error)
}

// Publisher receives every price update produced by the ingestor.
type Publisher interface {
	Publish(update PriceUpdate)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(update PriceUpdate)

// Publish calls f(update).
func (f PublisherFunc) Publish(update PriceUpdate) { f(update) }

// MultiPublisher fans one update out to several publishers in order.
type MultiPublisher []Publisher

// Publish forwards update to every non-nil publisher.
func (m MultiPublisher) Publish(update PriceUpdate) {
	for _, p := range m {
		if p != nil {
			p.Publish(update)
		}
	}
}
