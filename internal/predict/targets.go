package predict

import "github.com/pxbt-dev/AiTradingCharts/internal/model"

// Targets scales the predicted price by confidence. Conservative never
// exceeds expected. Optimistic is 1.3·c times the price, so it sits below
// expected whenever c < 1/1.3.
func Targets(price, confidence float64) model.PriceTargets {
	return model.PriceTargets{
		Conservative: price * (0.7 + 0.3*confidence),
		Expected:     price,
		Optimistic:   price * 1.3 * confidence,
	}
}
