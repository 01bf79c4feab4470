package analysis

import "github.com/pxbt-dev/AiTradingCharts/internal/model"

// Signal derives the trading action from the daily prediction.
func Signal(daily model.Prediction, current float64) model.TradingSignal {
	if current <= 0 {
		return model.SignalHold
	}
	change := (daily.PredictedPrice - current) / current
	c := daily.Confidence

	switch {
	case change > 0.02 && c > 0.7:
		return model.SignalStrongBuy
	case change > 0.005 && c > 0.6:
		return model.SignalBuy
	case change < -0.02 && c > 0.7:
		return model.SignalStrongSell
	case change < -0.005 && c > 0.6:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}
