package indicator

import "warrant_bot/internal/models"

// MFI is the money flow index over the last period candles.
func MFI(candles []models.Candle, period int) (float64, bool) {
	if period < 1 || len(candles) < period+1 {
		return 0, false
	}
	typical := func(c models.Candle) float64 { return (c.High + c.Low + c.Close) / 3 }

	var pos, neg float64
	tail := candles[len(candles)-period-1:]
	for i := 1; i < len(tail); i++ {
		tp, prev := typical(tail[i]), typical(tail[i-1])
		flow := tp * tail[i].Volume
		switch {
		case tp > prev:
			pos += flow
		case tp < prev:
			neg += flow
		}
	}
	if neg == 0 {
		if pos == 0 {
			return 50, true
		}
		return 100, true
	}
	return 100 - 100/(1+pos/neg), true
}
