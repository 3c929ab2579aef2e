package indicator

import "warrant_bot/internal/models"

// KDJ is the stochastic oscillator with the usual 1/3 smoothing; K and D start at 50.
func KDJ(candles []models.Candle, period int) (k, d, j float64, ok bool) {
	if period < 1 || len(candles) < period {
		return 0, 0, 0, false
	}
	k, d = 50, 50
	for i := period - 1; i < len(candles); i++ {
		hi, lo := candles[i].High, candles[i].Low
		for _, c := range candles[i-period+1 : i] {
			if c.High > hi {
				hi = c.High
			}
			if c.Low < lo {
				lo = c.Low
			}
		}
		rsv := 50.0
		if hi > lo {
			rsv = (candles[i].Close - lo) / (hi - lo) * 100
		}
		k = (2*k + rsv) / 3
		d = (2*d + k) / 3
	}
	return k, d, 3*k - 2*d, true
}
