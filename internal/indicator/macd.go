package indicator

// MACD returns DIF (fast-slow EMA), DEA (signal EMA of DIF) and the histogram 2*(DIF-DEA).
func MACD(closes []float64, fast, slow, signal int) (dif, dea, hist float64, ok bool) {
	if len(closes) < slow+signal {
		return 0, 0, 0, false
	}
	ef, es, sig := newEMA(fast), newEMA(slow), newEMA(signal)
	for _, c := range closes {
		ef.Update(c)
		es.Update(c)
		if es.Ready() {
			sig.Update(ef.Value() - es.Value())
		}
	}
	if !sig.Ready() {
		return 0, 0, 0, false
	}
	dif = ef.Value() - es.Value()
	dea = sig.Value()
	return dif, dea, 2 * (dif - dea), true
}
