package indicator

type rsiState struct {
	period      int
	prev        float64
	avgGain     float64
	avgLoss     float64
	samples     int
	initialized bool
}

func (st *rsiState) Update(price float64) {
	if !st.initialized {
		st.prev = price
		st.initialized = true
		return
	}

	change := price - st.prev
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}
	st.prev = price
	st.samples++

	// seed with the simple mean of the first period changes, then Wilder smoothing
	n := float64(st.period)
	if st.samples <= st.period {
		st.avgGain += gain / n
		st.avgLoss += loss / n
		return
	}
	st.avgGain = (st.avgGain*(n-1) + gain) / n
	st.avgLoss = (st.avgLoss*(n-1) + loss) / n
}

func (st *rsiState) Ready() bool { return st.samples >= st.period }

func (st *rsiState) Value() float64 {
	if st.avgLoss == 0 {
		if st.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := st.avgGain / st.avgLoss
	return 100 - (100 / (1 + rs))
}

// RSI needs period+1 closes.
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 {
		return 0, false
	}
	st := rsiState{period: period}
	for _, c := range closes {
		st.Update(c)
	}
	if !st.Ready() {
		return 0, false
	}
	return st.Value(), true
}
