package indicator

import (
	"fmt"
	"sort"
	"strings"
	"warrant_bot/internal/helper"
	"warrant_bot/internal/models"
)

// Well-known snapshot keys. Conditions and verifier indicators refer to these names.
const (
	Price = "PRICE"
	RSI6  = "RSI6"
	RSI12 = "RSI12"
	K     = "K"
	D     = "D"
	J     = "J"
	DIF   = "DIF"
	DEA   = "DEA"
	MACDH = "MACD"
	MFI14 = "MFI"
	EMA5  = "EMA5"
	EMA20 = "EMA20"
)

// Snapshot holds the indicator values computed for one tick. A missing key
// means the value could not be computed from the available candles.
type Snapshot map[string]float64

func (s Snapshot) Get(name string) (float64, bool) {
	v, ok := s[name]
	return v, ok
}

func (s Snapshot) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%.3f", k, s[k])
	}
	return b.String()
}

// Compute derives every indicator the engine knows from candles (oldest first).
// Any non-finite candle field invalidates the whole series and yields an empty snapshot.
func Compute(candles []models.Candle) Snapshot {
	out := Snapshot{}
	if len(candles) == 0 {
		return out
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		if !helper.Finite(c.Open) || !helper.Finite(c.High) || !helper.Finite(c.Low) ||
			!helper.Finite(c.Close) || !helper.Finite(c.Volume) {
			return Snapshot{}
		}
		closes[i] = c.Close
	}
	out[Price] = closes[len(closes)-1]

	if v, ok := RSI(closes, 6); ok {
		out[RSI6] = v
	}
	if v, ok := RSI(closes, 12); ok {
		out[RSI12] = v
	}
	if k, d, j, ok := KDJ(candles, 9); ok {
		out[K], out[D], out[J] = k, d, j
	}
	if dif, dea, hist, ok := MACD(closes, 12, 26, 9); ok {
		out[DIF], out[DEA], out[MACDH] = dif, dea, hist
	}
	if v, ok := MFI(candles, 14); ok {
		out[MFI14] = v
	}
	if v, ok := EMA(closes, 5); ok {
		out[EMA5] = v
	}
	if v, ok := EMA(closes, 20); ok {
		out[EMA20] = v
	}
	return out
}
