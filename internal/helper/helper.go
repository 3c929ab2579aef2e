package helper

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// NormPeriod maps user spellings of a candle period onto the broker's names.
func NormPeriod(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "1", "1min":
		return "1m"
	case "5", "5min":
		return "5m"
	case "15", "15min":
		return "15m"
	case "d", "1d", "day":
		return "1d"
	default:
		return s
	}
}

func RoundDownToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	return px.Div(tick).Floor().Mul(tick)
}

func RoundUpToTick(px, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return px
	}
	return px.Div(tick).Ceil().Mul(tick)
}

// RoundDownToLot returns qty floored to a whole multiple of lot.
func RoundDownToLot(qty decimal.Decimal, lot int64) decimal.Decimal {
	if lot <= 0 {
		return qty.Floor()
	}
	l := decimal.NewFromInt(lot)
	return qty.Div(l).Floor().Mul(l)
}

// LotsFor is the largest lot-multiple quantity whose cost at price fits notional.
func LotsFor(notional, price decimal.Decimal, lot int64) decimal.Decimal {
	if !price.IsPositive() || !notional.IsPositive() {
		return decimal.Zero
	}
	return RoundDownToLot(notional.Div(price), lot)
}

func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Dec converts a finite float quote into a decimal on the exchange's 3dp price grid.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(3)
}
