package helper

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundToTick(t *testing.T) {
	assert.True(t, d("0.123").Equal(RoundDownToTick(d("0.1239"), d("0.001"))))
	assert.True(t, d("0.124").Equal(RoundUpToTick(d("0.1231"), d("0.001"))))
	assert.True(t, d("0.5").Equal(RoundDownToTick(d("0.5"), decimal.Zero)))
}

func TestRoundDownToLot(t *testing.T) {
	assert.True(t, d("10000").Equal(RoundDownToLot(d("19999"), 10000)))
	assert.True(t, RoundDownToLot(d("9999"), 10000).IsZero())
	assert.True(t, d("7").Equal(RoundDownToLot(d("7.9"), 0)))
}

func TestLotsFor(t *testing.T) {
	assert.True(t, d("20000").Equal(LotsFor(d("10000"), d("0.45"), 10000)))
	assert.True(t, LotsFor(d("10000"), decimal.Zero, 10000).IsZero())
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite(1.5))
	assert.False(t, Finite(math.NaN()))
	assert.False(t, Finite(math.Inf(-1)))
}

func TestNormPeriod(t *testing.T) {
	assert.Equal(t, "1h", NormPeriod("candle60m"))
	assert.Equal(t, "1m", NormPeriod(" 1MIN "))
	assert.Equal(t, "1d", NormPeriod("day"))
}
