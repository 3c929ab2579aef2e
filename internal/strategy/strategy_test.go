package strategy

import (
	"testing"
	"time"
	"warrant_bot/internal/indicator"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

var verifyCfg = config.Verify{Delay: 60 * time.Second, Tolerance: 5 * time.Second, Indicators: []string{"K", "MACD"}}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition(" J < -10 ")
	require.NoError(t, err)
	assert.Equal(t, Condition{Indicator: "J", Op: "<", Value: -10}, c)
	assert.Equal(t, "J<-10", c.String())

	c, err = ParseCondition("rsi6>=80.5")
	require.NoError(t, err)
	assert.Equal(t, "RSI6", c.Indicator)
	assert.Equal(t, 80.5, c.Value)

	for _, bad := range []string{"", "RSI6", "RSI6 = 20", "<20", "RSI6<abc"} {
		_, err := ParseCondition(bad)
		assert.Error(t, err, bad)
	}
}

func TestRuleMinSatisfied(t *testing.T) {
	r, err := ParseRule(config.SignalRule{Conditions: []string{"RSI6<20", "J<-1", "MFI<15"}, MinSatisfied: 2})
	require.NoError(t, err)

	hit, reason := r.Match(indicator.Snapshot{"RSI6": 15, "J": -3, "MFI": 40})
	assert.True(t, hit)
	assert.Contains(t, reason, "RSI6<20")
	assert.Contains(t, reason, "J<-1")

	hit, _ = r.Match(indicator.Snapshot{"RSI6": 15, "MFI": 40})
	assert.False(t, hit, "missing indicator never satisfies")

	_, err = ParseRule(config.SignalRule{})
	assert.Error(t, err)
}

func pendingSignal(a models.Action) models.Signal {
	return models.Signal{Monitor: "HSI.HK", Symbol: "12345.HK", Action: a, SeatVersion: 1}
}

func TestVerifierExpiresWithoutSample(t *testing.T) {
	v := NewVerifier()
	sig, ok := v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20, "MACD": -0.5}, verifyCfg, now0)
	require.True(t, ok)
	assert.Equal(t, now0.Add(time.Minute), sig.TriggerTime)

	// samples only far from the trigger time
	v.Sample("HSI.HK", indicator.Snapshot{"K": 30, "MACD": -0.1}, now0.Add(10*time.Second))
	v.Sample("HSI.HK", indicator.Snapshot{"K": 30, "MACD": -0.1}, now0.Add(50*time.Second))

	assert.Empty(t, v.Due(now0.Add(59*time.Second)))
	out := v.Due(now0.Add(70 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, StateExpired, out[0].State)
	assert.Zero(t, v.Len())
}

func TestVerifierConfirmsLong(t *testing.T) {
	v := NewVerifier()
	_, ok := v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20, "MACD": -0.5}, verifyCfg, now0)
	require.True(t, ok)
	v.Sample("HSI.HK", indicator.Snapshot{"K": 25, "MACD": -0.4}, now0.Add(57*time.Second))
	v.Sample("HSI.HK", indicator.Snapshot{"K": 28, "MACD": -0.3}, now0.Add(61*time.Second))

	p, ok := v.Get("HSI.HK", models.BuyLong)
	require.True(t, ok)
	assert.Equal(t, StateSampling, p.State)

	out := v.Due(now0.Add(61 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, StateConfirmed, out[0].State, out[0].Reason)
	assert.Equal(t, [2]float64{28, -0.3}, out[0].Values, "sample nearest the trigger time is used")
}

func TestVerifierRejectsUnfavourable(t *testing.T) {
	v := NewVerifier()
	_, ok := v.Add(pendingSignal(models.BuyShort), indicator.Snapshot{"K": 80, "MACD": 0.5}, verifyCfg, now0)
	require.True(t, ok)
	// K falls but MACD rises: only one indicator agrees with a short
	v.Sample("HSI.HK", indicator.Snapshot{"K": 70, "MACD": 0.6}, now0.Add(60*time.Second))
	out := v.Due(now0.Add(60 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, StateRejected, out[0].State)
	assert.Contains(t, out[0].Reason, "MACD")

	_, ok = v.Add(pendingSignal(models.BuyShort), indicator.Snapshot{"K": 80, "MACD": 0.5}, verifyCfg, now0)
	require.True(t, ok)
	v.Sample("HSI.HK", indicator.Snapshot{"K": 70, "MACD": 0.5}, now0.Add(60*time.Second))
	out = v.Due(now0.Add(60 * time.Second))
	require.Len(t, out, 1)
	assert.Equal(t, StateRejected, out[0].State, "unchanged is not favourable")
}

func TestVerifierDedupAndBaseline(t *testing.T) {
	v := NewVerifier()
	_, ok := v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20}, verifyCfg, now0)
	assert.False(t, ok, "baseline needs both indicators")

	_, ok = v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20, "MACD": 1}, verifyCfg, now0)
	assert.True(t, ok)
	_, ok = v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20, "MACD": 1}, verifyCfg, now0.Add(time.Second))
	assert.False(t, ok)
	assert.Equal(t, 1, v.Len())
}

func TestVerifierSamplingBounds(t *testing.T) {
	v := NewVerifier()
	cfg := verifyCfg
	cfg.Delay = 10 * time.Minute
	_, ok := v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20, "MACD": 1}, cfg, now0)
	require.True(t, ok)

	snap := indicator.Snapshot{"K": 21, "MACD": 2}
	v.Sample("HSI.HK", snap, now0)
	v.Sample("HSI.HK", snap, now0.Add(500*time.Millisecond))
	v.Sample("OTHER", snap, now0.Add(2*time.Second))
	p, _ := v.Get("HSI.HK", models.BuyLong)
	assert.Len(t, p.Samples, 1, "at most one sample per second, only own monitor")

	for i := 1; i <= 300; i++ {
		v.Sample("HSI.HK", snap, now0.Add(time.Duration(i)*time.Second))
	}
	p, _ = v.Get("HSI.HK", models.BuyLong)
	first := p.Samples[0].At
	last := p.Samples[len(p.Samples)-1].At
	assert.LessOrEqual(t, last.Sub(first), 2*time.Minute)
	assert.Equal(t, now0.Add(300*time.Second), last)
}

func TestVerifierDropWhere(t *testing.T) {
	v := NewVerifier()
	v.Add(pendingSignal(models.BuyLong), indicator.Snapshot{"K": 20, "MACD": 1}, verifyCfg, now0)
	v.Add(pendingSignal(models.BuyShort), indicator.Snapshot{"K": 20, "MACD": 1}, verifyCfg, now0)
	n := v.DropWhere(func(s models.Signal) bool { return s.Action == models.BuyLong })
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, v.Len())
}

type seatsStub map[models.Direction]models.Seat

func (s seatsStub) Seat(_ string, d models.Direction) models.Seat { return s[d] }

func TestPipelineRoutesSignals(t *testing.T) {
	mon := config.Monitor{
		Symbol: "HSI.HK",
		Signals: map[string]config.SignalRule{
			"buy_long":  {Conditions: []string{"RSI6<20"}, MinSatisfied: 1},
			"sell_long": {Conditions: []string{"K<30"}, MinSatisfied: 1},
			"buy_short": {Conditions: []string{"J<0"}, MinSatisfied: 1},
		},
		Verify: verifyCfg,
	}
	p, err := NewPipeline([]config.Monitor{mon}, NewVerifier())
	require.NoError(t, err)

	seats := seatsStub{
		models.Long:  {Symbol: "12345.HK", Status: models.SeatReady, Version: 4},
		models.Short: {Status: models.SeatSearching},
	}
	snap := indicator.Snapshot{"PRICE": 21000, "RSI6": 12, "K": 25, "J": -5, "MACD": -0.2}
	ev := p.Evaluate("HSI.HK", snap, seats, now0)

	require.Len(t, ev.Immediate, 1)
	assert.Equal(t, models.SellLong, ev.Immediate[0].Action)
	assert.Equal(t, uint64(4), ev.Immediate[0].SeatVersion)

	require.Len(t, ev.Delayed, 1)
	assert.Equal(t, models.BuyLong, ev.Delayed[0].Action)
	assert.Equal(t, now0.Add(time.Minute), ev.Delayed[0].TriggerTime)

	require.Len(t, ev.Skipped, 1)
	assert.Contains(t, ev.Skipped[0], "BUY_SHORT")

	pend, ok := p.Verifier().Get("HSI.HK", models.BuyLong)
	require.True(t, ok)
	assert.Len(t, pend.Samples, 1)
}

func TestNewPipelineRejectsBadRules(t *testing.T) {
	_, err := NewPipeline([]config.Monitor{{
		Symbol:  "HSI.HK",
		Signals: map[string]config.SignalRule{"buy_long": {Conditions: []string{"RSI6 ~ 3"}}},
		Verify:  verifyCfg,
	}}, NewVerifier())
	assert.Error(t, err)

	_, err = NewPipeline([]config.Monitor{{
		Symbol:  "HSI.HK",
		Signals: map[string]config.SignalRule{"hold": {Conditions: []string{"RSI6<3"}}},
		Verify:  verifyCfg,
	}}, NewVerifier())
	assert.Error(t, err)
}
