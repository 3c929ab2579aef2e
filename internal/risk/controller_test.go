package risk

import (
	"math"
	"math/rand"
	"testing"
	"time"
	"warrant_bot/internal/models"
	"warrant_bot/internal/reconcile"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lotsStub map[string]reconcile.Result

func (s lotsStub) Cached(symbol string) (reconcile.Result, bool) {
	r, ok := s[symbol]
	return r, ok
}

type clockStub bool

func (c clockStub) InBuySuppress(time.Time) bool { return bool(c) }

const (
	mon = "HSI.HK"
	war = "12345.HK"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func lot(price string, qty int64) models.BuyLot {
	return models.BuyLot{Symbol: war, ExecutedPrice: dec(price), ExecutedQuantity: decimal.NewFromInt(qty)}
}

func newController(lots lotsStub, suppress bool) *Controller {
	c := NewController(lots, clockStub(suppress), nil)
	c.SetLimits(mon, Limits{
		MaxDailyLoss:        dec("1000"),
		MaxPositionNotional: dec("50000"),
		SafetyMarginPct:     0.3,
	})
	return c
}

func buyReq(price float64) Request {
	return Request{
		Account:         &models.AccountSnapshot{Currency: "HKD", TotalCash: dec("100000")},
		Signal:          models.Signal{Monitor: mon, Symbol: war, Action: models.BuyLong},
		PlannedNotional: dec("10000"),
		CurrentPrice:    price,
		UnderlyingPrice: 21000,
		Now:             time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuyAdmitted(t *testing.T) {
	c := newController(lotsStub{war: {Lots: []models.BuyLot{lot("0.250", 10000)}}}, false)
	d := c.Admit(buyReq(0.25))
	assert.True(t, d.Allowed, d.String())
}

func TestDailyLossBoundaryRejects(t *testing.T) {
	// 100000 @ 0.50 cost 50000, now worth 49000: loss exactly 1000
	c := newController(lotsStub{war: {Lots: []models.BuyLot{lot("0.50", 100000)}}}, false)
	d := c.Admit(buyReq(0.49))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDailyLoss, d.Reason)

	d = c.Admit(buyReq(0.49001))
	assert.True(t, d.Allowed, d.String())
}

func TestBuyFailsClosed(t *testing.T) {
	c := newController(lotsStub{war: {}}, false)

	r := buyReq(0.25)
	r.Account = nil
	assert.Equal(t, ReasonNoAccount, c.Admit(r).Reason)

	assert.Equal(t, ReasonBadPrice, c.Admit(buyReq(math.NaN())).Reason)
	assert.Equal(t, ReasonBadPrice, c.Admit(buyReq(math.Inf(1))).Reason)
	assert.Equal(t, ReasonBadPrice, c.Admit(buyReq(0)).Reason)

	unknown := newController(lotsStub{}, false)
	assert.Equal(t, ReasonUnknownLots, unknown.Admit(buyReq(0.25)).Reason)
}

func TestPositionNotionalLimit(t *testing.T) {
	c := newController(lotsStub{war: {}}, false)
	r := buyReq(0.25)
	r.Positions = []models.Position{{Symbol: war, Quantity: decimal.NewFromInt(160000)}} // 40000
	assert.True(t, c.Admit(r).Allowed, "40000 + 10000 is at the limit")

	r.Positions[0].Quantity = decimal.NewFromInt(160004)
	assert.Equal(t, ReasonPositionLimit, c.Admit(r).Reason)
}

func TestKnockoutDistance(t *testing.T) {
	c := newController(lotsStub{war: {}}, false)
	c.SetCallPrice(war, 20950) // (21000-20950)/21000 = 0.238%
	assert.Equal(t, ReasonKnockout, c.Admit(buyReq(0.25)).Reason)

	c.SetCallPrice(war, 20900) // 0.476%
	assert.True(t, c.Admit(buyReq(0.25)).Allowed)

	c.Reset(war)
	_, ok := c.CallPrice(war)
	assert.False(t, ok)
}

func TestCloseWindowAndCash(t *testing.T) {
	c := newController(lotsStub{war: {}}, true)
	assert.Equal(t, ReasonCloseWindow, c.Admit(buyReq(0.25)).Reason)

	c = newController(lotsStub{war: {}}, false)
	r := buyReq(0.25)
	r.Account.TotalCash = dec("9999")
	assert.Equal(t, ReasonCash, c.Admit(r).Reason)
}

func TestSellNeverRejectedForLossOrKnockout(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		c := newController(lotsStub{war: {Lots: []models.BuyLot{lot("5.00", 1000000)}}}, rng.Intn(2) == 0)
		c.SetCallPrice(war, 21000+rng.Float64()*1000)

		r := buyReq([]float64{0.01, math.NaN(), 0, -1}[rng.Intn(4)])
		r.Signal.Action = []models.Action{models.SellLong, models.SellShort}[rng.Intn(2)]
		if rng.Intn(2) == 0 {
			r.Account = nil
		}
		d := c.Admit(r)
		require.True(t, d.Allowed, d.String())
	}
}

func TestSellWithoutSymbolRejected(t *testing.T) {
	c := newController(lotsStub{}, false)
	r := buyReq(0.25)
	r.Signal.Action = models.SellLong
	r.Signal.Symbol = ""
	assert.Equal(t, ReasonNoSymbol, c.Admit(r).Reason)
}

func TestDistancePct(t *testing.T) {
	assert.InDelta(t, 5.0, DistancePct(models.Long, 20000, 19000), 1e-9)
	assert.InDelta(t, 5.0, DistancePct(models.Short, 20000, 21000), 1e-9)
	assert.Less(t, DistancePct(models.Long, 20000, 20500), 0.0)
}
