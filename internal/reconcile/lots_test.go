package reconcile

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"
	"warrant_bot/internal/broker/brokertest"
	"warrant_bot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sym = "12345.HK"

var t0 = time.Date(2026, 3, 2, 9, 35, 0, 0, time.UTC)

func at(min int) time.Time { return t0.Add(time.Duration(min) * time.Minute) }

func order(id string, side models.Side, price string, qty int64, ts time.Time) models.Order {
	return models.Order{
		OrderID:          id,
		Symbol:           sym,
		Side:             side,
		Status:           models.OrderFilled,
		Price:            decimal.RequireFromString(price),
		Quantity:         decimal.NewFromInt(qty),
		ExecutedPrice:    decimal.RequireFromString(price),
		ExecutedQuantity: decimal.NewFromInt(qty),
		SubmittedAt:      ts,
		UpdatedAt:        ts,
	}
}

func ids(lots []models.BuyLot) []string {
	out := make([]string, 0, len(lots))
	for _, l := range lots {
		out = append(out, l.OrderID)
	}
	return out
}

func TestNoSellsEveryBuyOpen(t *testing.T) {
	lots, bad := OpenLots([]models.Order{
		order("b2", models.SideBuy, "10.20", 500, at(2)),
		order("b1", models.SideBuy, "10.00", 500, at(1)),
	})
	assert.Zero(t, bad)
	assert.Equal(t, []string{"b1", "b2"}, ids(lots))
}

func TestFullSellClosesLot(t *testing.T) {
	lots, _ := OpenLots([]models.Order{
		order("b1", models.SideBuy, "10.00", 1000, at(0)),
		order("s1", models.SideSell, "10.50", 1000, at(1)),
	})
	assert.Empty(t, lots)
}

func TestPartialSellKeepsLotsPricedAboveSell(t *testing.T) {
	lots, _ := OpenLots([]models.Order{
		order("b1", models.SideBuy, "10.00", 500, at(0)),
		order("b2", models.SideBuy, "10.20", 500, at(1)),
		order("s1", models.SideSell, "10.10", 500, at(2)),
	})
	require.Len(t, lots, 1)
	assert.Equal(t, "b2", lots[0].OrderID)
	assert.True(t, lots[0].ExecutedPrice.Equal(decimal.RequireFromString("10.20")))
}

func TestBuysAfterLatestSellStayOpen(t *testing.T) {
	lots, _ := OpenLots([]models.Order{
		order("b1", models.SideBuy, "10.00", 1000, at(0)),
		order("s1", models.SideSell, "10.50", 1000, at(1)),
		order("b2", models.SideBuy, "10.40", 2000, at(2)),
	})
	assert.Equal(t, []string{"b2"}, ids(lots))
}

func TestPartialSellPicksUpBuysBeforeNextSell(t *testing.T) {
	lots, _ := OpenLots([]models.Order{
		order("b1", models.SideBuy, "10.00", 1000, at(0)),
		order("s1", models.SideSell, "10.10", 400, at(1)),
		order("b2", models.SideBuy, "9.90", 300, at(2)),
		order("s2", models.SideSell, "10.30", 2000, at(3)),
		order("b3", models.SideBuy, "10.00", 100, at(4)),
	})
	// s1 partial: b1 priced below 10.10 is dropped, b2 in (s1, s2) joins.
	// s2 covers b2 fully. b3 is after the last sell.
	assert.Equal(t, []string{"b3"}, ids(lots))
}

func TestAnomaliesExcluded(t *testing.T) {
	zeroQty := order("bad1", models.SideBuy, "10.00", 0, at(0))
	noTime := order("bad2", models.SideBuy, "10.00", 100, time.Time{})
	odd := order("bad3", models.Side("SHORT"), "10.00", 100, at(0))
	lots, bad := OpenLots([]models.Order{zeroQty, noTime, odd, order("b1", models.SideBuy, "10.00", 100, at(1))})
	assert.Equal(t, 3, bad)
	assert.Equal(t, []string{"b1"}, ids(lots))
}

func TestOpenLotsIdempotent(t *testing.T) {
	fills := randomFills(rand.New(rand.NewSource(1)), 40)
	a, _ := OpenLots(fills)
	b, _ := OpenLots(fills)
	assert.Equal(t, a, b)
}

// No lot may appear twice and no more can be open than was bought.
func TestOpenLotsNeverDoubleCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		fills := randomFills(rng, 2+rng.Intn(20))
		lots, _ := OpenLots(fills)

		seen := map[string]bool{}
		for _, l := range lots {
			require.False(t, seen[l.OrderID], "duplicate %s", l.OrderID)
			seen[l.OrderID] = true
		}

		bought := map[string]bool{}
		for _, f := range fills {
			if f.Side == models.SideBuy {
				bought[f.OrderID] = true
			}
		}
		for id := range seen {
			require.True(t, bought[id])
		}
	}
}

func randomFills(rng *rand.Rand, n int) []models.Order {
	out := make([]models.Order, 0, n)
	for i := 0; i < n; i++ {
		side := models.SideBuy
		if rng.Intn(3) == 0 {
			side = models.SideSell
		}
		price := fmt.Sprintf("%.2f", 9.5+rng.Float64())
		qty := int64(100 * (1 + rng.Intn(10)))
		out = append(out, order(fmt.Sprintf("o%d", i), side, price, qty, at(rng.Intn(60))))
	}
	return out
}

func TestEngineCachesAndFlushes(t *testing.T) {
	fake := brokertest.New()
	fake.AddFill(order("b1", models.SideBuy, "10.00", 500, at(0)))
	fake.AddFill(order("b2", models.SideBuy, "10.20", 500, at(1)))
	fake.AddFill(order("s1", models.SideSell, "10.10", 500, at(2)))

	e := NewEngine(fake, zap.NewNop(), func() time.Time { return at(5) })
	lots, err := e.Reconcile(context.Background(), sym, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2"}, ids(lots))

	again, err := e.Reconcile(context.Background(), sym, true)
	require.NoError(t, err)
	assert.Equal(t, lots, again)

	r, ok := e.Cached(sym)
	require.True(t, ok)
	assert.Equal(t, at(5), r.At)
	qty, cost := Totals(r.Lots)
	assert.True(t, qty.Equal(decimal.NewFromInt(500)))
	assert.True(t, cost.Equal(decimal.RequireFromString("5100")))

	e.Flush()
	_, ok = e.Cached(sym)
	assert.False(t, ok)
}

func TestEngineSourceError(t *testing.T) {
	fake := brokertest.New()
	fake.SetErr("GetTodayFilledOrders", fmt.Errorf("down"))
	e := NewEngine(fake, zap.NewNop(), nil)
	_, err := e.Reconcile(context.Background(), sym, false)
	assert.Error(t, err)
	_, ok := e.Cached(sym)
	assert.False(t, ok)
}
