// Package reconcile rebuilds which of today's buy fills are still open on a symbol.
package reconcile

import (
	"sort"
	"time"
	"warrant_bot/internal/models"

	"github.com/shopspring/decimal"
)

type fill struct {
	idx   int
	id    string
	sym   string
	side  models.Side
	price decimal.Decimal
	qty   decimal.Decimal
	at    time.Time
}

func fillTime(o models.Order) time.Time {
	if !o.UpdatedAt.IsZero() && o.UpdatedAt.Unix() > 0 {
		return o.UpdatedAt
	}
	return o.SubmittedAt
}

func parse(orders []models.Order) (buys, sells []fill, anomalies int) {
	for i, o := range orders {
		f := fill{idx: i, id: o.OrderID, sym: o.Symbol, side: o.Side,
			price: o.ExecutedPrice, qty: o.ExecutedQuantity, at: fillTime(o)}
		if !f.price.IsPositive() || !f.qty.IsPositive() || f.at.IsZero() || f.at.Unix() <= 0 {
			anomalies++
			continue
		}
		switch f.side {
		case models.SideBuy:
			buys = append(buys, f)
		case models.SideSell:
			sells = append(sells, f)
		default:
			anomalies++
		}
	}
	return buys, sells, anomalies
}

func byTime(fs []fill) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].at.Equal(fs[j].at) {
			return fs[i].idx < fs[j].idx
		}
		return fs[i].at.Before(fs[j].at)
	})
}

// OpenLots returns the buy lots still open after today's sells, oldest first,
// and how many fills were skipped as malformed.
//
// Sells carry no lot attribution, so survivorship is inferred: after the
// last sell every buy is open; a sell that covers all earlier buys in the
// working set closes them; a smaller sell keeps only earlier buys priced at
// or above its own price plus the buys filled before the next sell.
func OpenLots(orders []models.Order) ([]models.BuyLot, int) {
	buys, sells, anomalies := parse(orders)
	byTime(buys)
	if len(sells) == 0 {
		return toLots(buys), anomalies
	}
	byTime(sells)
	latest := sells[len(sells)-1].at

	var open, work []fill
	for _, b := range buys {
		if b.at.After(latest) {
			open = append(open, b)
		} else {
			work = append(work, b)
		}
	}

	for i, s := range sells {
		nextT := latest.Add(time.Millisecond)
		if i+1 < len(sells) {
			nextT = sells[i+1].at
		}

		var before []fill
		sum := decimal.Zero
		for _, b := range work {
			if b.at.Before(s.at) {
				before = append(before, b)
				sum = sum.Add(b.qty)
			}
		}
		if len(before) == 0 {
			continue
		}

		if s.qty.GreaterThanOrEqual(sum) {
			kept := work[:0:0]
			for _, b := range work {
				if !b.at.Before(s.at) {
					kept = append(kept, b)
				}
			}
			work = kept
			continue
		}

		seen := make(map[int]struct{}, len(before))
		next := make([]fill, 0, len(before))
		for _, b := range before {
			if b.price.GreaterThanOrEqual(s.price) {
				seen[b.idx] = struct{}{}
				next = append(next, b)
			}
		}
		for _, b := range buys {
			if b.at.After(s.at) && b.at.Before(nextT) {
				if _, dup := seen[b.idx]; !dup {
					seen[b.idx] = struct{}{}
					next = append(next, b)
				}
			}
		}
		work = next
	}

	all := append(open, work...)
	byTime(all)
	return toLots(all), anomalies
}

func toLots(fs []fill) []models.BuyLot {
	if len(fs) == 0 {
		return nil
	}
	out := make([]models.BuyLot, 0, len(fs))
	for _, f := range fs {
		out = append(out, models.BuyLot{
			OrderID:          f.id,
			Symbol:           f.sym,
			ExecutedPrice:    f.price,
			ExecutedQuantity: f.qty,
			ExecutedTime:     f.at,
		})
	}
	return out
}

// Totals sums quantity and cost over lots.
func Totals(lots []models.BuyLot) (qty, cost decimal.Decimal) {
	qty, cost = decimal.Zero, decimal.Zero
	for _, l := range lots {
		qty = qty.Add(l.ExecutedQuantity)
		cost = cost.Add(l.Cost())
	}
	return qty, cost
}
