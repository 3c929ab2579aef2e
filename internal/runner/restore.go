package runner

import (
	"context"
	"warrant_bot/internal/events"
	"warrant_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Restore rebuilds seats, broker mirrors and reconciliation from live broker
// state. Failures are logged; the tick loop retries what it needs.
func (e *Engine) Restore(ctx context.Context) {
	now := e.now()

	e.refreshDay(ctx)

	if err := e.refreshAccount(ctx); err != nil {
		e.log.Warn("restore: account refresh failed", zap.Error(err))
	}

	var symbols []string
	for _, name := range e.order {
		m := e.monitors[name]
		symbols = append(symbols, m.Symbol)
		for _, d := range models.Directions {
			sym := m.LongSymbol
			if d == models.Short {
				sym = m.ShortSymbol
			}
			if sym == "" {
				continue
			}
			callPrice := e.lookupCallPrice(ctx, m.Symbol, d, sym)
			v := e.bindSeat(models.SeatKey{Monitor: m.Symbol, Direction: d}, sym, callPrice)
			e.risk.SetCallPrice(sym, callPrice)
			symbols = append(symbols, sym)
			e.publish(events.Event{
				Kind:    events.SeatSwitched,
				Monitor: m.Symbol,
				Symbol:  sym,
				Version: v,
				Reason:  "configured",
				Fields:  map[string]any{"seat": models.SeatKey{Monitor: m.Symbol, Direction: d}.String(), "call_price": callPrice},
			})
		}
	}

	for _, en := range e.seats.Snapshot() {
		if !en.Seat.Bound() {
			continue
		}
		if _, err := e.recon.Reconcile(ctx, en.Seat.Symbol, en.Key.Direction == models.Long); err != nil {
			e.log.Warn("restore: reconcile failed", zap.String("symbol", en.Seat.Symbol), zap.Error(err))
		}
	}

	if e.Subscribe != nil && len(symbols) > 0 {
		e.Subscribe(symbols...)
	}
	e.log.Info("engine restored",
		zap.Int("seats", len(e.seats.Snapshot())),
		zap.Int("symbols", len(symbols)),
		zap.Time("at", now))
}

// refreshDay loads today's calendar flags once per exchange day.
func (e *Engine) refreshDay(ctx context.Context) {
	now := e.now()
	if _, fresh := e.clock.Day(now); fresh {
		return
	}
	day, err := e.broker.IsTradingDay(ctx, now)
	if err != nil {
		e.log.Warn("trading day unknown, assuming regular session", zap.Error(err))
		day = models.TradingDay{IsTradingDay: true}
	}
	e.clock.SetDay(now, day)
}

// lookupCallPrice finds the knockout barrier of a configured warrant; zero when unknown.
func (e *Engine) lookupCallPrice(ctx context.Context, underlying string, d models.Direction, symbol string) float64 {
	list, err := e.broker.ListWarrants(ctx, underlying, d)
	if err != nil {
		e.log.Warn("call price lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return 0
	}
	for _, w := range list {
		if w.Symbol == symbol {
			e.st.setLotSize(w.Symbol, w.LotSize)
			return w.CallPrice
		}
	}
	return 0
}

func (e *Engine) refreshAccount(ctx context.Context) error {
	acc, aerr := e.broker.GetAccountSnapshot(ctx)
	ps, perr := e.broker.GetStockPositions(ctx)
	if perr == nil && ps == nil {
		ps = []models.Position{}
	}
	e.st.setAccount(acc, ps, e.now())
	if aerr != nil {
		return errors.Wrap(aerr, "account snapshot")
	}
	return errors.Wrap(perr, "positions")
}
