package runner

import (
	"context"
	"time"
	"warrant_bot/internal/events"
	"warrant_bot/internal/helper"
	"warrant_bot/internal/indicator"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Tick runs one pass of the engine at e.now(). It only reads from the broker
// and schedules work; every order goes through a queue.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()
	defer func() {
		e.st.touchTick(now)
		if e.OnTick != nil {
			e.OnTick(e.Status())
		}
	}()

	e.refreshDay(ctx)
	e.scheduleRefresh(now)

	if !e.clock.InSession(now) {
		return
	}

	if e.clock.InLiquidation(now) {
		e.liquidate(ctx, now)
		return
	}

	for _, name := range e.order {
		e.tickMonitor(ctx, e.monitors[name], now)
	}
	e.confirmDue(ctx, now)
	e.scheduleChase(ctx)
}

func (e *Engine) tickMonitor(ctx context.Context, m config.Monitor, now time.Time) {
	log := e.log.With(zap.String("monitor", m.Symbol))

	q, err := e.broker.GetLatestQuote(ctx, m.Symbol)
	if err != nil || q == nil || !helper.Finite(q.Price) || q.Price <= 0 {
		log.Debug("underlying quote unavailable", zap.Error(err))
		return
	}
	e.st.setUnderlying(m.Symbol, q.Price)

	e.maintainSeats(m, q.Price, now)

	snap, ok := e.st.cachedSnapshot(m.Symbol, now, e.cfg.Engine.CandleRefresh)
	if !ok {
		candles, err := e.broker.GetCandlesticks(ctx, m.Symbol, helper.NormPeriod(e.cfg.Engine.CandlePeriod), e.cfg.Engine.CandleCount)
		if err != nil {
			log.Warn("candles unavailable", zap.Error(err))
			return
		}
		snap = indicator.Compute(candles)
		e.st.setSnapshot(m.Symbol, snap, now)
	}
	if len(snap) == 0 {
		return
	}

	ev := e.pipeline.Evaluate(m.Symbol, snap, e.seats, now)
	for _, s := range ev.Skipped {
		log.Debug("candidate skipped", zap.String("reason", s))
	}
	for _, sig := range ev.Delayed {
		e.publishSignal(events.SignalGenerated, sig, "pending confirmation")
	}
	for _, sig := range ev.Immediate {
		e.enqueueExit(sig)
	}
}

// enqueueExit schedules a sell for a held, not already resting position.
func (e *Engine) enqueueExit(sig models.Signal) bool {
	held := e.st.held(sig.Symbol)
	if !held.IsPositive() || e.restingSell(sig.Symbol) {
		return false
	}
	if sig.Quantity.IsZero() {
		sig.Quantity = held
	}
	e.publishSignal(events.SignalGenerated, sig, sig.Reason)
	return e.sellQ.Push(models.Task{
		Type:        models.TaskSell,
		DedupeKey:   "sell:" + seatKeyOf(sig).String(),
		Monitor:     sig.Monitor,
		Direction:   sig.Action.Direction(),
		Symbol:      sig.Symbol,
		SeatVersion: sig.SeatVersion,
		Payload:     sig,
	})
}

func (e *Engine) restingSell(symbol string) bool {
	for _, o := range e.chase.Orders() {
		if o.Symbol == symbol && o.Side == models.SideSell {
			return true
		}
	}
	return false
}

// confirmDue judges pending entries whose trigger time passed and enqueues the confirmed ones.
func (e *Engine) confirmDue(ctx context.Context, now time.Time) {
	for _, out := range e.pipeline.Verifier().Due(now) {
		sig := out.Signal
		if out.State != strategy.StateConfirmed {
			e.publishSignal(events.SignalDiscarded, sig, out.State.String()+": "+out.Reason)
			continue
		}
		if !e.seats.Current(seatKeyOf(sig), sig.SeatVersion) {
			e.publish(events.Event{
				Kind:    events.StaleDiscarded,
				Monitor: sig.Monitor,
				Symbol:  sig.Symbol,
				Action:  sig.Action.String(),
				Version: sig.SeatVersion,
				Reason:  "seat changed while pending",
				Fields:  map[string]any{"queue": "verifier"},
			})
			continue
		}

		q, err := e.broker.GetLatestQuote(ctx, sig.Symbol)
		if err != nil || q == nil || !helper.Finite(q.Price) || q.Price <= 0 {
			e.publishSignal(events.SignalDiscarded, sig, "warrant quote unavailable")
			continue
		}
		lot := q.LotSize
		if lot <= 0 {
			lot = e.st.lotSize(sig.Symbol)
		}
		e.st.setLotSize(sig.Symbol, lot)

		m := e.monitors[sig.Monitor]
		sig.Price = helper.Dec(q.Price)
		sig.LotSize = lot
		sig.Quantity = helper.LotsFor(decimal.NewFromFloat(m.TargetNotional), sig.Price, lot)
		if sig.Quantity.IsZero() {
			e.publishSignal(events.SignalDiscarded, sig, "target notional below one lot")
			continue
		}

		e.publishSignal(events.SignalConfirmed, sig, out.Reason)
		e.buyQ.Push(models.Task{
			Type:        models.TaskBuy,
			DedupeKey:   "buy:" + seatKeyOf(sig).String(),
			Monitor:     sig.Monitor,
			Direction:   sig.Action.Direction(),
			Symbol:      sig.Symbol,
			SeatVersion: sig.SeatVersion,
			Payload:     sig,
		})
	}
}

// maintainSeats schedules searches for empty seats and distance checks for bound ones.
func (e *Engine) maintainSeats(m config.Monitor, underlying float64, now time.Time) {
	for _, d := range models.Directions {
		key := models.SeatKey{Monitor: m.Symbol, Direction: d}
		s := e.seats.Seat(m.Symbol, d)
		if !s.Bound() {
			if m.AutoSearch && now.Sub(s.LastSearchAt) >= m.Seat.SearchInterval {
				e.auxQ.ScheduleLatest(models.Task{
					Type:        models.TaskSeatSearch,
					DedupeKey:   "search:" + key.String(),
					Monitor:     m.Symbol,
					Direction:   d,
					SeatVersion: s.Version,
				})
			}
			continue
		}
		if !e.st.moved(key, underlying, m.Seat.SwitchMovePct) {
			continue
		}
		e.st.markChecked(key, underlying)
		e.auxQ.ScheduleLatest(models.Task{
			Type:        models.TaskDistanceCheck,
			DedupeKey:   "distance:" + key.String(),
			Monitor:     m.Symbol,
			Direction:   d,
			Symbol:      s.Symbol,
			SeatVersion: s.Version,
			Payload:     underlying,
		})
	}
}

func (e *Engine) scheduleChase(ctx context.Context) {
	due := e.chase.Check(func(symbol string) (float64, bool) {
		q, err := e.broker.GetLatestQuote(ctx, symbol)
		if err != nil || q == nil {
			return 0, false
		}
		return q.Price, true
	})
	for _, d := range due {
		e.auxQ.ScheduleLatest(models.Task{
			Type:        models.TaskChase,
			DedupeKey:   "chase:" + d.Order.OrderID,
			Monitor:     d.Order.Monitor,
			Direction:   d.Order.Direction,
			Symbol:      d.Order.Symbol,
			SeatVersion: d.Order.SeatVersion,
			Payload:     d,
		})
	}
}

func (e *Engine) scheduleRefresh(now time.Time) {
	if e.st.accountAge(now) >= e.cfg.Engine.AccountRefresh {
		e.auxQ.ScheduleLatest(models.Task{Type: models.TaskRefreshAccount, DedupeKey: "refresh:account"})
	}
	if len(e.chase.Orders()) > 0 && e.st.ordersAge(now) >= e.cfg.Engine.OrdersRefresh {
		e.st.touchOrders(now)
		e.auxQ.ScheduleLatest(models.Task{Type: models.TaskRefreshOrders, DedupeKey: "refresh:orders"})
	}
}

// liquidate drops pending entries and sells every held position of a bound seat.
func (e *Engine) liquidate(ctx context.Context, now time.Time) {
	if n := e.pipeline.Verifier().DropWhere(func(models.Signal) bool { return true }); n > 0 {
		e.log.Info("pre-close: pending entries dropped", zap.Int("count", n))
	}
	e.buyQ.CancelWhere(func(models.Task) bool { return true })

	for _, en := range e.seats.Snapshot() {
		if !en.Seat.Bound() {
			continue
		}
		sig := models.Signal{
			Monitor:     en.Key.Monitor,
			Symbol:      en.Seat.Symbol,
			Action:      models.ExitFor(en.Key.Direction),
			Reason:      "pre-close liquidation",
			CreatedAt:   now,
			TriggerTime: now,
			SeatVersion: en.Seat.Version,
		}
		if e.enqueueExit(sig) {
			e.publish(events.Event{
				Kind:    events.Liquidation,
				Monitor: sig.Monitor,
				Symbol:  sig.Symbol,
				Action:  sig.Action.String(),
				Version: sig.SeatVersion,
				Reason:  sig.Reason,
				Fields:  map[string]any{"close_at": e.clock.CloseAt(now).Format(time.TimeOnly)},
			})
		}
	}
	e.scheduleChase(ctx)
}

func (e *Engine) publishSignal(kind events.Kind, sig models.Signal, reason string) {
	fields := map[string]any{"trigger_time": sig.TriggerTime.Format(time.TimeOnly)}
	if !sig.Price.IsZero() {
		fields["price"] = sig.Price.String()
	}
	if !sig.Quantity.IsZero() {
		fields["quantity"] = sig.Quantity.String()
	}
	e.publish(events.Event{
		Kind:    kind,
		Monitor: sig.Monitor,
		Symbol:  sig.Symbol,
		Action:  sig.Action.String(),
		Version: sig.SeatVersion,
		Reason:  reason,
		Fields:  fields,
	})
}

func seatKeyOf(sig models.Signal) models.SeatKey {
	return models.SeatKey{Monitor: sig.Monitor, Direction: sig.Action.Direction()}
}
