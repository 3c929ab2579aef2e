package runner

import (
	"context"
	"fmt"
	"warrant_bot/internal/chase"
	"warrant_bot/internal/events"
	"warrant_bot/internal/helper"
	"warrant_bot/internal/models"
	"warrant_bot/internal/risk"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func (e *Engine) handleBuy(ctx context.Context, t models.Task) error {
	sig, ok := t.Payload.(models.Signal)
	if !ok {
		return fmt.Errorf("buy task without signal")
	}
	defer e.lockSeat(seatKeyOf(sig))()

	// the only blocking refresh: buys decide on a fresh account
	if err := e.refreshAccount(ctx); err != nil {
		e.log.Warn("account refresh before buy failed", zap.String("symbol", sig.Symbol), zap.Error(err))
	}
	if _, err := e.recon.Reconcile(ctx, sig.Symbol, sig.Action.Direction() == models.Long); err != nil {
		e.log.Warn("reconcile before buy failed", zap.String("symbol", sig.Symbol), zap.Error(err))
	}

	account, positions := e.st.snapshot()
	underlying, _ := e.st.underlyingPrice(sig.Monitor)
	price, _ := sig.Price.Float64()
	d := e.risk.Admit(risk.Request{
		Account:         account,
		Positions:       positions,
		Signal:          sig,
		PlannedNotional: sig.Price.Mul(sig.Quantity),
		CurrentPrice:    price,
		UnderlyingPrice: underlying,
		Now:             e.now(),
	})
	if !d.Allowed {
		e.publish(events.Event{
			Kind:    events.RiskRejected,
			Monitor: sig.Monitor,
			Symbol:  sig.Symbol,
			Action:  sig.Action.String(),
			Version: sig.SeatVersion,
			Reason:  d.Reason,
			Fields:  map[string]any{"detail": d.Detail},
		})
		return nil
	}
	return e.submit(ctx, sig)
}

func (e *Engine) handleSell(ctx context.Context, t models.Task) error {
	sig, ok := t.Payload.(models.Signal)
	if !ok {
		return fmt.Errorf("sell task without signal")
	}
	defer e.lockSeat(seatKeyOf(sig))()

	qty := e.st.held(sig.Symbol)
	if sig.Quantity.IsPositive() && sig.Quantity.LessThan(qty) {
		qty = sig.Quantity
	}
	if lot := e.st.lotSize(sig.Symbol); lot > 0 {
		qty = helper.RoundDownToLot(qty, lot)
	}
	if !qty.IsPositive() {
		e.log.Debug("nothing to sell", zap.String("symbol", sig.Symbol))
		return nil
	}
	sig.Quantity = qty

	if !sig.Price.IsPositive() {
		q, err := e.broker.GetLatestQuote(ctx, sig.Symbol)
		if err != nil || q == nil {
			return errors.Errorf("quote for sell %s unavailable: %v", sig.Symbol, err)
		}
		sig.Price = helper.Dec(q.Price)
		e.st.setLotSize(sig.Symbol, q.LotSize)
	}

	account, positions := e.st.snapshot()
	price, _ := sig.Price.Float64()
	// exits are admitted even without account data
	d := e.risk.Admit(risk.Request{
		Account:      account,
		Positions:    positions,
		Signal:       sig,
		CurrentPrice: price,
		Now:          e.now(),
	})
	if !d.Allowed {
		e.publish(events.Event{
			Kind:    events.RiskRejected,
			Monitor: sig.Monitor,
			Symbol:  sig.Symbol,
			Action:  sig.Action.String(),
			Version: sig.SeatVersion,
			Reason:  d.Reason,
			Fields:  map[string]any{"detail": d.Detail},
		})
		return nil
	}
	return e.submit(ctx, sig)
}

// submit places a limit order for sig and hands it to the chaser. The caller
// holds the seat guard; a seat that moved on since the task was queued drops it.
func (e *Engine) submit(ctx context.Context, sig models.Signal) error {
	side := sig.Action.Side()
	if sig.SeatVersion != 0 && !e.seats.Current(seatKeyOf(sig), sig.SeatVersion) {
		queue, typ := QueueSell, models.TaskSell
		if side == models.SideBuy {
			queue, typ = QueueBuy, models.TaskBuy
		}
		e.publish(events.Event{
			Kind:    events.StaleDiscarded,
			Monitor: sig.Monitor,
			Symbol:  sig.Symbol,
			Action:  sig.Action.String(),
			Version: sig.SeatVersion,
			Reason:  "seat changed before submit",
			Fields:  map[string]any{"queue": queue, "type": typ.String()},
		})
		return nil
	}
	req := models.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     side,
		Quantity: sig.Quantity,
		Price:    sig.Price,
		Type:     models.OrderLimit,
		Remark:   fmt.Sprintf("%s:v%d", sig.Action, sig.SeatVersion),
	}
	id, err := e.broker.SubmitOrder(ctx, req)
	if err != nil {
		e.publish(events.Event{
			Kind:    events.OrderFailed,
			Monitor: sig.Monitor,
			Symbol:  sig.Symbol,
			Action:  sig.Action.String(),
			Version: sig.SeatVersion,
			Reason:  err.Error(),
			Fields:  map[string]any{"side": string(side)},
		})
		return errors.Wrapf(err, "submit %s %s", sig.Action, sig.Symbol)
	}

	now := e.now()
	e.chase.Track(chase.Tracked{
		OrderID:     id,
		Monitor:     sig.Monitor,
		Direction:   sig.Action.Direction(),
		SeatVersion: sig.SeatVersion,
		Symbol:      sig.Symbol,
		Side:        side,
		Limit:       sig.Price,
		Quantity:    sig.Quantity,
		LotSize:     e.st.lotSize(sig.Symbol),
		SubmittedAt: now,
	})
	e.chase.RecordTrade(sig.Symbol, now)
	e.publish(events.Event{
		Kind:    events.OrderSubmitted,
		Monitor: sig.Monitor,
		Symbol:  sig.Symbol,
		Action:  sig.Action.String(),
		Version: sig.SeatVersion,
		OrderID: id,
		Reason:  sig.Reason,
		Fields: map[string]any{
			"side":     string(side),
			"price":    sig.Price.String(),
			"quantity": sig.Quantity.String(),
		},
	})
	e.auxQ.ScheduleLatest(models.Task{Type: models.TaskRefreshAccount, DedupeKey: "refresh:account"})
	return nil
}

func (e *Engine) handleAux(ctx context.Context, t models.Task) error {
	switch t.Type {
	case models.TaskSeatSearch:
		return e.searchSeat(ctx, t)
	case models.TaskDistanceCheck:
		return e.checkDistance(t)
	case models.TaskRefreshAccount:
		return e.refreshAccount(ctx)
	case models.TaskRefreshOrders:
		return e.refreshOrders(ctx)
	case models.TaskChase:
		due, ok := t.Payload.(chase.Due)
		if !ok {
			return fmt.Errorf("chase task without order")
		}
		_, err := e.chase.Chase(ctx, due.Order.OrderID, due.Price)
		return err
	}
	return fmt.Errorf("aux queue cannot run %s", t.Type)
}

// refreshOrders syncs resting orders; when any finished the account is refreshed too.
func (e *Engine) refreshOrders(ctx context.Context) error {
	before := len(e.chase.Orders())
	err := e.chase.Refresh(ctx)
	if len(e.chase.Orders()) < before {
		if aerr := e.refreshAccount(ctx); aerr != nil && err == nil {
			err = aerr
		}
	}
	return err
}
