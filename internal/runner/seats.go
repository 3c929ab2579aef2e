package runner

import (
	"context"
	"fmt"
	"sort"
	"time"
	"warrant_bot/internal/chase"
	"warrant_bot/internal/events"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/risk"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// onSeatCleared drops every piece of work tied to the outgoing symbol. It runs
// inside the registry's write section, before any new symbol is bound.
func (e *Engine) onSeatCleared(key models.SeatKey, old models.Seat, version uint64, reason string) {
	sameSeat := func(t models.Task) bool {
		return t.SeatBound() && t.Monitor == key.Monitor && t.Direction == key.Direction
	}
	cancelled := 0
	for _, q := range e.Queues() {
		cancelled += len(q.CancelWhere(sameSeat))
	}
	dropped := e.pipeline.Verifier().DropWhere(func(s models.Signal) bool {
		return s.Monitor == key.Monitor && s.Action.Direction() == key.Direction
	})
	e.st.forgetChecked(key)

	if old.Symbol == "" {
		return
	}
	e.risk.Reset(old.Symbol)
	e.recon.Reset(old.Symbol)
	untracked := e.chase.UntrackWhere(func(t chase.Tracked) bool { return t.Symbol == old.Symbol })

	e.publish(events.Event{
		Kind:    events.SeatCleared,
		Monitor: key.Monitor,
		Symbol:  old.Symbol,
		Version: version,
		Reason:  reason,
		Fields: map[string]any{
			"seat":      key.String(),
			"cancelled": cancelled,
			"dropped":   dropped,
			"untracked": len(untracked),
		},
	})
}

// lockSeat takes the execution guard of key and returns its release.
func (e *Engine) lockSeat(key models.SeatKey) func() {
	mu, ok := e.guards[key]
	if !ok {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

// bindSeat binds under the seat guard, so no order of the outgoing symbol is
// between its version check and its submit.
func (e *Engine) bindSeat(key models.SeatKey, symbol string, callPrice float64) uint64 {
	defer e.lockSeat(key)()
	return e.seats.Bind(key.Monitor, key.Direction, symbol, callPrice)
}

func (e *Engine) clearSeat(key models.SeatKey, reason string) uint64 {
	defer e.lockSeat(key)()
	return e.seats.Clear(key.Monitor, key.Direction, reason)
}

// searchSeat looks for a replacement warrant for an empty seat and binds the best one.
func (e *Engine) searchSeat(ctx context.Context, t models.Task) error {
	m, ok := e.monitors[t.Monitor]
	if !ok {
		return fmt.Errorf("unknown monitor %s", t.Monitor)
	}
	if !e.seats.MarkSearching(t.Monitor, t.Direction) {
		return nil
	}
	underlying, ok := e.st.underlyingPrice(t.Monitor)
	if !ok {
		e.clearSeat(t.Seat(), "underlying price unknown")
		return nil
	}

	list, err := e.broker.ListWarrants(ctx, t.Monitor, t.Direction)
	if err != nil {
		e.clearSeat(t.Seat(), "search failed")
		return errors.Wrapf(err, "search %s %s", t.Monitor, t.Direction)
	}

	now := e.now()
	var candidates []models.WarrantCandidate
	for _, w := range list {
		if qualifies(m.Seat, t.Direction, underlying, w, now) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		e.clearSeat(t.Seat(), "no qualifying warrant")
		e.log.Debug("seat search found nothing",
			zap.String("monitor", t.Monitor),
			zap.String("direction", t.Direction.String()),
			zap.Int("candidates", len(list)))
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Turnover > candidates[j].Turnover })
	best := candidates[0]

	v := e.bindSeat(t.Seat(), best.Symbol, best.CallPrice)
	e.risk.SetCallPrice(best.Symbol, best.CallPrice)
	e.st.setLotSize(best.Symbol, best.LotSize)
	if e.Subscribe != nil {
		e.Subscribe(best.Symbol)
	}
	if _, err := e.recon.Reconcile(ctx, best.Symbol, t.Direction == models.Long); err != nil {
		e.log.Warn("reconcile after bind failed", zap.String("symbol", best.Symbol), zap.Error(err))
	}
	e.publish(events.Event{
		Kind:    events.SeatSwitched,
		Monitor: t.Monitor,
		Symbol:  best.Symbol,
		Version: v,
		Reason:  "search",
		Fields: map[string]any{
			"seat":       models.SeatKey{Monitor: t.Monitor, Direction: t.Direction}.String(),
			"call_price": best.CallPrice,
			"distance":   risk.DistancePct(t.Direction, underlying, best.CallPrice),
			"turnover":   best.Turnover,
		},
	})
	return nil
}

// qualifies applies the turnover, expiry and knockout distance filters of a search.
func qualifies(r config.SeatRules, d models.Direction, underlying float64, w models.WarrantCandidate, now time.Time) bool {
	if w.Symbol == "" || w.CallPrice <= 0 {
		return false
	}
	if w.Turnover < r.MinTurnover {
		return false
	}
	if !w.ExpiryDate.IsZero() && w.ExpiryDate.Before(now.AddDate(0, 0, r.MinExpiryDays)) {
		return false
	}
	return inRange(risk.DistancePct(d, underlying, w.CallPrice), r.MinDistancePct, r.MaxDistancePct)
}

// inRange treats a zero upper bound as open.
func inRange(dist, lo, hi float64) bool {
	if dist <= 0 || dist < lo {
		return false
	}
	return hi <= 0 || dist <= hi
}

// checkDistance clears a seat whose warrant drifted out of the safe distance
// band. A seat still holding the warrant is flattened first and switched on a
// later check.
func (e *Engine) checkDistance(t models.Task) error {
	m, ok := e.monitors[t.Monitor]
	if !ok {
		return fmt.Errorf("unknown monitor %s", t.Monitor)
	}
	underlying, _ := t.Payload.(float64)
	s := e.seats.Seat(t.Monitor, t.Direction)
	callPrice := s.CallPrice
	if cp, ok := e.risk.CallPrice(s.Symbol); ok {
		callPrice = cp
	}
	if callPrice <= 0 || underlying <= 0 {
		return nil
	}
	dist := risk.DistancePct(t.Direction, underlying, callPrice)
	if inRange(dist, m.Seat.MinDistancePct, m.Seat.MaxDistancePct) {
		return nil
	}
	reason := fmt.Sprintf("distance %.2f%% outside [%.2f, %.2f]", dist, m.Seat.MinDistancePct, m.Seat.MaxDistancePct)

	if e.st.held(s.Symbol).IsPositive() {
		sig := models.Signal{
			Monitor:     t.Monitor,
			Symbol:      s.Symbol,
			Action:      models.ExitFor(t.Direction),
			Reason:      "switch: " + reason,
			CreatedAt:   e.now(),
			TriggerTime: e.now(),
			SeatVersion: s.Version,
		}
		e.enqueueExit(sig)
		// check again on the next tick
		e.st.forgetChecked(models.SeatKey{Monitor: t.Monitor, Direction: t.Direction})
		return nil
	}

	if !m.AutoSearch {
		e.log.Warn("seat out of range and auto search disabled",
			zap.String("monitor", t.Monitor), zap.String("symbol", s.Symbol), zap.String("reason", reason))
		return nil
	}
	v := e.clearSeat(t.Seat(), reason)
	e.auxQ.ScheduleLatest(models.Task{
		Type:        models.TaskSeatSearch,
		DedupeKey:   "search:" + models.SeatKey{Monitor: t.Monitor, Direction: t.Direction}.String(),
		Monitor:     t.Monitor,
		Direction:   t.Direction,
		SeatVersion: v,
	})
	return nil
}
