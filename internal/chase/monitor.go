// Package chase cancels and re-prices resting limit orders the market moved away from.
package chase

import (
	"context"
	"sort"
	"sync"
	"time"
	"warrant_bot/internal/events"
	"warrant_bot/internal/helper"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Refusal reasons for a resubmission.
const (
	RefuseZeroLots   = "zero_lots"
	RefuseCooldown   = "cooldown"
	RefuseCancel     = "cancel_failed"
	RefuseChaseLimit = "chase_limit"
	RefuseDisabled   = "disabled"
)

// Broker is the subset of broker.Client the monitor drives.
type Broker interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error)
}

// Tracked is a resting order under watch.
type Tracked struct {
	OrderID     string
	Monitor     string
	Direction   models.Direction
	SeatVersion uint64
	Symbol      string
	Side        models.Side
	Limit       decimal.Decimal
	// Original is the limit of the first order in the chase chain.
	Original    decimal.Decimal
	Quantity    decimal.Decimal
	Executed    decimal.Decimal
	LotSize     int64
	SubmittedAt time.Time
	Attempts    int
}

func (t Tracked) Remaining() decimal.Decimal {
	r := t.Quantity.Sub(t.Executed)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// Due is an order the market moved against by at least the threshold.
type Due struct {
	Order Tracked
	Price float64
}

type Monitor struct {
	cfg    config.Chase
	broker Broker
	pub    events.Publisher
	log    *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	book      map[string]*Tracked
	lastTrade map[string]time.Time
}

func NewMonitor(cfg config.Chase, b Broker, pub events.Publisher, log *zap.Logger, now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{
		cfg:       cfg,
		broker:    b,
		pub:       pub,
		log:       log.Named("chase"),
		now:       now,
		book:      make(map[string]*Tracked),
		lastTrade: make(map[string]time.Time),
	}
}

func (m *Monitor) Track(t Tracked) {
	if t.Original.IsZero() {
		t.Original = t.Limit
	}
	if t.SubmittedAt.IsZero() {
		t.SubmittedAt = m.now()
	}
	m.mu.Lock()
	m.book[t.OrderID] = &t
	m.mu.Unlock()
}

func (m *Monitor) Untrack(orderID string) {
	m.mu.Lock()
	delete(m.book, orderID)
	m.mu.Unlock()
}

// UntrackWhere stops watching matching orders without touching them at the broker.
func (m *Monitor) UntrackWhere(fn func(Tracked) bool) []Tracked {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Tracked
	for id, t := range m.book {
		if fn(*t) {
			out = append(out, *t)
			delete(m.book, id)
		}
	}
	return out
}

func (m *Monitor) Get(orderID string) (Tracked, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.book[orderID]
	if !ok {
		return Tracked{}, false
	}
	return *t, true
}

// Orders returns the tracked orders oldest first.
func (m *Monitor) Orders() []Tracked {
	m.mu.Lock()
	out := make([]Tracked, 0, len(m.book))
	for _, t := range m.book {
		out = append(out, *t)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// RecordTrade starts the per-symbol cooldown.
func (m *Monitor) RecordTrade(symbol string, at time.Time) {
	m.mu.Lock()
	if at.After(m.lastTrade[symbol]) {
		m.lastTrade[symbol] = at
	}
	m.mu.Unlock()
}

func (m *Monitor) LastTrade(symbol string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastTrade[symbol]
	return t, ok
}

func (m *Monitor) threshold() decimal.Decimal {
	return decimal.NewFromFloat(m.cfg.TickSize).Mul(decimal.NewFromInt(int64(m.cfg.ThresholdTicks)))
}

// Adverse reports whether price moved against the order by the chase threshold.
func (m *Monitor) Adverse(t Tracked, price float64) bool {
	if !helper.Finite(price) || price <= 0 {
		return false
	}
	px := decimal.NewFromFloat(price)
	th := m.threshold()
	if t.Side == models.SideBuy {
		return px.Sub(t.Limit).GreaterThanOrEqual(th)
	}
	return t.Limit.Sub(px).GreaterThanOrEqual(th)
}

// Check lists the orders to chase given live prices. It has no side effects.
func (m *Monitor) Check(price func(symbol string) (float64, bool)) []Due {
	if !m.cfg.Enabled {
		return nil
	}
	var out []Due
	for _, t := range m.Orders() {
		p, ok := price(t.Symbol)
		if !ok {
			continue
		}
		if m.Adverse(t, p) {
			out = append(out, Due{Order: t, Price: p})
		}
	}
	return out
}

// Refresh pulls the status of every tracked order and forgets the ones no longer resting.
func (m *Monitor) Refresh(ctx context.Context) error {
	var firstErr error
	for _, t := range m.Orders() {
		o, err := m.broker.GetOrder(ctx, t.OrderID)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "refresh order %s", t.OrderID)
			}
			continue
		}
		m.apply(*o)
	}
	return firstErr
}

func (m *Monitor) apply(o models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.book[o.OrderID]
	if !ok {
		return
	}
	if !o.Status.Resting() {
		delete(m.book, o.OrderID)
		return
	}
	t.Executed = o.ExecutedQuantity
}

func (m *Monitor) publish(kind events.Kind, t Tracked, reason string, fields map[string]any) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(events.Event{
		Kind:    kind,
		Monitor: t.Monitor,
		Symbol:  t.Symbol,
		Action:  string(t.Side),
		Version: t.SeatVersion,
		OrderID: t.OrderID,
		Reason:  reason,
		Fields:  fields,
	})
}

type Result struct {
	Cancelled  bool
	NewOrderID string
	Refused    string
}

// Chase cancels the order and resubmits the whole-lot remainder at price when allowed.
func (m *Monitor) Chase(ctx context.Context, orderID string, price float64) (Result, error) {
	t, ok := m.Get(orderID)
	if !ok {
		return Result{}, nil
	}

	if o, err := m.broker.GetOrder(ctx, orderID); err == nil {
		m.apply(*o)
		if !o.Status.Resting() {
			return Result{}, nil
		}
		t.Executed = o.ExecutedQuantity
	} else {
		m.log.Debug("order status unavailable, using cached", zap.String("order_id", orderID), zap.Error(err))
	}

	px := decimal.NewFromFloat(price)
	tick := decimal.NewFromFloat(m.cfg.TickSize)
	if t.Side == models.SideBuy {
		px = helper.RoundUpToTick(px, tick)
	} else {
		px = helper.RoundDownToTick(px, tick)
	}
	m.publish(events.ChaseAttempt, t, "adverse move", map[string]any{
		"limit": t.Limit.String(), "price": px.String(), "attempt": t.Attempts + 1,
	})

	cancelled, err := m.broker.CancelOrder(ctx, orderID)
	if err != nil || !cancelled {
		m.publish(events.ChaseRefused, t, RefuseCancel, map[string]any{"error": errString(err)})
		if err != nil {
			return Result{Refused: RefuseCancel}, errors.Wrapf(err, "cancel %s", orderID)
		}
		return Result{Refused: RefuseCancel}, nil
	}
	m.Untrack(orderID)
	res := Result{Cancelled: true}

	if reason := m.refusal(t, px); reason != "" {
		res.Refused = reason
		m.publish(events.ChaseRefused, t, reason, map[string]any{"remaining": t.Remaining().String()})
		return res, nil
	}

	qty := helper.RoundDownToLot(t.Remaining(), t.LotSize)
	newID, err := m.broker.SubmitOrder(ctx, models.OrderRequest{
		Symbol:   t.Symbol,
		Side:     t.Side,
		Quantity: qty,
		Price:    px,
		Type:     models.OrderLimit,
		Remark:   "chase:" + orderID,
	})
	if err != nil {
		m.publish(events.ChaseRefused, t, "submit_failed", map[string]any{"error": err.Error()})
		return res, errors.Wrapf(err, "resubmit %s", t.Symbol)
	}
	now := m.now()
	m.RecordTrade(t.Symbol, now)

	next := t
	next.OrderID = newID
	next.Limit = px
	next.Quantity = qty
	next.Executed = decimal.Zero
	next.SubmittedAt = now
	next.Attempts++
	m.Track(next)

	res.NewOrderID = newID
	m.publish(events.ChaseSuccess, next, "resubmitted", map[string]any{
		"replaces": orderID, "price": px.String(), "quantity": qty.String(),
	})
	return res, nil
}

func (m *Monitor) refusal(t Tracked, px decimal.Decimal) string {
	if !m.cfg.Enabled {
		return RefuseDisabled
	}
	if helper.RoundDownToLot(t.Remaining(), t.LotSize).IsZero() {
		return RefuseZeroLots
	}
	if last, ok := m.LastTrade(t.Symbol); ok && m.now().Sub(last) < m.cfg.Cooldown {
		return RefuseCooldown
	}
	if t.Side == models.SideBuy && m.cfg.MaxChasePct > 0 && t.Original.IsPositive() {
		moved := px.Sub(t.Original).Div(t.Original).Mul(decimal.NewFromInt(100))
		if moved.GreaterThan(decimal.NewFromFloat(m.cfg.MaxChasePct)) {
			return RefuseChaseLimit
		}
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
