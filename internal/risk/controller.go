// Package risk is the admission gate every would-be order passes through.
package risk

import (
	"fmt"
	"sync"
	"time"
	"warrant_bot/internal/helper"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/reconcile"

	"github.com/shopspring/decimal"
)

// Rejection reasons. They double as metric labels.
const (
	ReasonNoSymbol      = "no_symbol"
	ReasonNoAccount     = "no_account"
	ReasonBadPrice      = "bad_price"
	ReasonBadNotional   = "bad_notional"
	ReasonUnknownLots   = "open_lots_unknown"
	ReasonDailyLoss     = "daily_loss"
	ReasonPositionLimit = "position_limit"
	ReasonKnockout      = "knockout_distance"
	ReasonCloseWindow   = "close_window"
	ReasonCash          = "insufficient_cash"
)

type Limits struct {
	// Zero disables the respective check.
	MaxDailyLoss        decimal.Decimal
	MaxPositionNotional decimal.Decimal
	SafetyMarginPct     float64
}

func LimitsFrom(m config.Monitor) Limits {
	return Limits{
		MaxDailyLoss:        decimal.NewFromFloat(m.MaxDailyLoss),
		MaxPositionNotional: decimal.NewFromFloat(m.MaxPositionNotional),
		SafetyMarginPct:     m.Seat.SafetyMarginPct,
	}
}

type Request struct {
	Account         *models.AccountSnapshot
	Positions       []models.Position
	Signal          models.Signal
	PlannedNotional decimal.Decimal
	// CurrentPrice is the warrant's live price.
	CurrentPrice float64
	// UnderlyingPrice is the monitored instrument's live price.
	UnderlyingPrice float64
	Now             time.Time
}

type Decision struct {
	Allowed bool
	Reason  string
	Detail  string
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	if d.Detail == "" {
		return d.Reason
	}
	return d.Reason + ": " + d.Detail
}

func reject(reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// LotSource exposes the latest reconciliation result per symbol.
type LotSource interface {
	Cached(symbol string) (reconcile.Result, bool)
}

// Clock reports the pre-close buy suppression window.
type Clock interface {
	InBuySuppress(now time.Time) bool
}

type Controller struct {
	lots  LotSource
	clock Clock

	mu         sync.RWMutex
	limits     map[string]Limits
	callPrices map[string]float64
}

func NewController(lots LotSource, clock Clock, monitors []config.Monitor) *Controller {
	c := &Controller{
		lots:       lots,
		clock:      clock,
		limits:     make(map[string]Limits, len(monitors)),
		callPrices: make(map[string]float64),
	}
	for _, m := range monitors {
		c.limits[m.Symbol] = LimitsFrom(m)
	}
	return c
}

func (c *Controller) SetLimits(monitor string, l Limits) {
	c.mu.Lock()
	c.limits[monitor] = l
	c.mu.Unlock()
}

// SetCallPrice caches the knockout barrier of a warrant.
func (c *Controller) SetCallPrice(symbol string, callPrice float64) {
	if callPrice <= 0 {
		return
	}
	c.mu.Lock()
	c.callPrices[symbol] = callPrice
	c.mu.Unlock()
}

func (c *Controller) CallPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.callPrices[symbol]
	return v, ok
}

// Reset forgets everything cached for symbol.
func (c *Controller) Reset(symbol string) {
	c.mu.Lock()
	delete(c.callPrices, symbol)
	c.mu.Unlock()
}

// Admit decides whether the signal may be executed. Exits are always admitted
// once they name a symbol; entries fail closed on any missing input.
func (c *Controller) Admit(req Request) Decision {
	sig := req.Signal
	if sig.Symbol == "" {
		return reject(ReasonNoSymbol, "signal %s has no symbol", sig.Action)
	}
	if !sig.Action.IsBuy() {
		return Decision{Allowed: true, Reason: "exit"}
	}
	return c.admitBuy(req)
}

func (c *Controller) admitBuy(req Request) Decision {
	sig := req.Signal
	if req.Account == nil {
		return reject(ReasonNoAccount, "account snapshot unavailable")
	}
	if !helper.Finite(req.CurrentPrice) || req.CurrentPrice <= 0 {
		return reject(ReasonBadPrice, "warrant price %v", req.CurrentPrice)
	}
	if !req.PlannedNotional.IsPositive() {
		return reject(ReasonBadNotional, "planned notional %s", req.PlannedNotional)
	}

	c.mu.RLock()
	lim := c.limits[sig.Monitor]
	callPrice, knockout := c.callPrices[sig.Symbol]
	c.mu.RUnlock()

	price := decimal.NewFromFloat(req.CurrentPrice)

	if lim.MaxDailyLoss.IsPositive() {
		res, ok := c.lots.Cached(sig.Symbol)
		if !ok {
			return reject(ReasonUnknownLots, "%s not reconciled", sig.Symbol)
		}
		qty, cost := reconcile.Totals(res.Lots)
		pnl := qty.Mul(price).Sub(cost)
		if pnl.LessThanOrEqual(lim.MaxDailyLoss.Neg()) {
			return reject(ReasonDailyLoss, "unrealized %s <= -%s", pnl.StringFixed(2), lim.MaxDailyLoss)
		}
	}

	if lim.MaxPositionNotional.IsPositive() {
		existing := decimal.Zero
		for _, p := range req.Positions {
			if p.Symbol == sig.Symbol {
				existing = existing.Add(p.Quantity.Mul(price))
			}
		}
		if total := existing.Add(req.PlannedNotional); total.GreaterThan(lim.MaxPositionNotional) {
			return reject(ReasonPositionLimit, "notional %s + %s > %s",
				existing.StringFixed(2), req.PlannedNotional.StringFixed(2), lim.MaxPositionNotional)
		}
	}

	if knockout && lim.SafetyMarginPct > 0 {
		if !helper.Finite(req.UnderlyingPrice) || req.UnderlyingPrice <= 0 {
			return reject(ReasonBadPrice, "underlying price %v", req.UnderlyingPrice)
		}
		dist := DistancePct(sig.Action.Direction(), req.UnderlyingPrice, callPrice)
		if dist < lim.SafetyMarginPct {
			return reject(ReasonKnockout, "distance %.3f%% < %.3f%%", dist, lim.SafetyMarginPct)
		}
	}

	if c.clock != nil && c.clock.InBuySuppress(req.Now) {
		return reject(ReasonCloseWindow, "inside pre-close window")
	}

	if avail := req.Account.Available(); req.PlannedNotional.GreaterThan(avail) {
		return reject(ReasonCash, "need %s have %s", req.PlannedNotional.StringFixed(2), avail.StringFixed(2))
	}

	return Decision{Allowed: true, Reason: "ok"}
}

// DistancePct is the gap between the underlying and the knockout barrier as a
// percentage of the underlying, positive while the barrier is not breached.
func DistancePct(dir models.Direction, underlying, callPrice float64) float64 {
	if underlying <= 0 {
		return 0
	}
	if dir == models.Short {
		return (callPrice - underlying) / underlying * 100
	}
	return (underlying - callPrice) / underlying * 100
}
