package reconcile

import (
	"context"
	"sync"
	"time"
	"warrant_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FillSource is the part of the broker the engine reads.
type FillSource interface {
	GetTodayFilledOrders(ctx context.Context, symbol string) ([]models.Order, error)
}

type Result struct {
	Symbol    string
	IsLong    bool
	Lots      []models.BuyLot
	Anomalies int
	At        time.Time
}

// Engine recomputes open lots from scratch on every call and caches the last
// result per symbol for the risk checks.
type Engine struct {
	src FillSource
	log *zap.Logger
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]Result
}

func NewEngine(src FillSource, log *zap.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{src: src, log: log, now: now, cache: make(map[string]Result)}
}

func (e *Engine) Reconcile(ctx context.Context, symbol string, isLong bool) ([]models.BuyLot, error) {
	orders, err := e.src.GetTodayFilledOrders(ctx, symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "reconcile %s", symbol)
	}
	mine := orders[:0:0]
	for _, o := range orders {
		if o.Symbol == symbol {
			mine = append(mine, o)
		}
	}

	lots, anomalies := OpenLots(mine)
	if anomalies > 0 {
		e.log.Warn("reconcile skipped malformed fills",
			zap.String("symbol", symbol), zap.Int("count", anomalies))
	}

	e.mu.Lock()
	e.cache[symbol] = Result{Symbol: symbol, IsLong: isLong, Lots: lots, Anomalies: anomalies, At: e.now()}
	e.mu.Unlock()

	qty, cost := Totals(lots)
	e.log.Debug("reconciled",
		zap.String("symbol", symbol),
		zap.Bool("long", isLong),
		zap.Int("fills", len(mine)),
		zap.Int("open_lots", len(lots)),
		zap.String("open_qty", qty.String()),
		zap.String("open_cost", cost.String()))
	return lots, nil
}

// Cached returns the last computed result for symbol.
func (e *Engine) Cached(symbol string) (Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.cache[symbol]
	return r, ok
}

// Reset drops the cached result for symbol.
func (e *Engine) Reset(symbol string) {
	e.mu.Lock()
	delete(e.cache, symbol)
	e.mu.Unlock()
}

// Flush drops every cached result.
func (e *Engine) Flush() {
	e.mu.Lock()
	e.cache = make(map[string]Result)
	e.mu.Unlock()
}
