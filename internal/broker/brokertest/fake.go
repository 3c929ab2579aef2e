// Package brokertest provides an in-memory broker.Client for tests.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"
	"warrant_bot/internal/broker"
	"warrant_bot/internal/models"

	"github.com/shopspring/decimal"
)

// Fake is a scriptable broker. Zero value is not usable, use New.
type Fake struct {
	mu sync.Mutex

	Quotes    map[string]models.Quote
	Candles   map[string][]models.Candle
	Account   *models.AccountSnapshot
	Positions []models.Position
	Fills     map[string][]models.Order
	Orders    map[string]*models.Order
	Warrants  map[string][]models.WarrantCandidate
	Day       models.TradingDay

	// Errs makes the named method fail with the given error.
	Errs map[string]error
	// CancelResult is returned by CancelOrder when no error is scripted.
	CancelResult bool

	Submitted []models.OrderRequest
	Cancelled []string

	calls  map[string]int
	nextID int
}

var _ broker.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Quotes:       map[string]models.Quote{},
		Candles:      map[string][]models.Candle{},
		Fills:        map[string][]models.Order{},
		Orders:       map[string]*models.Order{},
		Warrants:     map[string][]models.WarrantCandidate{},
		Errs:         map[string]error{},
		Day:          models.TradingDay{IsTradingDay: true},
		CancelResult: true,
		calls:        map[string]int{},
	}
}

func (f *Fake) enter(name string) error {
	f.mu.Lock()
	f.calls[name]++
	err := f.Errs[name]
	f.mu.Unlock()
	return err
}

// Calls returns how often the named method ran.
func (f *Fake) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// TotalCalls sums calls over every method.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *Fake) SetErr(name string, err error) {
	f.mu.Lock()
	f.Errs[name] = err
	f.mu.Unlock()
}

func (f *Fake) SetQuote(q models.Quote) {
	f.mu.Lock()
	f.Quotes[q.Symbol] = q
	f.mu.Unlock()
}

func (f *Fake) SetPositions(ps ...models.Position) {
	f.mu.Lock()
	f.Positions = ps
	f.mu.Unlock()
}

func (f *Fake) AddFill(o models.Order) {
	f.mu.Lock()
	f.Fills[o.Symbol] = append(f.Fills[o.Symbol], o)
	f.mu.Unlock()
}

func (f *Fake) SetOrder(o models.Order) {
	f.mu.Lock()
	f.Orders[o.OrderID] = &o
	f.mu.Unlock()
}

func (f *Fake) SubmittedOrders() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRequest(nil), f.Submitted...)
}

func (f *Fake) GetLatestQuote(_ context.Context, symbol string) (*models.Quote, error) {
	if err := f.enter("GetLatestQuote"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.Quotes[symbol]
	if !ok {
		return nil, broker.ErrNotFound
	}
	return &q, nil
}

func (f *Fake) GetCandlesticks(_ context.Context, symbol, _ string, count int) ([]models.Candle, error) {
	if err := f.enter("GetCandlesticks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cs := f.Candles[symbol]
	if count > 0 && len(cs) > count {
		cs = cs[len(cs)-count:]
	}
	return append([]models.Candle(nil), cs...), nil
}

func (f *Fake) GetAccountSnapshot(context.Context) (*models.AccountSnapshot, error) {
	if err := f.enter("GetAccountSnapshot"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Account == nil {
		return nil, broker.ErrNotFound
	}
	a := *f.Account
	return &a, nil
}

func (f *Fake) GetStockPositions(context.Context) ([]models.Position, error) {
	if err := f.enter("GetStockPositions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Position(nil), f.Positions...), nil
}

func (f *Fake) GetTodayFilledOrders(_ context.Context, symbol string) ([]models.Order, error) {
	if err := f.enter("GetTodayFilledOrders"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Order(nil), f.Fills[symbol]...), nil
}

func (f *Fake) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	if err := f.enter("GetOrder"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.Orders[orderID]
	if !ok {
		return nil, broker.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// SubmitOrder records the request and creates a resting NEW order for it.
func (f *Fake) SubmitOrder(_ context.Context, req models.OrderRequest) (string, error) {
	if err := f.enter("SubmitOrder"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("ord-%d", f.nextID)
	f.Submitted = append(f.Submitted, req)
	f.Orders[id] = &models.Order{
		OrderID:          id,
		Symbol:           req.Symbol,
		Side:             req.Side,
		Status:           models.OrderNew,
		Price:            req.Price,
		Quantity:         req.Quantity,
		ExecutedQuantity: decimal.Zero,
		SubmittedAt:      time.Now(),
		UpdatedAt:        time.Now(),
	}
	return id, nil
}

func (f *Fake) CancelOrder(_ context.Context, orderID string) (bool, error) {
	if err := f.enter("CancelOrder"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cancelled = append(f.Cancelled, orderID)
	if !f.CancelResult {
		return false, nil
	}
	if o, ok := f.Orders[orderID]; ok {
		o.Status = models.OrderCancelled
	}
	return true, nil
}

func (f *Fake) IsTradingDay(context.Context, time.Time) (models.TradingDay, error) {
	if err := f.enter("IsTradingDay"); err != nil {
		return models.TradingDay{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Day, nil
}

func (f *Fake) ListWarrants(_ context.Context, underlying string, dir models.Direction) ([]models.WarrantCandidate, error) {
	if err := f.enter("ListWarrants"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WarrantCandidate
	for _, w := range f.Warrants[underlying] {
		if w.Direction == dir {
			out = append(out, w)
		}
	}
	return out, nil
}
