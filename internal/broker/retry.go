package broker

import (
	"context"
	"time"
	"warrant_bot/internal/models"
	"warrant_bot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Retrying wraps a Client with bounded fixed-backoff retries of transient
// errors and one tracing span per call.
type Retrying struct {
	next     Client
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

var _ Client = (*Retrying)(nil)

func NewRetrying(next Client, attempts int, backoff time.Duration, log *zap.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{next: next, attempts: attempts, backoff: backoff, log: log}
}

func (r *Retrying) do(ctx context.Context, op string, tag func(opentracing.Span), fn func(ctx context.Context) error) (err error) {
	span, ctx := tracing.Start(ctx, "broker."+op)
	if tag != nil {
		tag(span)
	}
	defer func() { tracing.Finish(span, err) }()

	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) || attempt >= r.attempts {
			break
		}
		r.log.Warn("broker call failed, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))

		t := time.NewTimer(r.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Wrapf(ctx.Err(), "%s: %v", op, err)
		case <-t.C:
		}
	}
	if err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}

func symbolTag(symbol string) func(opentracing.Span) {
	return func(s opentracing.Span) { s.SetTag("symbol", symbol) }
}

func (r *Retrying) GetLatestQuote(ctx context.Context, symbol string) (q *models.Quote, err error) {
	err = r.do(ctx, "GetLatestQuote", symbolTag(symbol), func(ctx context.Context) error {
		q, err = r.next.GetLatestQuote(ctx, symbol)
		return err
	})
	return q, err
}

func (r *Retrying) GetCandlesticks(ctx context.Context, symbol, period string, count int) (cs []models.Candle, err error) {
	err = r.do(ctx, "GetCandlesticks", symbolTag(symbol), func(ctx context.Context) error {
		cs, err = r.next.GetCandlesticks(ctx, symbol, period, count)
		return err
	})
	return cs, err
}

func (r *Retrying) GetAccountSnapshot(ctx context.Context) (a *models.AccountSnapshot, err error) {
	err = r.do(ctx, "GetAccountSnapshot", nil, func(ctx context.Context) error {
		a, err = r.next.GetAccountSnapshot(ctx)
		return err
	})
	return a, err
}

func (r *Retrying) GetStockPositions(ctx context.Context) (ps []models.Position, err error) {
	err = r.do(ctx, "GetStockPositions", nil, func(ctx context.Context) error {
		ps, err = r.next.GetStockPositions(ctx)
		return err
	})
	return ps, err
}

func (r *Retrying) GetTodayFilledOrders(ctx context.Context, symbol string) (os []models.Order, err error) {
	err = r.do(ctx, "GetTodayFilledOrders", symbolTag(symbol), func(ctx context.Context) error {
		os, err = r.next.GetTodayFilledOrders(ctx, symbol)
		return err
	})
	return os, err
}

func (r *Retrying) GetOrder(ctx context.Context, orderID string) (o *models.Order, err error) {
	err = r.do(ctx, "GetOrder", func(s opentracing.Span) { s.SetTag("order_id", orderID) }, func(ctx context.Context) error {
		o, err = r.next.GetOrder(ctx, orderID)
		return err
	})
	return o, err
}

func (r *Retrying) SubmitOrder(ctx context.Context, req models.OrderRequest) (id string, err error) {
	tag := func(s opentracing.Span) {
		s.SetTag("symbol", req.Symbol)
		s.SetTag("side", string(req.Side))
		s.SetTag("quantity", req.Quantity.String())
	}
	err = r.do(ctx, "SubmitOrder", tag, func(ctx context.Context) error {
		id, err = r.next.SubmitOrder(ctx, req)
		return err
	})
	return id, err
}

func (r *Retrying) CancelOrder(ctx context.Context, orderID string) (ok bool, err error) {
	err = r.do(ctx, "CancelOrder", func(s opentracing.Span) { s.SetTag("order_id", orderID) }, func(ctx context.Context) error {
		ok, err = r.next.CancelOrder(ctx, orderID)
		return err
	})
	return ok, err
}

func (r *Retrying) IsTradingDay(ctx context.Context, date time.Time) (d models.TradingDay, err error) {
	err = r.do(ctx, "IsTradingDay", nil, func(ctx context.Context) error {
		d, err = r.next.IsTradingDay(ctx, date)
		return err
	})
	return d, err
}

func (r *Retrying) ListWarrants(ctx context.Context, underlying string, dir models.Direction) (ws []models.WarrantCandidate, err error) {
	err = r.do(ctx, "ListWarrants", symbolTag(underlying), func(ctx context.Context) error {
		ws, err = r.next.ListWarrants(ctx, underlying, dir)
		return err
	})
	return ws, err
}
