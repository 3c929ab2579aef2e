package gateway

import (
	"context"
	"net/url"
	"strconv"
	"time"
	"warrant_bot/internal/broker"
	"warrant_bot/internal/helper"
	"warrant_bot/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// GetLatestQuote serves from the websocket cache while the entry is fresh, REST otherwise.
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if q, ok := c.cachedQuote(symbol); ok {
		return &q, nil
	}

	var dto quoteDTO
	if err := c.call(ctx, "GET", "/v1/quote", url.Values{"symbol": {symbol}}, nil, &dto); err != nil {
		return nil, err
	}
	if dto.Symbol == "" {
		return nil, errors.Wrapf(broker.ErrNotFound, "quote %s", symbol)
	}
	q := dto.model()
	return &q, nil
}

func (c *Client) GetCandlesticks(ctx context.Context, symbol, period string, count int) ([]models.Candle, error) {
	q := url.Values{
		"symbol": {symbol},
		"period": {helper.NormPeriod(period)},
		"count":  {strconv.Itoa(count)},
	}
	var dtos []candleDTO
	if err := c.call(ctx, "GET", "/v1/candles", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.model())
	}
	return out, nil
}

func (c *Client) GetAccountSnapshot(ctx context.Context) (*models.AccountSnapshot, error) {
	var dto accountDTO
	if err := c.call(ctx, "GET", "/v1/account", nil, nil, &dto); err != nil {
		return nil, err
	}
	return &models.AccountSnapshot{
		Currency:  dto.Currency,
		TotalCash: dto.TotalCash,
		NetAssets: dto.NetAssets,
		BuyPower:  dto.BuyPower,
		FetchedAt: c.now(),
	}, nil
}

func (c *Client) GetStockPositions(ctx context.Context) ([]models.Position, error) {
	var dtos []positionDTO
	if err := c.call(ctx, "GET", "/v1/positions", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Position, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, models.Position(d))
	}
	return out, nil
}

func (c *Client) GetTodayFilledOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	q := url.Values{"status": {"FILLED,PARTIAL_FILLED"}}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var dtos []orderDTO
	if err := c.call(ctx, "GET", "/v1/orders/today", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.model())
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var dto orderDTO
	if err := c.call(ctx, "GET", "/v1/orders/"+url.PathEscape(orderID), nil, nil, &dto); err != nil {
		return nil, err
	}
	o := dto.model()
	return &o, nil
}

func (c *Client) SubmitOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if !req.Quantity.IsPositive() {
		return "", errors.Errorf("submit %s: quantity %s <= 0", req.Symbol, req.Quantity)
	}
	body := submitDTO{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		OrderType:     string(req.Type),
		Quantity:      req.Quantity.String(),
		TimeInForce:   "DAY",
		ClientOrderID: req.Remark,
	}
	if req.Type == models.OrderLimit {
		if !req.Price.IsPositive() {
			return "", errors.Errorf("submit %s: limit price %s <= 0", req.Symbol, req.Price)
		}
		body.Price = req.Price.String()
	}

	var r struct {
		OrderID string `json:"order_id"`
	}
	if err := c.call(ctx, "POST", "/v1/orders", nil, body, &r); err != nil {
		return "", err
	}
	if r.OrderID == "" {
		return "", errors.Errorf("submit %s: empty order id", req.Symbol)
	}
	c.log.Info("order submitted",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.String("quantity", req.Quantity.String()),
		zap.String("price", req.Price.String()),
		zap.String("order_id", r.OrderID))
	return r.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var r struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := c.call(ctx, "DELETE", "/v1/orders/"+url.PathEscape(orderID), nil, nil, &r); err != nil {
		return false, err
	}
	return r.Cancelled, nil
}

func (c *Client) IsTradingDay(ctx context.Context, date time.Time) (models.TradingDay, error) {
	var dto calendarDTO
	if err := c.call(ctx, "GET", "/v1/calendar", url.Values{"date": {date.Format(time.DateOnly)}}, nil, &dto); err != nil {
		return models.TradingDay{}, err
	}
	return models.TradingDay(dto), nil
}

func (c *Client) ListWarrants(ctx context.Context, underlying string, dir models.Direction) ([]models.WarrantCandidate, error) {
	q := url.Values{"underlying": {underlying}, "type": {warrantType(dir)}}
	var dtos []warrantDTO
	if err := c.call(ctx, "GET", "/v1/warrants", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.WarrantCandidate, 0, len(dtos))
	for _, d := range dtos {
		w, err := d.model()
		if err != nil {
			c.log.Debug("skip warrant", zap.String("symbol", d.Symbol), zap.Error(err))
			continue
		}
		if w.Direction != dir {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
