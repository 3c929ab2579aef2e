package gateway

import (
	"fmt"
	"strings"
	"time"
	"warrant_bot/internal/models"

	"github.com/shopspring/decimal"
)

// Prices and quantities arrive as JSON strings; decimal decodes both strings and numbers.

type quoteDTO struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	LastDone  decimal.Decimal `json:"last_done"`
	PrevClose decimal.Decimal `json:"prev_close"`
	LotSize   int64           `json:"lot_size"`
	Timestamp int64           `json:"timestamp"` // unix ms
}

func (q quoteDTO) model() models.Quote {
	return models.Quote{
		Symbol:    q.Symbol,
		Name:      q.Name,
		Price:     q.LastDone.InexactFloat64(),
		PrevClose: q.PrevClose.InexactFloat64(),
		LotSize:   q.LotSize,
		Timestamp: time.UnixMilli(q.Timestamp),
	}
}

type candleDTO struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Turnover  decimal.Decimal `json:"turnover"`
	Timestamp int64           `json:"timestamp"`
}

func (c candleDTO) model() models.Candle {
	return models.Candle{
		Open:     c.Open.InexactFloat64(),
		High:     c.High.InexactFloat64(),
		Low:      c.Low.InexactFloat64(),
		Close:    c.Close.InexactFloat64(),
		Volume:   c.Volume.InexactFloat64(),
		Turnover: c.Turnover.InexactFloat64(),
		Start:    time.UnixMilli(c.Timestamp),
	}
}

type accountDTO struct {
	Currency  string          `json:"currency"`
	TotalCash decimal.Decimal `json:"total_cash"`
	NetAssets decimal.Decimal `json:"net_assets"`
	BuyPower  decimal.Decimal `json:"buy_power"`
}

type positionDTO struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	Currency          string          `json:"currency"`
}

type orderDTO struct {
	OrderID          string          `json:"order_id"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Status           string          `json:"status"`
	Price            decimal.Decimal `json:"price"`
	Quantity         decimal.Decimal `json:"quantity"`
	ExecutedPrice    decimal.Decimal `json:"executed_price"`
	ExecutedQuantity decimal.Decimal `json:"executed_quantity"`
	SubmittedAt      int64           `json:"submitted_at"`
	UpdatedAt        int64           `json:"updated_at"`
}

func (o orderDTO) model() models.Order {
	return models.Order{
		OrderID:          o.OrderID,
		Symbol:           o.Symbol,
		Side:             models.Side(strings.ToUpper(o.Side)),
		Status:           orderStatus(o.Status),
		Price:            o.Price,
		Quantity:         o.Quantity,
		ExecutedPrice:    o.ExecutedPrice,
		ExecutedQuantity: o.ExecutedQuantity,
		SubmittedAt:      time.UnixMilli(o.SubmittedAt),
		UpdatedAt:        time.UnixMilli(o.UpdatedAt),
	}
}

func orderStatus(s string) models.OrderStatus {
	switch strings.ToUpper(s) {
	case "NEW", "NOT_REPORTED", "WAIT_TO_NEW", "PENDING":
		return models.OrderNew
	case "PARTIAL_FILLED", "PARTIALLY_FILLED":
		return models.OrderPartiallyFilled
	case "FILLED":
		return models.OrderFilled
	case "CANCELED", "CANCELLED", "EXPIRED":
		return models.OrderCancelled
	default:
		return models.OrderRejected
	}
}

type submitDTO struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	OrderType     string `json:"order_type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

type calendarDTO struct {
	IsTradingDay bool `json:"is_trading_day"`
	IsHalfDay    bool `json:"is_half_day"`
}

type warrantDTO struct {
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	Underlying string          `json:"underlying"`
	Type       string          `json:"type"` // BULL | BEAR
	CallPrice  decimal.Decimal `json:"call_price"`
	ExpiryDate string          `json:"expiry_date"`
	Turnover   decimal.Decimal `json:"turnover"`
	LotSize    int64           `json:"lot_size"`
	LastDone   decimal.Decimal `json:"last_done"`
}

func (w warrantDTO) model() (models.WarrantCandidate, error) {
	var dir models.Direction
	if err := dir.UnmarshalText([]byte(w.Type)); err != nil {
		return models.WarrantCandidate{}, err
	}
	exp, err := time.Parse(time.DateOnly, w.ExpiryDate)
	if err != nil {
		return models.WarrantCandidate{}, fmt.Errorf("warrant %s expiry %q: %w", w.Symbol, w.ExpiryDate, err)
	}
	return models.WarrantCandidate{
		Symbol:     w.Symbol,
		Name:       w.Name,
		Underlying: w.Underlying,
		Direction:  dir,
		CallPrice:  w.CallPrice.InexactFloat64(),
		ExpiryDate: exp,
		Turnover:   w.Turnover.InexactFloat64(),
		LotSize:    w.LotSize,
		Price:      w.LastDone.InexactFloat64(),
	}, nil
}

func warrantType(d models.Direction) string {
	if d == models.Short {
		return "BEAR"
	}
	return "BULL"
}
