package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderLimit  OrderType = "LO"
	OrderMarket OrderType = "MO"
)

type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
)

// Resting reports whether the order can still trade.
func (s OrderStatus) Resting() bool {
	return s == OrderNew || s == OrderPartiallyFilled
}

// OrderRequest is what the engine asks the broker to place.
type OrderRequest struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price,omitempty"`
	Type     OrderType       `json:"type"`
	Remark   string          `json:"remark,omitempty"`
}

// Order mirrors one broker order including its fill progress.
type Order struct {
	OrderID          string          `json:"order_id"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	Status           OrderStatus     `json:"status"`
	Price            decimal.Decimal `json:"price"`
	Quantity         decimal.Decimal `json:"quantity"`
	ExecutedPrice    decimal.Decimal `json:"executed_price"`
	ExecutedQuantity decimal.Decimal `json:"executed_quantity"`
	SubmittedAt      time.Time       `json:"submitted_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Remaining is the unfilled part of the order, never negative.
func (o Order) Remaining() decimal.Decimal {
	r := o.Quantity.Sub(o.ExecutedQuantity)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// BuyLot is a filled buy not yet offset by a sell.
type BuyLot struct {
	OrderID          string
	Symbol           string
	ExecutedPrice    decimal.Decimal
	ExecutedQuantity decimal.Decimal
	ExecutedTime     time.Time
}

// Cost is price times quantity of the lot.
func (l BuyLot) Cost() decimal.Decimal { return l.ExecutedPrice.Mul(l.ExecutedQuantity) }

type Position struct {
	Symbol            string          `json:"symbol"`
	Name              string          `json:"name"`
	Quantity          decimal.Decimal `json:"quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	Currency          string          `json:"currency"`
}

type AccountSnapshot struct {
	Currency  string          `json:"currency"`
	TotalCash decimal.Decimal `json:"total_cash"`
	NetAssets decimal.Decimal `json:"net_assets"`
	// BuyPower is optional; zero means unknown and TotalCash is used instead.
	BuyPower  decimal.Decimal `json:"buy_power"`
	FetchedAt time.Time       `json:"-"`
}

// Available is the cash usable for new buys.
func (a AccountSnapshot) Available() decimal.Decimal {
	if a.BuyPower.IsPositive() {
		return a.BuyPower
	}
	return a.TotalCash
}
