package models

import "time"

type Quote struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	PrevClose float64   `json:"prev_close"`
	LotSize   int64     `json:"lot_size"`
	Timestamp time.Time `json:"timestamp"`
}

type Candle struct {
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Turnover float64   `json:"turnover"`
	Start    time.Time `json:"start"`
}

type TradingDay struct {
	IsTradingDay bool `json:"is_trading_day"`
	IsHalfDay    bool `json:"is_half_day"`
}

// WarrantCandidate is a knockout warrant on a monitored underlying returned by the search.
type WarrantCandidate struct {
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name"`
	Underlying string    `json:"underlying"`
	Direction  Direction `json:"direction"`
	CallPrice  float64   `json:"call_price"`
	ExpiryDate time.Time `json:"expiry_date"`
	Turnover   float64   `json:"turnover"`
	LotSize    int64     `json:"lot_size"`
	Price      float64   `json:"price"`
}
