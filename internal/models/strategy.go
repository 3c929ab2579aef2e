package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of the underlying a seat trades: bull warrants for LONG, bear for SHORT.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LONG", "long", "BULL", "bull":
		*d = Long
	case "SHORT", "short", "BEAR", "bear":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// Directions lists both seat directions in a stable order.
var Directions = [...]Direction{Long, Short}

// Action is the closed set of trade instructions the pipeline can produce.
type Action int

const (
	BuyLong Action = iota
	SellLong
	BuyShort
	SellShort
)

// Actions lists every action in declaration order.
var Actions = [...]Action{BuyLong, SellLong, BuyShort, SellShort}

func (a Action) String() string {
	switch a {
	case BuyLong:
		return "BUY_LONG"
	case SellLong:
		return "SELL_LONG"
	case BuyShort:
		return "BUY_SHORT"
	case SellShort:
		return "SELL_SHORT"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction maps a config key like "buy_long" or "BUY_LONG" to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "BUY_LONG", "buy_long":
		return BuyLong, nil
	case "SELL_LONG", "sell_long":
		return SellLong, nil
	case "BUY_SHORT", "buy_short":
		return BuyShort, nil
	case "SELL_SHORT", "sell_short":
		return SellShort, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// IsBuy reports whether the action opens exposure.
func (a Action) IsBuy() bool {
	switch a {
	case BuyLong, BuyShort:
		return true
	case SellLong, SellShort:
		return false
	}
	return false
}

// Direction returns the seat direction the action trades.
func (a Action) Direction() Direction {
	switch a {
	case BuyLong, SellLong:
		return Long
	case BuyShort, SellShort:
		return Short
	}
	return Long
}

// Side returns the order side used to execute the action.
func (a Action) Side() Side {
	if a.IsBuy() {
		return SideBuy
	}
	return SideSell
}

// ExitFor returns the sell action closing exposure in direction d.
func ExitFor(d Direction) Action {
	if d == Short {
		return SellShort
	}
	return SellLong
}

// Signal is one trade instruction bound to the seat version it was created under.
type Signal struct {
	Monitor     string
	Symbol      string
	Action      Action
	Reason      string
	Price       decimal.Decimal
	LotSize     int64
	Quantity    decimal.Decimal
	TriggerTime time.Time
	CreatedAt   time.Time
	SeatVersion uint64

	// Snapshot holds the indicator values the signal was derived from.
	Snapshot map[string]float64
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s %s@%s v%d (%s)", s.Monitor, s.Action, s.Symbol, s.Price, s.SeatVersion, s.Reason)
}
