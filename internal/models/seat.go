package models

import (
	"fmt"
	"time"
)

type SeatStatus int

const (
	SeatEmpty SeatStatus = iota
	SeatSearching
	SeatReady
)

func (s SeatStatus) String() string {
	switch s {
	case SeatEmpty:
		return "EMPTY"
	case SeatSearching:
		return "SEARCHING"
	case SeatReady:
		return "READY"
	}
	return fmt.Sprintf("SeatStatus(%d)", int(s))
}

// SeatKey identifies one logical slot: a monitored underlying plus a direction.
type SeatKey struct {
	Monitor   string
	Direction Direction
}

func (k SeatKey) String() string { return k.Monitor + ":" + k.Direction.String() }

// Seat binds a SeatKey to the concrete warrant currently traded for it.
type Seat struct {
	Symbol       string
	Status       SeatStatus
	LastSwitchAt time.Time
	LastSearchAt time.Time
	Version      uint64

	// CallPrice is the knockout barrier of the bound warrant, zero when unknown.
	CallPrice float64
}

// Bound reports whether the seat currently has a symbol.
func (s Seat) Bound() bool { return s.Status == SeatReady && s.Symbol != "" }
