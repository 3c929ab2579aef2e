package models

import "fmt"

type TaskType int

const (
	TaskBuy TaskType = iota
	TaskSell
	TaskSeatSearch
	TaskDistanceCheck
	TaskRefreshAccount
	TaskRefreshOrders
	TaskChase
)

func (t TaskType) String() string {
	switch t {
	case TaskBuy:
		return "buy"
	case TaskSell:
		return "sell"
	case TaskSeatSearch:
		return "seat_search"
	case TaskDistanceCheck:
		return "distance_check"
	case TaskRefreshAccount:
		return "refresh_account"
	case TaskRefreshOrders:
		return "refresh_orders"
	case TaskChase:
		return "chase"
	}
	return fmt.Sprintf("TaskType(%d)", int(t))
}

// Task is a queued effectful action. SeatVersion zero marks tasks not bound to a seat.
type Task struct {
	Type        TaskType
	DedupeKey   string
	Monitor     string
	Direction   Direction
	Symbol      string
	SeatVersion uint64
	Payload     any
}

// Seat returns the seat the task was created for.
func (t Task) Seat() SeatKey { return SeatKey{Monitor: t.Monitor, Direction: t.Direction} }

// SeatBound reports whether the task must pass a seat-version check before running.
func (t Task) SeatBound() bool { return t.SeatVersion != 0 }
