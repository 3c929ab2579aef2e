package notify

import (
	"context"
	"fmt"
	"strings"
	"warrant_bot/internal/events"
)

// Sink forwards the events an operator cares about to a Notifier off the publishing goroutine.
type Sink struct {
	n  Notifier
	in chan string
}

func NewSink(n Notifier, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	return &Sink{n: n, in: make(chan string, buffer)}
}

// Handle implements events.Sink. Messages are dropped when the buffer is full.
func (s *Sink) Handle(e events.Event) {
	msg, ok := Format(e)
	if !ok {
		return
	}
	select {
	case s.in <- msg:
	default:
	}
}

// Run delivers messages until ctx ends.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.in:
			s.n.Send(msg)
		}
	}
}

// Format renders an event as a chat message; false for kinds that are not notified.
func Format(e events.Event) (string, bool) {
	var b strings.Builder
	switch e.Kind {
	case events.SeatSwitched:
		fmt.Fprintf(&b, "🔁 %s seat %s -> %s (v%d)", e.Monitor, field(e, "seat"), e.Symbol, e.Version)
	case events.SeatCleared:
		fmt.Fprintf(&b, "⏹ %s seat %s cleared: %s", e.Monitor, field(e, "seat"), e.Reason)
	case events.OrderSubmitted:
		fmt.Fprintf(&b, "📤 %s %s %s qty=%s @ %s", e.Action, e.Symbol, e.OrderID, field(e, "quantity"), field(e, "price"))
	case events.OrderFailed:
		fmt.Fprintf(&b, "❗️ %s %s order failed: %s", e.Action, e.Symbol, e.Reason)
	case events.RiskRejected:
		fmt.Fprintf(&b, "🛑 %s %s rejected: %s", e.Action, e.Symbol, e.Reason)
		if d := field(e, "detail"); d != "" {
			fmt.Fprintf(&b, " (%s)", d)
		}
	case events.Liquidation:
		fmt.Fprintf(&b, "⏰ liquidating %s: %s", e.Symbol, e.Reason)
	default:
		return "", false
	}
	return b.String(), true
}

func field(e events.Event, key string) string {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
