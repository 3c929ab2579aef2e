// Package events is the engine's structured event stream.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	SignalGenerated Kind = "signal_generated"
	SignalConfirmed Kind = "signal_confirmed"
	SignalDiscarded Kind = "signal_discarded"
	OrderSubmitted  Kind = "order_submitted"
	OrderFailed     Kind = "order_failed"
	RiskRejected    Kind = "risk_rejected"
	SeatSwitched    Kind = "seat_switched"
	SeatCleared     Kind = "seat_cleared"
	StaleDiscarded  Kind = "stale_discarded"
	ChaseAttempt    Kind = "chase_attempt"
	ChaseSuccess    Kind = "chase_success"
	ChaseRefused    Kind = "chase_refused"
	Liquidation     Kind = "liquidation"
	EngineState     Kind = "engine_state"
)

type Event struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"kind"`
	At      time.Time      `json:"at"`
	Monitor string         `json:"monitor,omitempty"`
	Symbol  string         `json:"symbol,omitempty"`
	Action  string         `json:"action,omitempty"`
	Version uint64         `json:"version,omitempty"`
	OrderID string         `json:"order_id,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Sink receives every published event. Handle must not block.
type Sink interface {
	Handle(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Handle(e Event) { f(e) }

type Publisher interface {
	Publish(Event)
}

// Bus fans events out to its sinks synchronously, in subscription order.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	now   func() time.Time
}

func NewBus(now func() time.Time) *Bus {
	if now == nil {
		now = time.Now
	}
	return &Bus{now: now}
}

func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Bus) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s.Handle(e)
	}
}

// LogSink writes every event as one structured log line.
func LogSink(log *zap.Logger) Sink {
	return SinkFunc(func(e Event) {
		fields := []zap.Field{
			zap.String("event_id", e.ID),
			zap.String("kind", string(e.Kind)),
		}
		if e.Monitor != "" {
			fields = append(fields, zap.String("monitor", e.Monitor))
		}
		if e.Symbol != "" {
			fields = append(fields, zap.String("symbol", e.Symbol))
		}
		if e.Action != "" {
			fields = append(fields, zap.String("action", e.Action))
		}
		if e.Version != 0 {
			fields = append(fields, zap.Uint64("version", e.Version))
		}
		if e.OrderID != "" {
			fields = append(fields, zap.String("order_id", e.OrderID))
		}
		if e.Reason != "" {
			fields = append(fields, zap.String("reason", e.Reason))
		}
		if len(e.Fields) > 0 {
			fields = append(fields, zap.Any("fields", e.Fields))
		}
		switch e.Kind {
		case RiskRejected, OrderFailed, ChaseRefused:
			log.Warn("event", fields...)
		default:
			log.Info("event", fields...)
		}
	})
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}
