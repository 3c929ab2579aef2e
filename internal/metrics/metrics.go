// Package metrics exposes engine events as prometheus series.
package metrics

import (
	"fmt"
	"net/http"
	"warrant_bot/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warrant_bot"

type Metrics struct {
	reg *prometheus.Registry

	Signals        *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	RiskRejections *prometheus.CounterVec
	StaleDiscards  *prometheus.CounterVec
	ChaseActions   *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec
	SeatVersion    *prometheus.GaugeVec
	Ticks          prometheus.Counter
}

// New registers the series on a private registry so tests can build many instances.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "signals_total", Help: "Signals by action and outcome"},
			[]string{"action", "kind"},
		),
		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "orders_total", Help: "Orders submitted or failed by side"},
			[]string{"side", "result"},
		),
		RiskRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "risk_rejections_total", Help: "Buys refused by the risk gate"},
			[]string{"reason"},
		),
		StaleDiscards: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "stale_discards_total", Help: "Tasks dropped on seat version mismatch"},
			[]string{"queue"},
		),
		ChaseActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "chase_actions_total", Help: "Order chase attempts by outcome"},
			[]string{"outcome"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "queue_depth", Help: "Tasks waiting per queue"},
			[]string{"queue"},
		),
		SeatVersion: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "seat_version", Help: "Current version per seat"},
			[]string{"seat"},
		),
		Ticks: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "ticks_total", Help: "Engine ticks processed"},
		),
	}
	m.reg.MustRegister(
		m.Signals, m.Orders, m.RiskRejections, m.StaleDiscards,
		m.ChaseActions, m.QueueDepth, m.SeatVersion, m.Ticks,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SetQueueDepth(queue string, n int) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(n))
}

// Handle implements events.Sink.
func (m *Metrics) Handle(e events.Event) {
	switch e.Kind {
	case events.SignalGenerated:
		m.Signals.WithLabelValues(e.Action, "generated").Inc()
	case events.SignalConfirmed:
		m.Signals.WithLabelValues(e.Action, "confirmed").Inc()
	case events.SignalDiscarded:
		m.Signals.WithLabelValues(e.Action, "discarded").Inc()
	case events.OrderSubmitted:
		m.Orders.WithLabelValues(field(e, "side"), "submitted").Inc()
	case events.OrderFailed:
		m.Orders.WithLabelValues(field(e, "side"), "failed").Inc()
	case events.RiskRejected:
		m.RiskRejections.WithLabelValues(e.Reason).Inc()
	case events.StaleDiscarded:
		m.StaleDiscards.WithLabelValues(field(e, "queue")).Inc()
	case events.ChaseAttempt:
		m.ChaseActions.WithLabelValues("attempt").Inc()
	case events.ChaseSuccess:
		m.ChaseActions.WithLabelValues("success").Inc()
	case events.ChaseRefused:
		m.ChaseActions.WithLabelValues("refused_" + e.Reason).Inc()
	case events.SeatSwitched, events.SeatCleared:
		if seat := field(e, "seat"); seat != "" {
			m.SeatVersion.WithLabelValues(seat).Set(float64(e.Version))
		}
	}
}

func field(e events.Event, key string) string {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
