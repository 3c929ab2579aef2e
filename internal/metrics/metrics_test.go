package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"warrant_bot/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCountsEvents(t *testing.T) {
	m := New()
	m.Handle(events.Event{Kind: events.RiskRejected, Reason: "daily_loss"})
	m.Handle(events.Event{Kind: events.RiskRejected, Reason: "daily_loss"})
	m.Handle(events.Event{Kind: events.OrderSubmitted, Fields: map[string]any{"side": "BUY"}})
	m.Handle(events.Event{Kind: events.StaleDiscarded, Fields: map[string]any{"queue": "buy"}})
	m.Handle(events.Event{Kind: events.SeatSwitched, Version: 4, Fields: map[string]any{"seat": "HSI.HK:LONG"}})
	m.Handle(events.Event{Kind: events.ChaseRefused, Reason: "cooldown"})

	assert.Equal(t, 2.0, value(t, m.RiskRejections.WithLabelValues("daily_loss")))
	assert.Equal(t, 1.0, value(t, m.Orders.WithLabelValues("BUY", "submitted")))
	assert.Equal(t, 1.0, value(t, m.StaleDiscards.WithLabelValues("buy")))
	assert.Equal(t, 4.0, value(t, m.SeatVersion.WithLabelValues("HSI.HK:LONG")))
	assert.Equal(t, 1.0, value(t, m.ChaseActions.WithLabelValues("refused_cooldown")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.SetQueueDepth("sell", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `warrant_bot_queue_depth{queue="sell"} 3`))
}

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return 0
}
