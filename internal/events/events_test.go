package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestBusStampsAndFansOut(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b := NewBus(func() time.Time { return at })
	var a, c Recorder
	b.Subscribe(&a)
	b.Subscribe(&c)

	b.Publish(Event{Kind: SeatSwitched, Monitor: "HSI.HK", Symbol: "12345.HK", Version: 2})

	require.Len(t, a.Events(), 1)
	e := a.Events()[0]
	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, at, e.At)
	assert.Equal(t, a.Events(), c.Events())
	assert.Equal(t, 1, a.Count(SeatSwitched))
}

func TestLogSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := LogSink(zap.New(core))
	s.Handle(Event{Kind: RiskRejected, Symbol: "12345.HK", Reason: "daily_loss"})
	s.Handle(Event{Kind: OrderSubmitted, OrderID: "1"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "daily_loss", entries[0].ContextMap()["reason"])
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
}
