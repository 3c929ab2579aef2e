package notify

import (
	"context"
	"sync"
	"testing"
	"time"
	"warrant_bot/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captured) Send(msg string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *captured) Sendf(string, ...any) {}

func (c *captured) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestFormat(t *testing.T) {
	msg, ok := Format(events.Event{
		Kind: events.RiskRejected, Action: "BUY_LONG", Symbol: "12345.HK",
		Reason: "daily_loss", Fields: map[string]any{"detail": "pnl=-3000"},
	})
	require.True(t, ok)
	assert.Contains(t, msg, "daily_loss")
	assert.Contains(t, msg, "pnl=-3000")

	_, ok = Format(events.Event{Kind: events.SignalGenerated})
	assert.False(t, ok)
}

func TestSinkDeliversNotifiedKinds(t *testing.T) {
	c := &captured{}
	s := NewSink(c, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Handle(events.Event{Kind: events.StaleDiscarded})
	s.Handle(events.Event{Kind: events.SeatSwitched, Monitor: "HSI.HK", Symbol: "54321.HK", Version: 2,
		Fields: map[string]any{"seat": "LONG"}})

	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, c.all()[0], "54321.HK")
}
