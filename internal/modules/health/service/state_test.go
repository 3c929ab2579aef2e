package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectsCountRisingEdges(t *testing.T) {
	s := NewState()
	s.SetWSConnected(true)
	s.SetWSConnected(true)
	s.SetWSConnected(false)
	s.SetWSConnected(true)

	assert.True(t, s.WSConnected())
	assert.Equal(t, int64(2), s.Reconnects())
}

func TestStale(t *testing.T) {
	s := NewState()
	now := time.Unix(1_800_000_000, 0)
	assert.True(t, s.Stale(now, time.Minute), "never ticked")

	s.TouchTick(now.Add(-30 * time.Second))
	assert.False(t, s.Stale(now, time.Minute))
	assert.True(t, s.Stale(now, 10*time.Second))
}
