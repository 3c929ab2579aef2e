package service

import (
	"sync/atomic"
	"time"
)

// State is what the probes report. Every field is safe for concurrent use.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	reconnects   atomic.Int64
	lastTickUnix atomic.Int64 // unix seconds
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// SetWSConnected records the quote stream state and counts reconnects.
func (s *State) SetWSConnected(v bool) {
	if prev := s.wsConnected.Swap(v); v && !prev {
		s.reconnects.Add(1)
	}
}

func (s *State) WSConnected() bool { return s.wsConnected.Load() }
func (s *State) Reconnects() int64 { return s.reconnects.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// Stale reports whether no tick finished within maxAge. A process that never ticked is stale.
func (s *State) Stale(now time.Time, maxAge time.Duration) bool {
	t := s.LastTick()
	return t.IsZero() || now.Sub(t) > maxAge
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
