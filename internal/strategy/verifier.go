package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"warrant_bot/internal/indicator"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
)

const (
	historyWindow  = 2 * time.Minute
	sampleInterval = time.Second
)

type State int

const (
	StateCreated State = iota
	StateSampling
	StateConfirmed
	StateExpired
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateSampling:
		return "SAMPLING"
	case StateConfirmed:
		return "CONFIRMED"
	case StateExpired:
		return "EXPIRED"
	case StateRejected:
		return "REJECTED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Sample struct {
	At     time.Time
	Values map[string]float64
}

// Pending is an entry signal waiting for its confirmation time.
type Pending struct {
	Signal     models.Signal
	Indicators [2]string
	Baseline   [2]float64
	Tolerance  time.Duration
	Samples    []Sample
	State      State
}

// Outcome is the verdict on a pending entry once its trigger time passed.
type Outcome struct {
	Signal models.Signal
	State  State
	Reason string
	// Values are the sampled confirming indicators, zero when expired.
	Values [2]float64
}

type pendingKey struct {
	monitor string
	action  models.Action
}

// Verifier holds at most one pending entry per (monitor, action).
type Verifier struct {
	mu      sync.Mutex
	pending map[pendingKey]*Pending
}

func NewVerifier() *Verifier {
	return &Verifier{pending: make(map[pendingKey]*Pending)}
}

// Add records sig with the baseline of the two confirming indicators taken from
// snap. It returns the signal with its trigger time set, or false when the same
// action is already pending or the baseline is incomplete.
func (v *Verifier) Add(sig models.Signal, snap indicator.Snapshot, cfg config.Verify, now time.Time) (models.Signal, bool) {
	if len(cfg.Indicators) != 2 {
		return sig, false
	}
	p := &Pending{
		Indicators: [2]string{cfg.Indicators[0], cfg.Indicators[1]},
		Tolerance:  cfg.Tolerance,
		State:      StateCreated,
	}
	for i, name := range p.Indicators {
		val, ok := snap.Get(name)
		if !ok {
			return sig, false
		}
		p.Baseline[i] = val
	}
	sig.CreatedAt = now
	sig.TriggerTime = now.Add(cfg.Delay)
	p.Signal = sig

	key := pendingKey{monitor: sig.Monitor, action: sig.Action}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, dup := v.pending[key]; dup {
		return sig, false
	}
	v.pending[key] = p
	return sig, true
}

// Sample appends the monitor's current values to each of its pending entries,
// at most once per second, keeping two minutes of history.
func (v *Verifier) Sample(monitor string, snap indicator.Snapshot, now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k, p := range v.pending {
		if k.monitor != monitor {
			continue
		}
		if n := len(p.Samples); n > 0 && now.Sub(p.Samples[n-1].At) < sampleInterval {
			continue
		}
		vals := make(map[string]float64, 2)
		for _, name := range p.Indicators {
			if x, ok := snap.Get(name); ok {
				vals[name] = x
			}
		}
		if len(vals) < 2 {
			continue
		}
		p.Samples = append(p.Samples, Sample{At: now, Values: vals})
		p.State = StateSampling

		cut := now.Add(-historyWindow)
		i := 0
		for i < len(p.Samples) && p.Samples[i].At.Before(cut) {
			i++
		}
		p.Samples = p.Samples[i:]
	}
}

// Due removes and judges every entry whose trigger time is at or before now.
func (v *Verifier) Due(now time.Time) []Outcome {
	v.mu.Lock()
	var due []*Pending
	for k, p := range v.pending {
		if !now.Before(p.Signal.TriggerTime) {
			due = append(due, p)
			delete(v.pending, k)
		}
	}
	v.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].Signal.TriggerTime.Before(due[j].Signal.TriggerTime)
	})
	out := make([]Outcome, 0, len(due))
	for _, p := range due {
		out = append(out, judge(p))
	}
	return out
}

func nearest(samples []Sample, target time.Time, tol time.Duration) (Sample, bool) {
	var best Sample
	var bestGap time.Duration = -1
	for _, s := range samples {
		gap := s.At.Sub(target)
		if gap < 0 {
			gap = -gap
		}
		if gap > tol {
			continue
		}
		if bestGap < 0 || gap < bestGap {
			best, bestGap = s, gap
		}
	}
	return best, bestGap >= 0
}

func judge(p *Pending) Outcome {
	o := Outcome{Signal: p.Signal}
	s, ok := nearest(p.Samples, p.Signal.TriggerTime, p.Tolerance)
	if !ok {
		o.State = StateExpired
		o.Reason = fmt.Sprintf("no sample within %s of %s", p.Tolerance, p.Signal.TriggerTime.Format("15:04:05"))
		return o
	}

	up := p.Signal.Action.Direction() == models.Long
	var failed []string
	for i, name := range p.Indicators {
		cur := s.Values[name]
		o.Values[i] = cur
		favourable := cur > p.Baseline[i]
		if !up {
			favourable = cur < p.Baseline[i]
		}
		if !favourable {
			failed = append(failed, fmt.Sprintf("%s %.3f->%.3f", name, p.Baseline[i], cur))
		}
	}
	if len(failed) > 0 {
		o.State = StateRejected
		o.Reason = "not confirmed: " + strings.Join(failed, ", ")
		return o
	}
	o.State = StateConfirmed
	o.Reason = fmt.Sprintf("%s %.3f->%.3f, %s %.3f->%.3f",
		p.Indicators[0], p.Baseline[0], o.Values[0], p.Indicators[1], p.Baseline[1], o.Values[1])
	return o
}

// DropWhere removes pending entries matching fn and returns how many were dropped.
func (v *Verifier) DropWhere(fn func(models.Signal) bool) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for k, p := range v.pending {
		if fn(p.Signal) {
			delete(v.pending, k)
			n++
		}
	}
	return n
}

func (v *Verifier) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}

// Get returns a copy of the pending entry for monitor and action.
func (v *Verifier) Get(monitor string, action models.Action) (Pending, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.pending[pendingKey{monitor: monitor, action: action}]
	if !ok {
		return Pending{}, false
	}
	cp := *p
	cp.Samples = append([]Sample(nil), p.Samples...)
	return cp, true
}
