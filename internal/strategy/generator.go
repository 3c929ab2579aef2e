package strategy

import (
	"fmt"
	"time"
	"warrant_bot/internal/indicator"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
)

// Generator evaluates one monitor's rules against a snapshot.
type Generator struct {
	monitor string
	rules   map[models.Action]Rule
	verify  config.Verify
}

func NewGenerator(m config.Monitor) (*Generator, error) {
	g := &Generator{monitor: m.Symbol, rules: make(map[models.Action]Rule), verify: m.Verify}
	for name, r := range m.Signals {
		a, err := models.ParseAction(name)
		if err != nil {
			return nil, fmt.Errorf("monitor %s: %w", m.Symbol, err)
		}
		rule, err := ParseRule(r)
		if err != nil {
			return nil, fmt.Errorf("monitor %s %s: %w", m.Symbol, name, err)
		}
		g.rules[a] = rule
	}
	if len(m.Verify.Indicators) != 2 {
		return nil, fmt.Errorf("monitor %s: verify needs two indicators, got %d", m.Symbol, len(m.Verify.Indicators))
	}
	return g, nil
}

type Candidate struct {
	Action models.Action
	Reason string
}

// Evaluate returns every action whose rule fires, in declaration order.
func (g *Generator) Evaluate(snap indicator.Snapshot) []Candidate {
	var out []Candidate
	for _, a := range models.Actions {
		r, ok := g.rules[a]
		if !ok {
			continue
		}
		if hit, reason := r.Match(snap); hit {
			out = append(out, Candidate{Action: a, Reason: reason})
		}
	}
	return out
}

// SeatView is the read side of the seat registry.
type SeatView interface {
	Seat(monitor string, dir models.Direction) models.Seat
}

// Pipeline routes candidates: exits become immediate signals, entries wait in the verifier.
type Pipeline struct {
	gens     map[string]*Generator
	verifier *Verifier
}

func NewPipeline(monitors []config.Monitor, v *Verifier) (*Pipeline, error) {
	p := &Pipeline{gens: make(map[string]*Generator, len(monitors)), verifier: v}
	for _, m := range monitors {
		g, err := NewGenerator(m)
		if err != nil {
			return nil, err
		}
		p.gens[m.Symbol] = g
	}
	return p, nil
}

func (p *Pipeline) Verifier() *Verifier { return p.verifier }

type Evaluation struct {
	Immediate []models.Signal
	Delayed   []models.Signal
	// Skipped lists candidates dropped before becoming signals, with the reason.
	Skipped []string
}

// Evaluate turns one monitor snapshot into signals against the current seats and
// records a sample for that monitor's pending entries.
func (p *Pipeline) Evaluate(monitor string, snap indicator.Snapshot, seats SeatView, now time.Time) Evaluation {
	var ev Evaluation
	g, ok := p.gens[monitor]
	if !ok || len(snap) == 0 {
		return ev
	}
	for _, c := range g.Evaluate(snap) {
		seat := seats.Seat(monitor, c.Action.Direction())
		if !seat.Bound() {
			ev.Skipped = append(ev.Skipped, fmt.Sprintf("%s: seat %s", c.Action, seat.Status))
			continue
		}
		sig := models.Signal{
			Monitor:     monitor,
			Symbol:      seat.Symbol,
			Action:      c.Action,
			Reason:      c.Reason,
			CreatedAt:   now,
			TriggerTime: now,
			SeatVersion: seat.Version,
			Snapshot:    snap,
		}
		if !c.Action.IsBuy() {
			ev.Immediate = append(ev.Immediate, sig)
			continue
		}
		if pending, ok := p.verifier.Add(sig, snap, g.verify, now); ok {
			ev.Delayed = append(ev.Delayed, pending)
		} else {
			ev.Skipped = append(ev.Skipped, fmt.Sprintf("%s: already pending or no baseline", c.Action))
		}
	}
	p.verifier.Sample(monitor, snap, now)
	return ev
}
