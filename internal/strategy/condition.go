// Package strategy turns indicator snapshots into trade signals and confirms delayed entries.
package strategy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"warrant_bot/internal/indicator"
	"warrant_bot/internal/modules/config"
)

var condRe = regexp.MustCompile(`^([A-Za-z]+[0-9]*)\s*(<=|>=|<|>)\s*(-?[0-9]+(?:\.[0-9]+)?)$`)

// Condition is one threshold test such as "RSI6<20".
type Condition struct {
	Indicator string
	Op        string
	Value     float64
}

func ParseCondition(s string) (Condition, error) {
	m := condRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Condition{}, fmt.Errorf("bad condition %q", s)
	}
	v, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("bad condition %q: %w", s, err)
	}
	return Condition{Indicator: strings.ToUpper(m[1]), Op: m[2], Value: v}, nil
}

func (c Condition) String() string {
	return c.Indicator + c.Op + strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// Eval is false when the indicator is missing from the snapshot.
func (c Condition) Eval(snap indicator.Snapshot) bool {
	v, ok := snap.Get(c.Indicator)
	if !ok {
		return false
	}
	switch c.Op {
	case "<":
		return v < c.Value
	case "<=":
		return v <= c.Value
	case ">":
		return v > c.Value
	case ">=":
		return v >= c.Value
	}
	return false
}

// Rule fires once at least MinSatisfied of its conditions hold.
type Rule struct {
	Conditions   []Condition
	MinSatisfied int
}

func ParseRule(r config.SignalRule) (Rule, error) {
	out := Rule{MinSatisfied: r.MinSatisfied}
	for _, s := range r.Conditions {
		c, err := ParseCondition(s)
		if err != nil {
			return Rule{}, err
		}
		out.Conditions = append(out.Conditions, c)
	}
	if len(out.Conditions) == 0 {
		return Rule{}, fmt.Errorf("rule has no conditions")
	}
	if out.MinSatisfied <= 0 || out.MinSatisfied > len(out.Conditions) {
		out.MinSatisfied = len(out.Conditions)
	}
	return out, nil
}

// Match returns whether the rule fires and the satisfied conditions as a reason.
func (r Rule) Match(snap indicator.Snapshot) (bool, string) {
	var hit []string
	for _, c := range r.Conditions {
		if c.Eval(snap) {
			v, _ := snap.Get(c.Indicator)
			hit = append(hit, fmt.Sprintf("%s(%.2f)", c, v))
		}
	}
	if len(hit) < r.MinSatisfied {
		return false, ""
	}
	return true, strings.Join(hit, ",")
}
