package market

import (
	"fmt"
	"sync"
	"time"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
)

type window struct {
	open, close time.Duration // offsets from local midnight
}

// Clock answers session questions in exchange-local time. The trading-day
// flags are refreshed once per day from the broker calendar.
type Clock struct {
	loc          *time.Location
	sessions     []window
	halfDayClose time.Duration
	suppress     time.Duration
	liquidate    time.Duration

	mu  sync.RWMutex
	day models.TradingDay
	on  string // yyyy-mm-dd the flags belong to
}

func NewClock(cfg config.Market) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	c := &Clock{
		loc:       loc,
		suppress:  cfg.CloseBuySuppress,
		liquidate: cfg.CloseLiquidate,
		day:       models.TradingDay{IsTradingDay: true},
	}
	for _, s := range cfg.Sessions {
		o, err := parseHHMM(s.Open)
		if err != nil {
			return nil, err
		}
		cl, err := parseHHMM(s.Close)
		if err != nil {
			return nil, err
		}
		if cl <= o {
			return nil, fmt.Errorf("session %s-%s closes before it opens", s.Open, s.Close)
		}
		c.sessions = append(c.sessions, window{open: o, close: cl})
	}
	if len(c.sessions) == 0 {
		return nil, fmt.Errorf("no trading sessions")
	}
	if cfg.HalfDayClose != "" {
		if c.halfDayClose, err = parseHHMM(cfg.HalfDayClose); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parseHHMM(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse session time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (c *Clock) Location() *time.Location { return c.loc }

// SetDay records the calendar flags for the local date of now.
func (c *Clock) SetDay(now time.Time, day models.TradingDay) {
	c.mu.Lock()
	c.day = day
	c.on = now.In(c.loc).Format(time.DateOnly)
	c.mu.Unlock()
}

// Day returns the cached flags and whether they belong to the local date of now.
func (c *Clock) Day(now time.Time) (models.TradingDay, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.day, c.on == now.In(c.loc).Format(time.DateOnly)
}

func (c *Clock) offset(now time.Time) time.Duration {
	l := now.In(c.loc)
	y, m, d := l.Date()
	return l.Sub(time.Date(y, m, d, 0, 0, 0, 0, c.loc))
}

func (c *Clock) windows() []window {
	c.mu.RLock()
	half := c.day.IsHalfDay
	c.mu.RUnlock()
	if !half || c.halfDayClose == 0 {
		return c.sessions
	}
	out := make([]window, 0, len(c.sessions))
	for _, w := range c.sessions {
		if w.open >= c.halfDayClose {
			break
		}
		if w.close > c.halfDayClose {
			w.close = c.halfDayClose
		}
		out = append(out, w)
	}
	return out
}

func (c *Clock) tradingDay() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.day.IsTradingDay
}

// InSession reports whether continuous trading is open at now.
func (c *Clock) InSession(now time.Time) bool {
	if !c.tradingDay() {
		return false
	}
	off := c.offset(now)
	for _, w := range c.windows() {
		if off >= w.open && off < w.close {
			return true
		}
	}
	return false
}

// CloseAt is the final close of the local day containing now.
func (c *Clock) CloseAt(now time.Time) time.Time {
	ws := c.windows()
	l := now.In(c.loc)
	y, m, d := l.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc).Add(ws[len(ws)-1].close)
}

func (c *Clock) untilClose(now time.Time) (time.Duration, bool) {
	if !c.InSession(now) {
		return 0, false
	}
	left := c.CloseAt(now).Sub(now)
	return left, left > 0
}

// InBuySuppress reports whether now is inside the pre-close window where entries are refused.
func (c *Clock) InBuySuppress(now time.Time) bool {
	left, ok := c.untilClose(now)
	return ok && left <= c.suppress
}

// InLiquidation reports whether now is inside the pre-close window where positions are flattened.
func (c *Clock) InLiquidation(now time.Time) bool {
	left, ok := c.untilClose(now)
	return ok && c.liquidate > 0 && left <= c.liquidate
}
