package market

import (
	"testing"
	"time"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClock(t *testing.T) *Clock {
	t.Helper()
	c, err := NewClock(config.Market{
		Timezone: "Asia/Hong_Kong",
		Sessions: []config.Session{
			{Open: "09:30", Close: "12:00"},
			{Open: "13:00", Close: "16:00"},
		},
		HalfDayClose:     "12:00",
		CloseBuySuppress: 15 * time.Minute,
		CloseLiquidate:   5 * time.Minute,
	})
	require.NoError(t, err)
	return c
}

func at(c *Clock, hhmm string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02 15:04", "2026-03-02 "+hhmm, c.Location())
	return t
}

func TestInSession(t *testing.T) {
	c := newClock(t)
	assert.False(t, c.InSession(at(c, "09:29")))
	assert.True(t, c.InSession(at(c, "09:30")))
	assert.False(t, c.InSession(at(c, "12:30")))
	assert.True(t, c.InSession(at(c, "15:59")))
	assert.False(t, c.InSession(at(c, "16:00")))
}

func TestCloseWindows(t *testing.T) {
	c := newClock(t)
	assert.False(t, c.InBuySuppress(at(c, "15:44")))
	assert.True(t, c.InBuySuppress(at(c, "15:45")))
	assert.False(t, c.InLiquidation(at(c, "15:54")))
	assert.True(t, c.InLiquidation(at(c, "15:55")))
	// lunch break is not the close
	assert.False(t, c.InBuySuppress(at(c, "11:50")))
}

func TestHalfDay(t *testing.T) {
	c := newClock(t)
	now := at(c, "11:50")
	c.SetDay(now, models.TradingDay{IsTradingDay: true, IsHalfDay: true})

	day, fresh := c.Day(now)
	assert.True(t, fresh)
	assert.True(t, day.IsHalfDay)
	assert.Equal(t, at(c, "12:00"), c.CloseAt(now))
	assert.True(t, c.InBuySuppress(now))
	assert.False(t, c.InSession(at(c, "13:30")))
}

func TestHoliday(t *testing.T) {
	c := newClock(t)
	now := at(c, "10:00")
	c.SetDay(now, models.TradingDay{})
	assert.False(t, c.InSession(now))
	assert.False(t, c.InBuySuppress(at(c, "15:50")))

	_, fresh := c.Day(now.Add(24 * time.Hour))
	assert.False(t, fresh)
}

func TestNewClockRejectsBadSession(t *testing.T) {
	_, err := NewClock(config.Market{Timezone: "UTC", Sessions: []config.Session{{Open: "12:00", Close: "09:00"}}})
	assert.Error(t, err)
}
