package runner

import (
	"sync"
	"time"
	"warrant_bot/internal/indicator"
	"warrant_bot/internal/models"

	"github.com/shopspring/decimal"
)

// state holds the eventually-consistent broker mirrors and per-tick caches.
type state struct {
	mu sync.RWMutex

	account   *models.AccountSnapshot
	positions []models.Position
	accountAt time.Time
	ordersAt  time.Time
	tickAt    time.Time

	underlying map[string]float64            // monitor -> last price
	checkedAt  map[models.SeatKey]float64    // underlying price at the last distance check
	snaps      map[string]indicator.Snapshot // monitor -> last computed snapshot
	candlesAt  map[string]time.Time
	lotSizes   map[string]int64
}

func newState() *state {
	return &state{
		underlying: make(map[string]float64),
		checkedAt:  make(map[models.SeatKey]float64),
		snaps:      make(map[string]indicator.Snapshot),
		candlesAt:  make(map[string]time.Time),
		lotSizes:   make(map[string]int64),
	}
}

// setAccount stores whatever arrived; with nothing new the refresh stays due.
func (s *state) setAccount(a *models.AccountSnapshot, ps []models.Position, at time.Time) {
	if a == nil && ps == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a != nil {
		cp := *a
		cp.FetchedAt = at
		s.account = &cp
	}
	if ps != nil {
		s.positions = append([]models.Position(nil), ps...)
	}
	s.accountAt = at
}

func (s *state) snapshot() (*models.AccountSnapshot, []models.Position) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var a *models.AccountSnapshot
	if s.account != nil {
		cp := *s.account
		a = &cp
	}
	return a, append([]models.Position(nil), s.positions...)
}

// held is the sellable quantity of symbol, falling back to the total when the
// broker does not report availability.
func (s *state) held(symbol string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.Symbol != symbol {
			continue
		}
		if p.AvailableQuantity.IsPositive() {
			return p.AvailableQuantity
		}
		if p.Quantity.IsPositive() {
			return p.Quantity
		}
	}
	return decimal.Zero
}

func (s *state) accountAge(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accountAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.accountAt)
}

func (s *state) touchOrders(now time.Time) {
	s.mu.Lock()
	s.ordersAt = now
	s.mu.Unlock()
}

func (s *state) ordersAge(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ordersAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.ordersAt)
}

func (s *state) touchTick(now time.Time) {
	s.mu.Lock()
	s.tickAt = now
	s.mu.Unlock()
}

func (s *state) lastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickAt
}

func (s *state) setUnderlying(monitor string, px float64) {
	s.mu.Lock()
	s.underlying[monitor] = px
	s.mu.Unlock()
}

func (s *state) underlyingPrice(monitor string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	px, ok := s.underlying[monitor]
	return px, ok
}

// moved reports whether the underlying moved at least pct since the last
// distance check of key. A seat never checked has always moved.
func (s *state) moved(key models.SeatKey, px, pct float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, ok := s.checkedAt[key]
	if !ok || last <= 0 {
		return true
	}
	d := (px - last) / last * 100
	if d < 0 {
		d = -d
	}
	return d >= pct
}

func (s *state) markChecked(key models.SeatKey, px float64) {
	s.mu.Lock()
	s.checkedAt[key] = px
	s.mu.Unlock()
}

func (s *state) forgetChecked(key models.SeatKey) {
	s.mu.Lock()
	delete(s.checkedAt, key)
	s.mu.Unlock()
}

func (s *state) cachedSnapshot(monitor string, now time.Time, every time.Duration) (indicator.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[monitor]
	if !ok || every <= 0 || now.Sub(s.candlesAt[monitor]) >= every {
		return nil, false
	}
	return snap, true
}

func (s *state) setSnapshot(monitor string, snap indicator.Snapshot, now time.Time) {
	s.mu.Lock()
	s.snaps[monitor] = snap
	s.candlesAt[monitor] = now
	s.mu.Unlock()
}

func (s *state) setLotSize(symbol string, lot int64) {
	if lot <= 0 {
		return
	}
	s.mu.Lock()
	s.lotSizes[symbol] = lot
	s.mu.Unlock()
}

func (s *state) lotSize(symbol string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lotSizes[symbol]
}
