// Package seat owns the mapping from (monitor, direction) to the warrant currently traded for it.
package seat

import (
	"sort"
	"sync"
	"time"
	"warrant_bot/internal/models"
)

// ClearHook runs synchronously after a seat lost its symbol and before any new
// symbol is bound. old is the seat as it was before the clear. Hooks must not
// call Bind or Clear.
type ClearHook func(key models.SeatKey, old models.Seat, version uint64, reason string)

type Registry struct {
	write sync.Mutex // serialises Bind/Clear including their hooks

	mu    sync.RWMutex
	seats map[models.SeatKey]*models.Seat
	hooks []ClearHook
	now   func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{seats: make(map[models.SeatKey]*models.Seat), now: now}
}

// OnClear registers a hook. Register everything before the engine starts.
func (r *Registry) OnClear(h ClearHook) {
	r.mu.Lock()
	r.hooks = append(r.hooks, h)
	r.mu.Unlock()
}

// Add creates an EMPTY seat for key if it does not exist.
func (r *Registry) Add(key models.SeatKey) {
	r.mu.Lock()
	r.get(key)
	r.mu.Unlock()
}

// get must be called with mu held for writing.
func (r *Registry) get(key models.SeatKey) *models.Seat {
	s, ok := r.seats[key]
	if !ok {
		s = &models.Seat{Status: models.SeatEmpty}
		r.seats[key] = s
	}
	return s
}

func (r *Registry) Seat(monitor string, dir models.Direction) models.Seat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.seats[models.SeatKey{Monitor: monitor, Direction: dir}]; ok {
		return *s
	}
	return models.Seat{Status: models.SeatEmpty}
}

func (r *Registry) Version(key models.SeatKey) uint64 {
	return r.Seat(key.Monitor, key.Direction).Version
}

// Current reports whether version is still the live version of key.
func (r *Registry) Current(key models.SeatKey, version uint64) bool {
	return r.Version(key) == version
}

// Bind assigns symbol to the seat and returns the new version. A seat bound to
// another symbol is cleared first, hooks included. Rebinding the symbol already
// bound is a no-op returning the current version.
func (r *Registry) Bind(monitor string, dir models.Direction, symbol string, callPrice float64) uint64 {
	key := models.SeatKey{Monitor: monitor, Direction: dir}
	r.write.Lock()
	defer r.write.Unlock()

	r.mu.RLock()
	cur := r.seats[key]
	var old models.Seat
	if cur != nil {
		old = *cur
	}
	r.mu.RUnlock()

	if old.Bound() && old.Symbol == symbol {
		if callPrice > 0 && callPrice != old.CallPrice {
			r.mu.Lock()
			r.get(key).CallPrice = callPrice
			r.mu.Unlock()
		}
		return old.Version
	}
	if old.Bound() {
		r.clearLocked(key, "switch to "+symbol)
	}

	r.mu.Lock()
	s := r.get(key)
	s.Version++
	s.Symbol = symbol
	s.Status = models.SeatReady
	s.CallPrice = callPrice
	s.LastSwitchAt = r.now()
	v := s.Version
	r.mu.Unlock()
	return v
}

// Clear empties the seat, runs the clear hooks and returns the new version.
func (r *Registry) Clear(monitor string, dir models.Direction, reason string) uint64 {
	r.write.Lock()
	defer r.write.Unlock()
	return r.clearLocked(models.SeatKey{Monitor: monitor, Direction: dir}, reason)
}

func (r *Registry) clearLocked(key models.SeatKey, reason string) uint64 {
	r.mu.Lock()
	s := r.get(key)
	old := *s
	s.Version++
	s.Symbol = ""
	s.Status = models.SeatEmpty
	s.CallPrice = 0
	if old.Symbol != "" {
		s.LastSwitchAt = r.now()
	}
	v := s.Version
	hooks := append([]ClearHook(nil), r.hooks...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(key, old, v, reason)
	}
	return v
}

// MarkSearching flags an unbound seat as looking for a candidate. It does not change the version.
func (r *Registry) MarkSearching(monitor string, dir models.Direction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(models.SeatKey{Monitor: monitor, Direction: dir})
	if s.Status == models.SeatReady {
		return false
	}
	s.Status = models.SeatSearching
	s.LastSearchAt = r.now()
	return true
}

// TouchSearch records a search attempt without touching status or version.
func (r *Registry) TouchSearch(monitor string, dir models.Direction) {
	r.mu.Lock()
	r.get(models.SeatKey{Monitor: monitor, Direction: dir}).LastSearchAt = r.now()
	r.mu.Unlock()
}

type Entry struct {
	Key  models.SeatKey
	Seat models.Seat
}

// Snapshot returns every seat ordered by monitor then direction.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.seats))
	for k, s := range r.seats {
		out = append(out, Entry{Key: k, Seat: *s})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Monitor != out[j].Key.Monitor {
			return out[i].Key.Monitor < out[j].Key.Monitor
		}
		return out[i].Key.Direction < out[j].Key.Direction
	})
	return out
}

// Lookup finds the seat currently bound to symbol.
func (r *Registry) Lookup(symbol string) (models.SeatKey, models.Seat, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, s := range r.seats {
		if s.Bound() && s.Symbol == symbol {
			return k, *s, true
		}
	}
	return models.SeatKey{}, models.Seat{}, false
}
