package seat

import (
	"math/rand"
	"testing"
	"time"
	"warrant_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hsiLong = models.SeatKey{Monitor: "HSI.HK", Direction: models.Long}

func fixedNow() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }

func TestBindClearVersions(t *testing.T) {
	r := NewRegistry(fixedNow)
	r.Add(hsiLong)
	s := r.Seat("HSI.HK", models.Long)
	assert.Equal(t, models.SeatEmpty, s.Status)
	assert.Zero(t, s.Version)

	v1 := r.Bind("HSI.HK", models.Long, "12345.HK", 20000)
	assert.Equal(t, uint64(1), v1)
	s = r.Seat("HSI.HK", models.Long)
	assert.True(t, s.Bound())
	assert.Equal(t, 20000.0, s.CallPrice)
	assert.Equal(t, fixedNow(), s.LastSwitchAt)

	v2 := r.Clear("HSI.HK", models.Long, "distance")
	assert.Equal(t, uint64(2), v2)
	assert.False(t, r.Seat("HSI.HK", models.Long).Bound())
}

func TestVersionStrictlyIncreasing(t *testing.T) {
	r := NewRegistry(nil)
	rng := rand.New(rand.NewSource(7))
	syms := []string{"A.HK", "B.HK", "C.HK"}

	var last uint64
	for i := 0; i < 500; i++ {
		var v uint64
		if rng.Intn(3) == 0 {
			v = r.Clear("HSI.HK", models.Long, "test")
		} else {
			sym := syms[rng.Intn(len(syms))]
			if cur := r.Seat("HSI.HK", models.Long); cur.Bound() && cur.Symbol == sym {
				continue
			}
			v = r.Bind("HSI.HK", models.Long, sym, 0)
		}
		require.Greater(t, v, last)
		last = v
	}
}

func TestBindOverReadyRunsClearHooksFirst(t *testing.T) {
	r := NewRegistry(fixedNow)
	var seen []string
	r.OnClear(func(key models.SeatKey, old models.Seat, version uint64, reason string) {
		// the new symbol must not be live yet
		cur := r.Seat(key.Monitor, key.Direction)
		assert.Equal(t, models.SeatEmpty, cur.Status)
		assert.Equal(t, version, cur.Version)
		seen = append(seen, old.Symbol+"|"+reason)
	})

	r.Bind("HSI.HK", models.Long, "A.HK", 0)
	assert.Empty(t, seen, "binding an empty seat clears nothing")

	v := r.Bind("HSI.HK", models.Long, "B.HK", 0)
	assert.Equal(t, uint64(3), v, "clear then bind bump once each")
	assert.Equal(t, []string{"A.HK|switch to B.HK"}, seen)
	assert.Equal(t, "B.HK", r.Seat("HSI.HK", models.Long).Symbol)
}

func TestRebindSameSymbolKeepsVersion(t *testing.T) {
	r := NewRegistry(nil)
	v := r.Bind("HSI.HK", models.Short, "B.HK", 26000)
	assert.Equal(t, v, r.Bind("HSI.HK", models.Short, "B.HK", 26100))
	assert.Equal(t, 26100.0, r.Seat("HSI.HK", models.Short).CallPrice)
}

func TestStaleVersionAfterClear(t *testing.T) {
	r := NewRegistry(nil)
	v := r.Bind("HSI.HK", models.Long, "A.HK", 0)
	assert.True(t, r.Current(hsiLong, v))
	r.Clear("HSI.HK", models.Long, "test")
	assert.False(t, r.Current(hsiLong, v))
}

func TestSearchingAndSnapshot(t *testing.T) {
	r := NewRegistry(fixedNow)
	assert.True(t, r.MarkSearching("HSI.HK", models.Long))
	s := r.Seat("HSI.HK", models.Long)
	assert.Equal(t, models.SeatSearching, s.Status)
	assert.Zero(t, s.Version)

	r.Bind("HSI.HK", models.Short, "B.HK", 0)
	assert.False(t, r.MarkSearching("HSI.HK", models.Short))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, models.Long, snap[0].Key.Direction)
	assert.Equal(t, models.Short, snap[1].Key.Direction)

	key, _, ok := r.Lookup("B.HK")
	assert.True(t, ok)
	assert.Equal(t, models.Short, key.Direction)
	_, _, ok = r.Lookup("A.HK")
	assert.False(t, ok)
}
