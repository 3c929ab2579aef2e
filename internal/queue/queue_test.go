package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"warrant_bot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func task(key, sym string) models.Task {
	return models.Task{Type: models.TaskRefreshOrders, DedupeKey: key, Symbol: sym}
}

func symbols(ts []models.Task) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Symbol)
	}
	return out
}

func TestPushCoalescesInPlace(t *testing.T) {
	q := New("buy")
	q.Push(task("a", "1"))
	q.Push(task("b", "2"))
	q.Push(task("a", "3"))
	q.Push(task("", "4"))
	q.Push(task("", "5"))
	assert.Equal(t, []string{"3", "2", "4", "5"}, symbols(q.Snapshot()))
}

func TestScheduleLatestMovesToTail(t *testing.T) {
	q := New("aux")
	q.ScheduleLatest(task("a", "1"))
	q.ScheduleLatest(task("b", "2"))
	q.ScheduleLatest(task("a", "3"))
	assert.Equal(t, []string{"2", "3"}, symbols(q.Snapshot()))
}

func TestCancelWhere(t *testing.T) {
	q := New("sell")
	q.Push(task("a", "X"))
	q.Push(task("b", "Y"))
	q.Push(task("c", "X"))
	removed := q.CancelWhere(func(t models.Task) bool { return t.Symbol == "X" })
	assert.Len(t, removed, 2)
	assert.Equal(t, []string{"Y"}, symbols(q.Snapshot()))
}

func TestPopBlocksAndClose(t *testing.T) {
	q := New("buy")
	got := make(chan models.Task, 1)
	go func() {
		tk, ok := q.Pop(context.Background())
		if ok {
			got <- tk
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Push(task("a", "1"))
	select {
	case tk := <-got:
		assert.Equal(t, "1", tk.Symbol)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake")
	}

	q.Push(task("b", "2"))
	q.Close()
	assert.False(t, q.Push(task("c", "3")), "closed queue refuses intake")
	tk, ok := q.Pop(context.Background())
	require.True(t, ok, "queued work survives close")
	assert.Equal(t, "2", tk.Symbol)
	_, ok = q.Pop(context.Background())
	assert.False(t, ok)
}

func TestPopHonoursContext(t *testing.T) {
	q := New("aux")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}

type versions map[models.SeatKey]uint64

func (v versions) Current(k models.SeatKey, ver uint64) bool { return v[k] == ver }

func TestWorkerDropsStaleTask(t *testing.T) {
	key := models.SeatKey{Monitor: "HSI.HK", Direction: models.Long}
	seats := versions{key: 4}

	var mu sync.Mutex
	var ran []uint64
	var stale []uint64
	q := New("buy")
	w := NewWorker(q, seats, func(_ context.Context, t models.Task) error {
		mu.Lock()
		ran = append(ran, t.SeatVersion)
		mu.Unlock()
		return nil
	}, zap.NewNop())
	w.OnStale = func(t models.Task) { stale = append(stale, t.SeatVersion) }

	q.Push(models.Task{Type: models.TaskBuy, Monitor: "HSI.HK", Direction: models.Long, SeatVersion: 3})
	q.Push(models.Task{Type: models.TaskBuy, Monitor: "HSI.HK", Direction: models.Long, SeatVersion: 4})
	q.Push(models.Task{Type: models.TaskRefreshAccount})
	q.Close()
	w.Run(context.Background())

	assert.Equal(t, []uint64{4, 0}, ran)
	assert.Equal(t, []uint64{3}, stale)
}

func TestWorkerSurvivesErrorsAndPanics(t *testing.T) {
	q := New("aux")
	var done []error
	w := NewWorker(q, versions{}, func(_ context.Context, t models.Task) error {
		switch t.Symbol {
		case "err":
			return errors.New("boom")
		case "panic":
			panic("bad")
		}
		return nil
	}, zap.NewNop())
	w.OnDone = func(_ models.Task, err error) { done = append(done, err) }

	q.Push(task("", "err"))
	q.Push(task("", "panic"))
	q.Push(task("", "ok"))
	q.Close()
	w.Run(context.Background())

	require.Len(t, done, 3)
	assert.Error(t, done[0])
	assert.Error(t, done[1])
	assert.NoError(t, done[2])
}
