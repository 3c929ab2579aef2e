package queue

import (
	"context"
	"fmt"
	"warrant_bot/internal/models"

	"go.uber.org/zap"
)

// VersionChecker reports whether a seat version is still live.
type VersionChecker interface {
	Current(key models.SeatKey, version uint64) bool
}

type Handler func(ctx context.Context, t models.Task) error

// Worker drains one queue on one goroutine. Seat-bound tasks whose version is
// no longer current are dropped before the handler runs.
type Worker struct {
	q      *Queue
	seats  VersionChecker
	handle Handler
	log    *zap.Logger

	// OnStale and OnDone observe dropped and finished tasks; both optional.
	OnStale func(models.Task)
	OnDone  func(models.Task, error)
}

func NewWorker(q *Queue, seats VersionChecker, h Handler, log *zap.Logger) *Worker {
	return &Worker{q: q, seats: seats, handle: h, log: log.With(zap.String("queue", q.Name()))}
}

// Run returns when ctx ends or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		t, ok := w.q.Pop(ctx)
		if !ok {
			return
		}
		w.exec(ctx, t)
	}
}

func (w *Worker) exec(ctx context.Context, t models.Task) {
	if t.SeatBound() && !w.seats.Current(t.Seat(), t.SeatVersion) {
		w.log.Info("stale task dropped",
			zap.String("type", t.Type.String()),
			zap.String("monitor", t.Monitor),
			zap.String("symbol", t.Symbol),
			zap.Uint64("version", t.SeatVersion))
		if w.OnStale != nil {
			w.OnStale(t)
		}
		return
	}

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task %s panicked: %v", t.Type, p)
			}
		}()
		err = w.handle(ctx, t)
	}()
	if err != nil {
		w.log.Warn("task failed",
			zap.String("type", t.Type.String()),
			zap.String("monitor", t.Monitor),
			zap.String("symbol", t.Symbol),
			zap.Error(err))
	}
	if w.OnDone != nil {
		w.OnDone(t, err)
	}
}
