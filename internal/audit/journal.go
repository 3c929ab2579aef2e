package audit

import (
	"context"
	"sync"
	"time"
	"warrant_bot/internal/events"

	"go.uber.org/zap"
)

const (
	defaultBuffer = 1024
	defaultBatch  = 64
	flushInterval = time.Second
	writeTimeout  = 5 * time.Second
)

// Writer is what Journal needs from the store.
type Writer interface {
	InsertBatch(ctx context.Context, batch []events.Event) error
}

// Journal buffers events and writes them in batches off the publishing goroutine.
// When the buffer is full events are dropped and counted.
type Journal struct {
	w   Writer
	log *zap.Logger
	in  chan events.Event

	mu      sync.Mutex
	dropped int
	done    chan struct{}
}

func NewJournal(w Writer, log *zap.Logger, buffer int) *Journal {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Journal{
		w:    w,
		log:  log.Named("audit"),
		in:   make(chan events.Event, buffer),
		done: make(chan struct{}),
	}
}

// Handle implements events.Sink and never blocks.
func (j *Journal) Handle(e events.Event) {
	select {
	case j.in <- e:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Run writes batches until ctx ends, then flushes what is buffered.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]events.Event, 0, defaultBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := j.w.InsertBatch(wctx, batch); err != nil {
			j.log.Error("write audit batch", zap.Int("events", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-j.in:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-j.in:
			batch = append(batch, e)
			if len(batch) >= defaultBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Wait blocks until Run has returned.
func (j *Journal) Wait() { <-j.done }
