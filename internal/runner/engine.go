// Package runner owns one instance of every engine component and drives them
// from a single tick loop plus one worker per task queue.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"warrant_bot/internal/broker"
	"warrant_bot/internal/chase"
	"warrant_bot/internal/events"
	"warrant_bot/internal/market"
	"warrant_bot/internal/models"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/queue"
	"warrant_bot/internal/reconcile"
	"warrant_bot/internal/risk"
	"warrant_bot/internal/seat"
	"warrant_bot/internal/strategy"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	QueueBuy  = "buy"
	QueueSell = "sell"
	QueueAux  = "aux"
)

type Engine struct {
	cfg      *config.Config
	monitors map[string]config.Monitor
	order    []string // monitor symbols in config order

	broker   broker.Client
	bus      *events.Bus
	log      *zap.Logger
	now      func() time.Time
	clock    *market.Clock
	seats    *seat.Registry
	recon    *reconcile.Engine
	risk     *risk.Controller
	pipeline *strategy.Pipeline
	chase    *chase.Monitor

	buyQ  *queue.Queue
	sellQ *queue.Queue
	auxQ  *queue.Queue

	st *state
	// guards serialize order execution on a seat with binds and clears of it
	guards map[models.SeatKey]*sync.Mutex

	// Subscribe asks the quote stream for symbols; optional.
	Subscribe func(symbols ...string)
	// OnTick observes every finished tick; optional.
	OnTick func(Status)
	// OnReady is called once restore finished; optional.
	OnReady func()

	runMu      sync.Mutex
	running    bool
	tickCancel context.CancelFunc
	tickDone   chan struct{}
	workCancel context.CancelFunc
	workers    sync.WaitGroup
}

func NewEngine(cfg *config.Config, b broker.Client, bus *events.Bus, log *zap.Logger, now func() time.Time) (*Engine, error) {
	if now == nil {
		now = time.Now
	}
	if bus == nil {
		bus = events.NewBus(now)
	}
	clock, err := market.NewClock(cfg.Market)
	if err != nil {
		return nil, errors.Wrap(err, "market clock")
	}
	pipeline, err := strategy.NewPipeline(cfg.Monitors, strategy.NewVerifier())
	if err != nil {
		return nil, errors.Wrap(err, "signal pipeline")
	}

	e := &Engine{
		cfg:      cfg,
		monitors: make(map[string]config.Monitor, len(cfg.Monitors)),
		broker:   b,
		bus:      bus,
		log:      log.Named("engine"),
		now:      now,
		clock:    clock,
		seats:    seat.NewRegistry(now),
		pipeline: pipeline,
		buyQ:     queue.New(QueueBuy),
		sellQ:    queue.New(QueueSell),
		auxQ:     queue.New(QueueAux),
		st:       newState(),
		guards:   make(map[models.SeatKey]*sync.Mutex),
	}
	e.recon = reconcile.NewEngine(b, e.log.Named("reconcile"), now)
	e.risk = risk.NewController(e.recon, clock, cfg.Monitors)
	e.chase = chase.NewMonitor(cfg.Chase, b, bus, e.log, now)

	for _, m := range cfg.Monitors {
		e.monitors[m.Symbol] = m
		e.order = append(e.order, m.Symbol)
		for _, d := range models.Directions {
			key := models.SeatKey{Monitor: m.Symbol, Direction: d}
			e.seats.Add(key)
			e.guards[key] = &sync.Mutex{}
		}
	}
	e.seats.OnClear(e.onSeatCleared)
	return e, nil
}

func (e *Engine) Seats() *seat.Registry         { return e.seats }
func (e *Engine) Chaser() *chase.Monitor        { return e.chase }
func (e *Engine) Verifier() *strategy.Verifier  { return e.pipeline.Verifier() }
func (e *Engine) Queues() []*queue.Queue        { return []*queue.Queue{e.buyQ, e.sellQ, e.auxQ} }
func (e *Engine) Reconciler() *reconcile.Engine { return e.recon }
func (e *Engine) Risk() *risk.Controller        { return e.risk }

// Start rebuilds state from the broker, starts the workers and the tick loop.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return fmt.Errorf("engine already running")
	}

	e.Restore(ctx)
	if e.OnReady != nil {
		e.OnReady()
	}

	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	e.workCancel = workCancel
	for _, w := range e.newWorkers() {
		e.workers.Add(1)
		go func(w *queue.Worker) {
			defer e.workers.Done()
			w.Run(workCtx)
		}(w)
	}

	tickCtx, tickCancel := context.WithCancel(context.WithoutCancel(ctx))
	e.tickCancel = tickCancel
	e.tickDone = make(chan struct{})
	go e.loop(tickCtx)

	e.running = true
	e.publish(events.Event{Kind: events.EngineState, Reason: "started"})
	return nil
}

// Stop ends the tick loop, closes intake and lets the workers drain until ctx ends.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false

	e.tickCancel()
	<-e.tickDone

	for _, q := range e.Queues() {
		q.Close()
	}
	drained := make(chan struct{})
	go func() {
		e.workers.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		left := 0
		for _, q := range e.Queues() {
			left += q.Len()
		}
		e.log.Warn("stop deadline reached, abandoning queued tasks", zap.Int("tasks", left))
		err = errors.Wrap(ctx.Err(), "drain queues")
	}
	e.workCancel()
	<-drained

	e.recon.Flush()
	e.publish(events.Event{Kind: events.EngineState, Reason: "stopped"})
	return err
}

func (e *Engine) newWorkers() []*queue.Worker {
	mk := func(q *queue.Queue, h queue.Handler) *queue.Worker {
		w := queue.NewWorker(q, e.seats, h, e.log)
		name := q.Name()
		w.OnStale = func(t models.Task) {
			e.publish(events.Event{
				Kind:    events.StaleDiscarded,
				Monitor: t.Monitor,
				Symbol:  t.Symbol,
				Version: t.SeatVersion,
				Reason:  "seat version changed",
				Fields:  map[string]any{"queue": name, "type": t.Type.String()},
			})
		}
		return w
	}
	return []*queue.Worker{
		mk(e.buyQ, e.handleBuy),
		mk(e.sellQ, e.handleSell),
		mk(e.auxQ, e.handleAux),
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.tickDone)
	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

func (e *Engine) publish(ev events.Event) {
	e.bus.Publish(ev)
}

// SeatStatus is one row of Status.Seats.
type SeatStatus struct {
	Seat    string `json:"seat"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
	Version uint64 `json:"version"`
}

type Status struct {
	LastTick time.Time      `json:"last_tick"`
	Queues   map[string]int `json:"queues"`
	Seats    []SeatStatus   `json:"seats"`
	Pending  int            `json:"pending_entries"`
	Resting  int            `json:"resting_orders"`
}

func (e *Engine) Status() Status {
	st := Status{
		LastTick: e.st.lastTick(),
		Queues:   make(map[string]int, 3),
		Pending:  e.pipeline.Verifier().Len(),
		Resting:  len(e.chase.Orders()),
	}
	for _, q := range e.Queues() {
		st.Queues[q.Name()] = q.Len()
	}
	for _, en := range e.seats.Snapshot() {
		st.Seats = append(st.Seats, SeatStatus{
			Seat:    en.Key.String(),
			Symbol:  en.Seat.Symbol,
			Status:  en.Seat.Status.String(),
			Version: en.Seat.Version,
		})
	}
	return st
}

// String renders the status for chat replies.
func (s Status) String() string {
	var b strings.Builder
	if s.LastTick.IsZero() {
		b.WriteString("last tick: never\n")
	} else {
		fmt.Fprintf(&b, "last tick: %s\n", s.LastTick.Format("15:04:05"))
	}
	fmt.Fprintf(&b, "queues: buy=%d sell=%d aux=%d\n", s.Queues[QueueBuy], s.Queues[QueueSell], s.Queues[QueueAux])
	fmt.Fprintf(&b, "pending entries: %d, resting orders: %d\n", s.Pending, s.Resting)
	for _, st := range s.Seats {
		sym := st.Symbol
		if sym == "" {
			sym = "-"
		}
		fmt.Fprintf(&b, "%s %s %s v%d\n", st.Seat, st.Status, sym, st.Version)
	}
	return b.String()
}
