package audit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"warrant_bot/internal/events"
	"warrant_bot/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	mu    sync.Mutex
	execs []execCall
	txs   int
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	f.mu.Unlock()
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) { return nil, nil }
func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row         { return nil }

func (f *fakeDB) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	f.mu.Lock()
	f.txs++
	f.mu.Unlock()
	return fn(ctx, f)
}

func (f *fakeDB) Conn() db.Transaction { return f }

func (f *fakeDB) inserts() []execCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []execCall
	for _, c := range f.execs {
		if strings.Contains(c.sql, "INSERT INTO audit_events") {
			out = append(out, c)
		}
	}
	return out
}

func TestStoreInsertBatch(t *testing.T) {
	fdb := &fakeDB{}
	s := NewStore(fdb)
	require.NoError(t, s.EnsureSchema(context.Background()))

	at := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	err := s.InsertBatch(context.Background(), []events.Event{
		{ID: "a", Kind: events.OrderSubmitted, At: at, Symbol: "12345.HK", Version: 3, Fields: map[string]any{"side": "BUY"}},
		{ID: "b", Kind: events.SeatCleared, At: at},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fdb.txs)
	ins := fdb.inserts()
	require.Len(t, ins, 2)
	assert.Equal(t, "a", ins[0].args[0])
	assert.Equal(t, "order_submitted", ins[0].args[1])
	assert.Equal(t, int64(3), ins[0].args[6])
	assert.JSONEq(t, `{"side":"BUY"}`, string(ins[0].args[9].([]byte)))
	assert.Nil(t, ins[1].args[9])
}

func TestStoreEmptyBatchSkipsTx(t *testing.T) {
	fdb := &fakeDB{}
	require.NoError(t, NewStore(fdb).InsertBatch(context.Background(), nil))
	assert.Zero(t, fdb.txs)
}

func TestJournalFlushesOnStop(t *testing.T) {
	fdb := &fakeDB{}
	j := NewJournal(NewStore(fdb), zap.NewNop(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go j.Run(ctx)

	for i := 0; i < 5; i++ {
		j.Handle(events.Event{ID: string(rune('a' + i)), Kind: events.SignalGenerated, At: time.Now()})
	}
	cancel()
	j.Wait()

	assert.Len(t, fdb.inserts(), 5)
	assert.Zero(t, j.Dropped())
}

func TestJournalDropsWhenFull(t *testing.T) {
	j := NewJournal(NewStore(&fakeDB{}), zap.NewNop(), 2)
	for i := 0; i < 5; i++ {
		j.Handle(events.Event{Kind: events.SignalGenerated})
	}
	assert.Equal(t, 3, j.Dropped())
}
