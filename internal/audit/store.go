// Package audit journals engine events to Postgres.
package audit

import (
	"context"
	"fmt"
	"time"
	"warrant_bot/internal/events"
	"warrant_bot/pkg/db"

	"github.com/bytedance/sonic"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         UUID PRIMARY KEY,
	kind       TEXT        NOT NULL,
	at         TIMESTAMPTZ NOT NULL,
	monitor    TEXT        NOT NULL DEFAULT '',
	symbol     TEXT        NOT NULL DEFAULT '',
	action     TEXT        NOT NULL DEFAULT '',
	version    BIGINT      NOT NULL DEFAULT 0,
	order_id   TEXT        NOT NULL DEFAULT '',
	reason     TEXT        NOT NULL DEFAULT '',
	payload    JSONB
);
CREATE INDEX IF NOT EXISTS audit_events_at_idx ON audit_events (at);
`

const insertEvent = `
INSERT INTO audit_events (id, kind, at, monitor, symbol, action, version, order_id, reason, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

// Store writes events through a db.TxManager.
type Store struct {
	db db.TxManager
}

func NewStore(tx db.TxManager) *Store {
	return &Store{db: tx}
}

func (s *Store) EnsureSchema(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("audit.EnsureSchema: %w", err)
		}
	}()
	_, err = s.db.Conn().Exec(ctx, schema)
	return err
}

// InsertBatch writes all events in one transaction.
func (s *Store) InsertBatch(ctx context.Context, batch []events.Event) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("audit.InsertBatch: %w", err)
		}
	}()
	if len(batch) == 0 {
		return nil
	}
	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		for _, e := range batch {
			if err := insert(ctxTx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

func insert(ctx context.Context, tx db.Transaction, e events.Event) error {
	var payload []byte
	if len(e.Fields) > 0 {
		data, err := sonic.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields of %s: %w", e.ID, err)
		}
		payload = data
	}
	_, err := tx.Exec(ctx, insertEvent,
		e.ID, string(e.Kind), e.At.UTC().Truncate(time.Microsecond),
		e.Monitor, e.Symbol, e.Action, int64(e.Version), e.OrderID, e.Reason, payload,
	)
	return err
}
