package postgres

import (
	"context"
	"fmt"
	"warrant_bot/internal/audit"
	"warrant_bot/internal/events"
	"warrant_bot/internal/modules/config"
	"warrant_bot/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module journals engine events to postgres. Without a DSN it does nothing.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Invoke(RunJournal),
	)
}

func RunJournal(lc fx.Lifecycle, cfg *config.Config, bus *events.Bus, log *zap.Logger) {
	if cfg.DB == "" {
		log.Info("db_dsn not set, audit journal disabled")
		return
	}

	var (
		tx      *db.PgTxManager
		journal *audit.Journal
		cancel  context.CancelFunc
	)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			poolMaster, err := db.NewPool(ctx, db.PoolConfig{
				DSN:      cfg.DB,
				MaxConns: 4,
			})
			if err != nil {
				return fmt.Errorf("failed to create poolMaster: %w", err)
			}
			tx = db.NewPgTxManager(poolMaster)
			if err = tx.Ping(ctx); err != nil {
				tx.Close()
				return err
			}

			store := audit.NewStore(tx)
			if err = store.EnsureSchema(ctx); err != nil {
				tx.Close()
				return err
			}

			journal = audit.NewJournal(store, log, 0)
			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.Background())
			go journal.Run(runCtx)
			bus.Subscribe(journal)
			log.Info("audit journal started")
			return nil
		},
		OnStop: func(context.Context) error {
			if journal == nil {
				return nil
			}
			cancel()
			journal.Wait()
			if n := journal.Dropped(); n > 0 {
				log.Warn("audit events dropped", zap.Int("count", n))
			}
			tx.Close()
			return nil
		},
	})
}
