package runner

import (
	"context"
	"warrant_bot/internal/broker"
	"warrant_bot/internal/broker/gateway"
	"warrant_bot/internal/events"
	"warrant_bot/internal/metrics"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/modules/health/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config, b broker.Client, bus *events.Bus, log *zap.Logger) (*Engine, error) {
				return NewEngine(cfg, b, bus, log, nil)
			},
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			e *Engine,
			gw *gateway.Client,
			bus *events.Bus,
			m *metrics.Metrics,
			state *service.State,
		) {
			bus.Subscribe(m)
			e.Subscribe = gw.Subscribe
			e.OnReady = func() { state.SetReady(true) }
			e.OnTick = func(st Status) {
				state.TouchTick(st.LastTick)
				m.Ticks.Inc()
				for name, n := range st.Queues {
					m.SetQueueDepth(name, n)
				}
			}

			lc.Append(fx.Hook{
				OnStart: e.Start,
				OnStop: func(ctx context.Context) error {
					state.SetReady(false)
					return e.Stop(ctx)
				},
			})
		}),
	)
}
