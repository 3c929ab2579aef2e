package broker

import (
	"context"
	client "warrant_bot/internal/broker"
	"warrant_bot/internal/broker/gateway"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/modules/health/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the gateway client and the retrying broker.Client the engine trades through.
func Module() fx.Option {
	return fx.Module("broker",
		fx.Provide(
			NewGateway, // -> *gateway.Client
			NewClient,  // -> client.Client
		),
		fx.Invoke(RunStream),
	)
}

func NewGateway(cfg *config.Config, log *zap.Logger) *gateway.Client {
	return gateway.NewClient(cfg.Broker, log)
}

func NewClient(cfg *config.Config, gw *gateway.Client, log *zap.Logger) client.Client {
	return client.NewRetrying(gw, cfg.Broker.RetryAttempts, cfg.Broker.RetryBackoff, log)
}

// RunStream keeps the quote stream connected for the lifetime of the app.
func RunStream(lc fx.Lifecycle, gw *gateway.Client, state *service.State) {
	gw.OnConnChange(state.SetWSConnected)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				gw.RunStream(ctx)
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stop.Done():
			}
			return nil
		},
	})
}
