package bootstrap

import (
	"context"
	"warrant_bot/internal/events"
	"warrant_bot/internal/modules/config"
	"warrant_bot/pkg/logger"
	"warrant_bot/pkg/tracing"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "warrant_bot"

// Module provides the process logger and the event bus, and installs the
// global tracer when tracing is enabled.
func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			NewLogger, // -> *zap.Logger
			NewBus,    // -> *events.Bus
		),
		fx.Invoke(RunTracer),
	)
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.LogLevel, serviceName)
	if err != nil {
		return nil, err
	}
	if dump, err := cfg.Dump(); err == nil {
		log.Debug("effective config\n" + dump)
	}
	return log, nil
}

// NewBus returns the bus every component publishes to; events are always logged.
func NewBus(log *zap.Logger) *events.Bus {
	bus := events.NewBus(nil)
	bus.Subscribe(events.LogSink(log.Named("events")))
	return bus
}

func RunTracer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	tracing.SetServiceName(serviceName)
	_, closer, err := tracing.InitTracer(tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port})
	if err != nil {
		return err
	}
	log.Info("tracing enabled", zap.String("agent", cfg.Tracing.Host), zap.Int("port", cfg.Tracing.Port))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}
