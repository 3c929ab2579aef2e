package main

import (
	"warrant_bot/internal/modules/bootstrap"
	"warrant_bot/internal/modules/broker"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/modules/health"
	"warrant_bot/internal/modules/postgres"
	"warrant_bot/internal/runner"

	telegram "warrant_bot/internal/modules/telegram_bot"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		config.Module(),
		bootstrap.Module(),
		health.Module(),
		broker.Module(),
		postgres.Module(),
		runner.Module(),
		telegram.Module(),
	).Run()
}
