package telegram

import (
	"context"
	"warrant_bot/internal/events"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/notify"
	"warrant_bot/internal/runner"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Notifier: telegram when a token is configured, the log otherwise
		fx.Provide(
			NewNotifier, // -> notify.Notifier, *notify.Telegram (nil without token)
		),
		// 2. Forward operator events and answer /status
		fx.Invoke(Run),
	)
}

type Out struct {
	fx.Out

	Notifier notify.Notifier
	Telegram *notify.Telegram
}

func NewNotifier(cfg *config.Config, log *zap.Logger) (Out, error) {
	if cfg.Telegram.Token == "" {
		log.Info("telegram token not set, notifications go to the log")
		return Out{Notifier: notify.NewLog(log)}, nil
	}
	t, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		return Out{}, err
	}
	return Out{Notifier: t, Telegram: t}, nil
}

func Run(lc fx.Lifecycle, n notify.Notifier, t *notify.Telegram, bus *events.Bus, eng *runner.Engine) {
	sink := notify.NewSink(n, 0)
	bus.Subscribe(sink)
	if t != nil {
		t.SetStatus(func() string { return eng.Status().String() })
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sink.Run(ctx)
			return t.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
