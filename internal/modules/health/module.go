package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
	"warrant_bot/internal/metrics"
	"warrant_bot/internal/modules/config"
	"warrant_bot/internal/modules/health/service"
	"warrant_bot/internal/runner"

	"github.com/bytedance/sonic"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Addr string
	// MaxTickAge is how long /readyz tolerates a silent tick loop.
	MaxTickAge time.Duration
}

func NewConfig(cfg *config.Config) Config {
	return Config{
		Addr:       fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.AdminPort),
		MaxTickAge: 10 * cfg.Engine.TickInterval,
	}
}

func NewMux(cfg Config, state *service.State, m *metrics.Metrics, eng *runner.Engine) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() || state.Stale(time.Now(), cfg.MaxTickAge) {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"ready":        state.Ready(),
			"wsConnected":  state.WSConnected(),
			"wsReconnects": state.Reconnects(),
			"uptimeSec":    int64(state.Uptime().Seconds()),
			"lastTickUnix": func() int64 {
				t := state.LastTick()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
			"engine": eng.Status(),
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", m.Handler())
	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			log.Info("admin server listening", zap.String("addr", cfg.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("admin server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			metrics.New,
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
