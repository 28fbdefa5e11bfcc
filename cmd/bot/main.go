package main

import (
	"context"

	"trigger_bot/internal/modules/config"
	"trigger_bot/internal/modules/health"
	"trigger_bot/internal/modules/postgres"
	"trigger_bot/internal/modules/pricefeed"
	"trigger_bot/internal/modules/telegram_bot"
	"trigger_bot/internal/modules/triggers"
	"trigger_bot/internal/modules/worker"
	"trigger_bot/pkg/logger"
	"trigger_bot/pkg/tracing"

	"go.uber.org/fx"
)

const serviceName = "trigger_bot"

func main() {
	logger.Init(serviceName)
	tracing.SetServiceName(serviceName)

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := fx.New(
		fx.Provide(func() context.Context { return appCtx }),

		config.Module(),
		postgres.Module(),
		pricefeed.Module(),
		triggers.Module(),
		telegram_bot.Module(),
		health.Module(),
		worker.Module(),

		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				logger.Error("tracer init failed: %v", err)
				return nil
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),

		// по сигналу сначала гасим фоновые горутины, потом fx-хуки
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)

	app.Run()
}
