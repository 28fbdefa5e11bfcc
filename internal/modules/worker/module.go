package worker

import (
	"context"

	triggerssvc "trigger_bot/internal/modules/triggers/service"
	"trigger_bot/internal/modules/worker/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("worker",
		fx.Provide(
			service.New,
		),
		// Адаптер: *triggers.Manager -> worker.Ticker
		fx.Provide(
			func(m *triggerssvc.Manager) service.Ticker {
				return m
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, w *service.Worker, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					return w.Start(ctx)
				},
				OnStop: func(_ context.Context) error {
					// join: тик в полёте дорабатывает до конца
					w.Stop()
					return nil
				},
			})
		}),
	)
}
