package pricefeed

import (
	"context"

	"trigger_bot/internal/modules/pricefeed/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("pricefeed",
		fx.Provide(
			service.NewClient,
		),
		// WS-кэш цен живёт всё время работы процесса
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go c.StartPriceStream(ctx)
					return nil
				},
			})
		}),
	)
}
