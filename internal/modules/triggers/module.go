package triggers

import (
	"context"

	"trigger_bot/internal/modules/config"
	pricefeedsvc "trigger_bot/internal/modules/pricefeed/service"
	"trigger_bot/internal/modules/triggers/service"
	"trigger_bot/internal/modules/triggers/service/pg"
	"trigger_bot/pkg/db"
	"trigger_bot/pkg/logger"

	"go.uber.org/fx"
)

type stores struct {
	fx.Out

	Store    service.Store
	Settings service.SettingsStore
}

// newStores выбирает бэкенд: postgres при заданном DSN, иначе память.
func newStores(ctx context.Context, txm *db.PgTxManager) (stores, error) {
	if txm == nil {
		logger.Info("no database configured, using in-memory trigger store")
		return stores{
			Store:    service.NewMemoryStore(),
			Settings: service.NewMemorySettings(),
		}, nil
	}

	st := pg.NewStore(txm)
	if err := st.EnsureSchema(ctx); err != nil {
		return stores{}, err
	}
	return stores{Store: st, Settings: st}, nil
}

func Module() fx.Option {
	return fx.Module("triggers",
		fx.Provide(
			newStores,
			func(c *pricefeedsvc.Client) service.PriceFeed { return c },
			func(c *pricefeedsvc.Client) service.RecentPricer { return c },
			func(cfg *config.Config, feed service.RecentPricer) *service.Evaluator {
				return service.NewEvaluator(feed, cfg.RunInterval, cfg.OutlierFraction)
			},
			service.NewManager,
		),
		// биржевые ключи переживают рестарт в bot_settings
		fx.Invoke(func(lc fx.Lifecycle, settings service.SettingsStore, c *pricefeedsvc.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					key, err := settings.Get(ctx, service.KeyAPIKey)
					if err != nil {
						return err
					}
					secret, err := settings.Get(ctx, service.KeyAPISecret)
					if err != nil {
						return err
					}
					if key != "" && secret != "" {
						c.SetCreds(key, secret)
						logger.Info("exchange credentials loaded from settings")
					}
					return nil
				},
			})
		}),
	)
}
