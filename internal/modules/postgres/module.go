package postgres

import (
	"context"

	"trigger_bot/internal/modules/config"
	"trigger_bot/pkg/db"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					// без DSN живём на in-memory хранилище
					return nil, nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, errors.Wrap(err, "failed to create poolMaster")
				}

				if err := poolMaster.Ping(ctx); err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, txm *db.PgTxManager) {
			if txm == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					txm.Close()
					return nil
				},
			})
		}),
	)
}
