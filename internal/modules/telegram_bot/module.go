package telegram_bot

import (
	"context"

	"trigger_bot/internal/modules/config"
	"trigger_bot/internal/modules/telegram_bot/service"
	triggerssvc "trigger_bot/internal/modules/triggers/service"
	"trigger_bot/internal/notify"
	"trigger_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

func newBot(cfg *config.Config) (*tgbot.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		// без токена живём в stdout-режиме: воркер работает, команд нет
		logger.Info("no telegram token configured, bot disabled")
		return nil, nil
	}
	bot, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	logger.Info("authorized on telegram account %s", bot.Self.UserName)
	return bot, nil
}

func newTelegramNotifier(bot *tgbot.BotAPI, settings triggerssvc.SettingsStore, cfg *config.Config) *notify.Telegram {
	if bot == nil {
		return nil
	}
	return notify.NewTelegram(bot, settings, cfg.NotifyQueueSize)
}

func newNotifier(tg *notify.Telegram) notify.Notifier {
	if tg == nil {
		return notify.NewStdout()
	}
	return tg
}

func Module() fx.Option {
	return fx.Module("telegram_bot",
		fx.Provide(
			newBot,
			newTelegramNotifier,
			newNotifier,
			service.NewHandler,
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, bot *tgbot.BotAPI, tg *notify.Telegram, h *service.Handler) {
			if bot == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					tg.Start(ctx)
					go h.Run(ctx)
					return nil
				},
			})
		}),
	)
}
