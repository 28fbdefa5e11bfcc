package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"trigger_bot/internal/models"
	healthsvc "trigger_bot/internal/modules/health/service"
	pricefeedsvc "trigger_bot/internal/modules/pricefeed/service"
	triggerssvc "trigger_bot/internal/modules/triggers/service"
	"trigger_bot/internal/notify"
	"trigger_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

const helpText = `Commands:
/start API_KEY SECRET - bind the bot to this chat and set exchange keys
/trade COIN MARKET QTY KIND THRESHOLD [QTY KIND THRESHOLD ...] - create order triggers
  KIND: BUY_BELOW | SELL_ABOVE | SELL_BELOW | TRAILING_STOP (THRESHOLD is the delta, 0..1)
/alert COIN MARKET THRESHOLD - create a price alert
/price COIN MARKET - current price (falls back to CryptoCompare for fiat markets)
/remove ID|PAIR ... - remove triggers by id or by pair
/status [repr] - triggers, prices and balances
/ping - worker heartbeat
/help - this message`

var errWrongUsage = errors.New("Wrong Usage")

// Handler обслуживает команды оператора через long polling. Все
// мутации идут через Manager и его single-flight лок, так что команды
// никогда не пересекаются с тиком воркера.
type Handler struct {
	bot      *tgbot.BotAPI
	manager  *triggerssvc.Manager
	settings triggerssvc.SettingsStore
	state    *healthsvc.State
	feed     *pricefeedsvc.Client
	tg       *notify.Telegram // nil в stdout-режиме
}

func NewHandler(
	bot *tgbot.BotAPI,
	manager *triggerssvc.Manager,
	settings triggerssvc.SettingsStore,
	state *healthsvc.State,
	feed *pricefeedsvc.Client,
	tg *notify.Telegram,
) *Handler {
	return &Handler{
		bot:      bot,
		manager:  manager,
		settings: settings,
		state:    state,
		feed:     feed,
		tg:       tg,
	}
}

// Run крутит long polling до отмены ctx.
func (h *Handler) Run(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 60
	updates := h.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			h.bot.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if upd.Message == nil || !upd.Message.IsCommand() {
				continue
			}
			h.handle(ctx, upd.Message)
		}
	}
}

func (h *Handler) handle(ctx context.Context, msg *tgbot.Message) {
	if msg.From == nil {
		return
	}
	cmd := msg.Command()
	args := strings.Fields(msg.CommandArguments())

	if cmd != "start" {
		ok, err := h.authorized(ctx, msg.From.ID)
		if err != nil {
			h.replyErr(msg, err)
			return
		}
		if !ok {
			logger.Info("ignoring /%s from unauthorized user %d", cmd, msg.From.ID)
			return
		}
	}

	var err error
	switch cmd {
	case "start":
		err = h.cmdStart(ctx, msg, args)
	case "trade":
		err = h.cmdTrade(ctx, msg, args)
	case "alert":
		err = h.cmdAlert(ctx, msg, args)
	case "price":
		err = h.cmdPrice(ctx, msg, args)
	case "remove":
		err = h.cmdRemove(ctx, msg, args)
	case "status":
		err = h.cmdStatus(ctx, msg, args)
	case "ping":
		err = h.cmdPing(msg)
	case "help":
		h.reply(msg, helpText)
	default:
		h.reply(msg, "Unknown command, see /help")
	}

	if err != nil {
		h.replyErr(msg, err)
	}
}

// authorized: до первого /start бот ничей и молчит, после — слушается
// только владельца.
func (h *Handler) authorized(ctx context.Context, userID int64) (bool, error) {
	raw, err := h.settings.Get(ctx, triggerssvc.KeyOwnerID)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	owner, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, errors.Wrapf(err, "corrupt owner_id %q", raw)
	}
	return owner == userID, nil
}

func (h *Handler) cmdStart(ctx context.Context, msg *tgbot.Message, args []string) error {
	if len(args) != 2 {
		return errWrongUsage
	}

	pairs := map[string]string{
		triggerssvc.KeyChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		triggerssvc.KeyOwnerID:   strconv.FormatInt(msg.From.ID, 10),
		triggerssvc.KeyAPIKey:    args[0],
		triggerssvc.KeyAPISecret: args[1],
	}
	for k, v := range pairs {
		if err := h.settings.Set(ctx, k, v); err != nil {
			return err
		}
	}

	h.feed.SetCreds(args[0], args[1])
	if h.tg != nil {
		h.tg.ResetChatID()
	}

	h.reply(msg, "ack!")
	return nil
}

// /trade COIN MARKET (QTY KIND THRESHOLD)+
func (h *Handler) cmdTrade(ctx context.Context, msg *tgbot.Message, args []string) error {
	if len(args) < 5 || (len(args)-2)%3 != 0 {
		return errWrongUsage
	}
	pair := models.NewPair(args[0], args[1])

	var specs []triggerssvc.TriggerSpec
	for i := 2; i < len(args); i += 3 {
		qty, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return errors.Wrapf(errWrongUsage, "bad quantity %q", args[i])
		}
		kind, err := models.ParseKind(args[i+1])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[i+2], 64)
		if err != nil {
			return errors.Wrapf(errWrongUsage, "bad threshold %q", args[i+2])
		}
		specs = append(specs, triggerssvc.TriggerSpec{Quantity: qty, Kind: kind, Value: value})
	}

	created, err := h.manager.CreateTriggers(ctx, pair, specs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(created))
	for _, t := range created {
		ids = append(ids, strconv.FormatInt(t.ID, 10))
	}
	h.reply(msg, fmt.Sprintf("OK! Created triggers: %s", strings.Join(ids, ", ")))
	return nil
}

// /alert COIN MARKET THRESHOLD
func (h *Handler) cmdAlert(ctx context.Context, msg *tgbot.Message, args []string) error {
	if len(args) != 3 {
		return errWrongUsage
	}
	threshold, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return errors.Wrapf(errWrongUsage, "bad threshold %q", args[2])
	}

	t, err := h.manager.CreateAlert(ctx, models.NewPair(args[0], args[1]), threshold)
	if err != nil {
		return err
	}
	h.reply(msg, fmt.Sprintf("OK! Created %s trigger (id=%d)", t.Kind, t.ID))
	return nil
}

// /price COIN MARKET — сперва WS-кэш, потом тикер биржи; пары,
// которых там нет (фиатные котировки), добираем через CryptoCompare.
func (h *Handler) cmdPrice(ctx context.Context, msg *tgbot.Message, args []string) error {
	if len(args) != 2 {
		return errWrongUsage
	}
	pair := models.NewPair(args[0], args[1])

	if price, ok := h.feed.CachedPrice(pair.Symbol()); ok {
		h.reply(msg, fmt.Sprintf("%s: %v", pair.Symbol(), price))
		return nil
	}

	prices, err := h.feed.GetAllTickerPrices(ctx)
	if err != nil {
		return err
	}
	if price, ok := prices[pair.Symbol()]; ok {
		h.reply(msg, fmt.Sprintf("%s: %v", pair.Symbol(), price))
		return nil
	}

	price, err := h.feed.GetFiatPrice(ctx, pair.Base, pair.Quote, "")
	if err != nil {
		return err
	}
	h.reply(msg, fmt.Sprintf("%s: %v (CryptoCompare)", pair.Symbol(), price))
	return nil
}

// /remove ID|PAIR ...
func (h *Handler) cmdRemove(ctx context.Context, msg *tgbot.Message, args []string) error {
	if len(args) == 0 {
		return errWrongUsage
	}

	var removed []models.Trigger
	for _, arg := range args {
		batch, err := h.manager.Remove(ctx, strings.ToUpper(arg))
		if err != nil {
			return err
		}
		removed = append(removed, batch...)
	}

	if len(removed) == 0 {
		h.reply(msg, "Nothing to remove.")
		return nil
	}
	lines := make([]string, 0, len(removed))
	for _, t := range removed {
		lines = append(lines, fmt.Sprintf("removed %d: %s %s %v", t.ID, t.Pair.Symbol(), t.Kind, t.Threshold))
	}
	h.reply(msg, strings.Join(lines, "\n"))
	return nil
}

func (h *Handler) cmdStatus(ctx context.Context, msg *tgbot.Message, args []string) error {
	useRepr := len(args) > 0 && strings.EqualFold(args[0], "repr")
	text, err := h.manager.Status(ctx, useRepr)
	if err != nil {
		return err
	}
	h.reply(msg, text)
	return nil
}

func (h *Handler) cmdPing(msg *tgbot.Message) error {
	lastRun := "never"
	if lr := h.state.LastRun(); !lr.IsZero() {
		lastRun = lr.UTC().Format("2006-01-02 15:04:05 MST")
	}
	h.reply(msg, fmt.Sprintf("pong\nuptime: %s\nlast run: %s\nsleep interval: %s",
		h.state.Uptime().Truncate(1e9), lastRun, h.state.SleepInterval()))
	return nil
}

func (h *Handler) reply(msg *tgbot.Message, text string) {
	out := tgbot.NewMessage(msg.Chat.ID, text)
	if _, err := h.bot.Send(out); err != nil {
		logger.Error("reply failed: %v", err)
	}
}

// replyErr показывает оператору то же, что уходит в лог: по тексту
// ошибки он решает, чинить команду или смотреть биржу.
func (h *Handler) replyErr(msg *tgbot.Message, err error) {
	logger.Error("command /%s failed: %+v", msg.Command(), err)
	if errors.Is(err, errWrongUsage) {
		h.reply(msg, fmt.Sprintf("%v\nSee /help", err))
		return
	}
	h.reply(msg, fmt.Sprintf("Got %T: %v", errors.Cause(err), err))
}
