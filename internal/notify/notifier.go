package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"trigger_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier — асинхронная доставка сообщений оператору. Send никогда
// не блокирует вызывающего: воркер не должен ждать Telegram.
type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// Settings — источник chat_id; задаётся командой /start.
type Settings interface {
	Get(ctx context.Context, key string) (string, error)
}

const chatIDKey = "chat_id"

// Telegram шлёт сообщения через очередь и отдельную горутину.
// Переполненная очередь — дропаем с логом, но не ждём.
type Telegram struct {
	bot      *tgbot.BotAPI
	settings Settings
	queue    chan string
	chatID   atomic.Int64
}

func NewTelegram(bot *tgbot.BotAPI, settings Settings, queueSize int) *Telegram {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Telegram{
		bot:      bot,
		settings: settings,
		queue:    make(chan string, queueSize),
	}
}

// Start запускает горутину-отправителя; живёт до отмены ctx.
func (t *Telegram) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-t.queue:
				t.deliver(ctx, msg)
			}
		}
	}()
}

func (t *Telegram) deliver(ctx context.Context, msg string) {
	chatID := t.chatID.Load()
	if chatID == 0 {
		raw, err := t.settings.Get(ctx, chatIDKey)
		if err != nil || raw == "" {
			logger.Error("notify: chat_id is not set, dropping message")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Error("notify: corrupt chat_id %q", raw)
			return
		}
		t.chatID.Store(id)
		chatID = id
	}

	if _, err := t.bot.Send(tgbot.NewMessage(chatID, msg)); err != nil {
		logger.Error("notify: send failed: %v", err)
	}
}

// ResetChatID сбрасывает кэш после нового /start.
func (t *Telegram) ResetChatID() { t.chatID.Store(0) }

func (t *Telegram) Send(msg string) {
	select {
	case t.queue <- msg:
	default:
		logger.Error("notify: queue is full, dropping message")
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// Stdout — заглушка без Telegram, всё в лог.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Send(msg string)                  { logger.Info("%s", msg) }
func (s *Stdout) Sendf(format string, args ...any) { logger.Info(format, args...) }
