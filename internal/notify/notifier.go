package notify

import (
	"context"
	"fmt"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
}

// StatusFunc renders the reply to the /status command.
type StatusFunc func() string

// Telegram is a passive notifier that also answers /status in its own chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger

	mu     sync.Mutex
	status StatusFunc
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
		log:    log.Named("telegram"),
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		t.log.Warn("send telegram message", zap.Error(err))
	}
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) SetStatus(fn StatusFunc) {
	t.mu.Lock()
	t.status = fn
	t.mu.Unlock()
}

func (t *Telegram) handleStatus() {
	t.mu.Lock()
	fn := t.status
	t.mu.Unlock()
	if fn == nil {
		t.Send("engine is not running")
		return
	}
	t.Send(fn())
}

// Start long-polls for commands until ctx ends.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case upd := <-updates:
				if upd.Message != nil && upd.Message.Chat != nil &&
					upd.Message.Chat.ID == t.chatID && upd.Message.IsCommand() {

					switch upd.Message.Command() {
					case "status":
						go t.handleStatus()
					}
				}
			}
		}
	}()
	return nil
}

// Log writes notifications to the logger. Used when no telegram token is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log               { return &Log{log: log.Named("notify")} }
func (l *Log) Send(msg string)                  { l.log.Info(msg) }
func (l *Log) Sendf(format string, args ...any) { l.log.Info(fmt.Sprintf(format, args...)) }
