package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

// Config is read from the YAML file named by "connect telegram <config>".
type Config struct {
	Token        string        `yaml:"token"`
	Name         string        `yaml:"name"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// LoadConfig reads and checks a Telegram config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Token == "" {
		return Config{}, errors.New("telegram config: token is required")
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 30 * time.Second
	}
	return cfg, nil
}

type TelegramAdapter struct {
	cfg   Config
	delay time.Duration
	log   *logging.Logger
}

func NewTelegramAdapter(cfg Config, delay time.Duration, log *logging.Logger) *TelegramAdapter {
	if log == nil {
		log = logging.Global()
	}
	return &TelegramAdapter{cfg: cfg, delay: delay, log: log.WithComponent("telegram")}
}

func (t *TelegramAdapter) Name() string {
	return "telegram"
}

// Run long-polls for updates until ctx is done.
func (t *TelegramAdapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	return chat.Reconnect(ctx, t.log, t.delay, func(ctx context.Context) error {
		bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
		if err != nil {
			return fmt.Errorf("connect bot: %w", err)
		}
		t.log.Info("Authorized as @%s", bot.Self.UserName)

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)
		defer bot.StopReceivingUpdates()

		for {
			select {
			case <-ctx.Done():
				return nil
			case update, ok := <-updates:
				if !ok {
					return errors.New("update channel closed")
				}
				if update.Message == nil {
					continue
				}
				if reply, ok := t.route(ctx, bot.Self.UserName, update.Message, inbound); ok {
					if _, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, reply)); err != nil {
						t.log.Warn("Send to chat %d failed: %v", update.Message.Chat.ID, err)
					}
				}
			}
		}
	})
}

// route forwards one message and returns the reply to send, if any.
func (t *TelegramAdapter) route(ctx context.Context, botName string, m *tgbotapi.Message, inbound chan<- chat.Message) (string, bool) {
	if m.Text == "" || m.Chat == nil {
		return "", false
	}
	author := "unknown"
	if m.From != nil {
		author = m.From.UserName
		if author == "" {
			author = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		}
	}
	msg := chat.Message{Source: strconv.FormatInt(m.Chat.ID, 10), Author: author, Content: m.Text}

	if !t.addressed(botName, m) {
		if err := chat.Post(ctx, inbound, msg); err != nil {
			t.log.Debug("Dropped message: %v", err)
		}
		return "", false
	}

	askCtx, cancel := context.WithTimeout(ctx, t.cfg.ReplyTimeout)
	defer cancel()
	answer, err := chat.Ask(askCtx, inbound, msg)
	if err != nil {
		t.log.Warn("No reply for %s: %v", author, err)
		return "", false
	}
	if !answer.OK || answer.Text == "" {
		return "", false
	}
	return answer.Text, true
}

// addressed is true in private chats and when the message names the bot.
func (t *TelegramAdapter) addressed(botName string, m *tgbotapi.Message) bool {
	if m.Chat.IsPrivate() || chat.Addressed(m.Text, t.cfg.Name) {
		return true
	}
	return botName != "" && chat.Addressed(m.Text, "@"+botName)
}
