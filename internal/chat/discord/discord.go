package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

// quitCommand stops the adapter when posted in any channel it can read.
const quitCommand = "!quit"

// Config is read from the YAML file named by "connect discord <config>".
type Config struct {
	Token string `yaml:"token"`
	// Name is what users type to address the bot, besides mentioning it.
	Name         string        `yaml:"name"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// LoadConfig reads and checks a Discord config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Token == "" {
		return Config{}, errors.New("discord config: token is required")
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 30 * time.Second
	}
	return cfg, nil
}

type DiscordAdapter struct {
	cfg   Config
	delay time.Duration
	log   *logging.Logger

	stopOnce sync.Once
	stop     context.CancelFunc
}

func NewDiscordAdapter(cfg Config, delay time.Duration, log *logging.Logger) *DiscordAdapter {
	if log == nil {
		log = logging.Global()
	}
	return &DiscordAdapter{
		cfg:   cfg,
		delay: delay,
		log:   log.WithComponent("discord"),
	}
}

func (d *DiscordAdapter) Name() string {
	return "discord"
}

// Run opens the gateway session until ctx is done or someone posts !quit.
// discordgo resumes dropped sessions itself; Open is retried after the delay.
func (d *DiscordAdapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.stop = cancel

	return chat.Reconnect(ctx, d.log, d.delay, func(ctx context.Context) error {
		session, err := discordgo.New("Bot " + d.cfg.Token)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent

		session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
			d.onMessage(ctx, s, m, inbound)
		})

		if err := session.Open(); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		d.log.Info("Ready")
		<-ctx.Done()
		return session.Close()
	})
}

func (d *DiscordAdapter) onMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, inbound chan<- chat.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	d.log.Debug("%s says: %s", m.Author.Username, m.Content)

	if m.Content == quitCommand {
		d.log.Info("Quitting on request from %s", m.Author.Username)
		d.stopOnce.Do(d.stop)
		return
	}

	msg := chat.Message{Source: m.ChannelID, Author: m.Author.Username, Content: m.Content}
	botID := ""
	if s.State != nil && s.State.User != nil {
		botID = s.State.User.ID
	}
	if !d.addressed(botID, m) {
		if err := chat.Post(ctx, inbound, msg); err != nil {
			d.log.Debug("Dropped message: %v", err)
		}
		return
	}

	askCtx, cancel := context.WithTimeout(ctx, d.cfg.ReplyTimeout)
	defer cancel()
	answer, err := chat.Ask(askCtx, inbound, msg)
	if err != nil {
		d.log.Warn("No reply for %s: %v", m.Author.Username, err)
		return
	}
	if !answer.OK || answer.Text == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, answer.Text); err != nil {
		d.log.Warn("Send to %s failed: %v", m.ChannelID, err)
	}
}

// addressed is true for direct messages, mentions, and messages containing
// the configured name.
func (d *DiscordAdapter) addressed(botID string, m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return true
	}
	if chat.Addressed(m.Content, d.cfg.Name) {
		return true
	}
	return d.isMentioned(botID, m.Mentions)
}

func (d *DiscordAdapter) isMentioned(botID string, mentions []*discordgo.User) bool {
	if botID == "" {
		return false
	}
	for _, mention := range mentions {
		if mention.ID == botID {
			return true
		}
	}
	return false
}
