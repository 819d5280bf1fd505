// Package slack connects to Slack over Socket Mode, so no public endpoint
// is needed.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

// Config is read from the YAML file named by "connect slack <config>".
type Config struct {
	Token        string        `yaml:"token"`
	AppToken     string        `yaml:"app_token"`
	Name         string        `yaml:"name"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// LoadConfig reads and checks a Slack config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Token == "" {
		return Config{}, errors.New("slack config: token is required")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return Config{}, errors.New("slack config: app_token (xapp-...) is required for socket mode")
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 30 * time.Second
	}
	return cfg, nil
}

type Adapter struct {
	cfg   Config
	delay time.Duration
	log   *logging.Logger
}

func New(cfg Config, delay time.Duration, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.Global()
	}
	return &Adapter{cfg: cfg, delay: delay, log: log.WithComponent("slack")}
}

func (a *Adapter) Name() string {
	return "slack"
}

// Run holds a Socket Mode connection until ctx is done.
func (a *Adapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	return chat.Reconnect(ctx, a.log, a.delay, func(ctx context.Context) error {
		return a.connect(ctx, inbound)
	})
}

func (a *Adapter) connect(ctx context.Context, inbound chan<- chat.Message) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := slack.New(a.cfg.Token, slack.OptionAppLevelToken(a.cfg.AppToken))
	auth, err := client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.log.Info("Authorized as %s in %s", auth.User, auth.Team)

	socket := socketmode.New(client)
	runErr := make(chan error, 1)
	go func() { runErr <- socket.RunContext(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return fmt.Errorf("socket mode: %w", err)
		case evt, ok := <-socket.Events:
			if !ok {
				return errors.New("socket mode event stream closed")
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				a.log.Info("Connected to Slack")
			case socketmode.EventTypeConnectionError:
				a.log.Warn("Slack connection error")
			case socketmode.EventTypeEventsAPI:
				if evt.Request != nil {
					socket.Ack(*evt.Request)
				}
				a.handleEvent(ctx, client, auth.UserID, evt, inbound)
			}
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, client *slack.Client, botID string, evt socketmode.Event, inbound chan<- chat.Message) {
	payload, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok || payload.Type != slackevents.CallbackEvent {
		return
	}
	// Mentions also arrive as plain message events, so only those are read.
	ev, ok := payload.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	reply, ok := a.route(ctx, botID, ev, inbound)
	if !ok {
		return
	}
	opts := []slack.MsgOption{slack.MsgOptionText(reply, false)}
	if ev.ThreadTimeStamp != "" {
		opts = append(opts, slack.MsgOptionTS(ev.ThreadTimeStamp))
	}
	if _, _, err := client.PostMessageContext(ctx, ev.Channel, opts...); err != nil {
		a.log.Warn("Send to %s failed: %v", ev.Channel, err)
	}
}

// route forwards one message and returns the reply to post, if any.
func (a *Adapter) route(ctx context.Context, botID string, ev *slackevents.MessageEvent, inbound chan<- chat.Message) (string, bool) {
	// Edits, joins and bot chatter carry a subtype or a bot id.
	if ev.BotID != "" || ev.SubType != "" || ev.User == botID || strings.TrimSpace(ev.Text) == "" {
		return "", false
	}
	text := stripMention(ev.Text, botID)
	msg := chat.Message{Source: ev.Channel, Author: ev.User, Content: text}

	if !a.addressed(botID, ev) {
		if err := chat.Post(ctx, inbound, msg); err != nil {
			a.log.Debug("Dropped message: %v", err)
		}
		return "", false
	}

	askCtx, cancel := context.WithTimeout(ctx, a.cfg.ReplyTimeout)
	defer cancel()
	answer, err := chat.Ask(askCtx, inbound, msg)
	if err != nil {
		a.log.Warn("No reply for %s: %v", ev.User, err)
		return "", false
	}
	if !answer.OK || answer.Text == "" {
		return "", false
	}
	return answer.Text, true
}

// addressed is true in direct messages, on a mention and when the bot is named.
func (a *Adapter) addressed(botID string, ev *slackevents.MessageEvent) bool {
	if ev.ChannelType == "im" || chat.Addressed(ev.Text, a.cfg.Name) {
		return true
	}
	return botID != "" && strings.Contains(ev.Text, "<@"+botID+">")
}

func stripMention(text, botID string) string {
	if botID == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botID+">", ""))
}
