// Package irc connects seifmios to an IRC network. Every PRIVMSG is told to
// the session; messages that mention the bot's nick, and private messages,
// are answered.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gopkg.in/irc.v4"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

// Config is read from the YAML file named by "connect irc <config>".
type Config struct {
	// Server is host:port.
	Server   string   `yaml:"server"`
	TLS      bool     `yaml:"tls"`
	Nick     string   `yaml:"nick"`
	User     string   `yaml:"user"`
	Name     string   `yaml:"name"`
	Pass     string   `yaml:"pass"`
	Channels []string `yaml:"channels"`
	// ReplyTimeout bounds how long a question waits for the session.
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// LoadConfig reads and checks an IRC config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Server == "" {
		return Config{}, errors.New("irc config: server is required")
	}
	if cfg.Nick == "" {
		return Config{}, errors.New("irc config: nick is required")
	}
	if cfg.User == "" {
		cfg.User = cfg.Nick
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Nick
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 30 * time.Second
	}
	return cfg, nil
}

// Adapter is one IRC connection, redialled after a delay when it drops.
type Adapter struct {
	cfg   Config
	delay time.Duration
	log   *logging.Logger
}

// New creates an IRC adapter.
func New(cfg Config, delay time.Duration, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.Global()
	}
	return &Adapter{
		cfg:   cfg,
		delay: delay,
		log:   log.WithComponent("irc").WithField("server", cfg.Server),
	}
}

func (a *Adapter) Name() string { return "irc" }

// Run keeps the connection up until ctx is done.
func (a *Adapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	return chat.Reconnect(ctx, a.log, a.delay, func(ctx context.Context) error {
		return a.connect(ctx, inbound)
	})
}

func (a *Adapter) connect(ctx context.Context, inbound chan<- chat.Message) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	a.log.Info("Connected as %s", a.cfg.Nick)
	client := irc.NewClient(conn, irc.ClientConfig{
		Nick: a.cfg.Nick,
		Pass: a.cfg.Pass,
		User: a.cfg.User,
		Name: a.cfg.Name,
		Handler: irc.HandlerFunc(func(c *irc.Client, m *irc.Message) {
			a.handle(ctx, c, m, inbound)
		}),
	})
	if err := client.RunContext(ctx); err != nil {
		return fmt.Errorf("irc session: %w", err)
	}
	return nil
}

func (a *Adapter) dial(ctx context.Context) (net.Conn, error) {
	if a.cfg.TLS {
		host, _, _ := net.SplitHostPort(a.cfg.Server)
		d := &tls.Dialer{Config: &tls.Config{ServerName: host}}
		conn, err := d.DialContext(ctx, "tcp", a.cfg.Server)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", a.cfg.Server, err)
		}
		return conn, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", a.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.cfg.Server, err)
	}
	return conn, nil
}

// handle runs on the client's read loop, so an addressed message holds the
// connection until the session answers.
func (a *Adapter) handle(ctx context.Context, c *irc.Client, m *irc.Message, inbound chan<- chat.Message) {
	switch m.Command {
	case "001":
		for _, ch := range a.cfg.Channels {
			if err := c.Writef("JOIN %s", ch); err != nil {
				a.log.Warn("Join %s failed: %v", ch, err)
			}
		}
	case "PRIVMSG":
		target, reply, ok := a.route(ctx, c.CurrentNick(), m, inbound)
		if !ok {
			return
		}
		err := c.WriteMessage(&irc.Message{Command: "PRIVMSG", Params: []string{target, reply}})
		if err != nil {
			a.log.Warn("Reply to %s failed: %v", target, err)
		}
	}
}

// route forwards a PRIVMSG and returns the reply to send, if any.
func (a *Adapter) route(ctx context.Context, nick string, m *irc.Message, inbound chan<- chat.Message) (target, reply string, ok bool) {
	if len(m.Params) < 2 || m.Prefix == nil {
		return "", "", false
	}
	sender := m.Prefix.Name
	target = m.Params[0]
	text := m.Trailing()

	private := strings.EqualFold(target, nick)
	if private {
		target = sender
	}
	msg := chat.Message{Source: target, Author: sender, Content: text}

	if !private && !chat.Addressed(text, nick) {
		if err := chat.Post(ctx, inbound, msg); err != nil {
			a.log.Debug("Dropped message from %s: %v", sender, err)
		}
		return "", "", false
	}

	askCtx, cancel := context.WithTimeout(ctx, a.cfg.ReplyTimeout)
	defer cancel()
	answer, err := chat.Ask(askCtx, inbound, msg)
	if err != nil {
		a.log.Warn("No reply for %s: %v", sender, err)
		return "", "", false
	}
	if !answer.OK || !sendable(answer.Text) {
		return "", "", false
	}
	return target, answer.Text, true
}

// sendable keeps generated text from being read as a bot or client command.
func sendable(reply string) bool {
	return reply != "" && reply[0] != '.' && reply[0] != '/'
}
