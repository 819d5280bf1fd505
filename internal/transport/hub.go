// Package transport starts chat adapters on request and keeps them running
// until shutdown.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/chat/discord"
	"github.com/normanking/seifmios/internal/chat/irc"
	"github.com/normanking/seifmios/internal/chat/redisstream"
	"github.com/normanking/seifmios/internal/chat/server"
	"github.com/normanking/seifmios/internal/chat/slack"
	"github.com/normanking/seifmios/internal/chat/telegram"
	"github.com/normanking/seifmios/internal/chat/webchat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

// Hub owns every running adapter. Connect never blocks: adapters run in their
// own goroutines and feed the session through inbound.
type Hub struct {
	ctx     context.Context
	inbound chan<- chat.Message
	cfg     config.TransportsConfig
	log     *logging.Logger

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

// NewHub returns a hub whose adapters stop when ctx is done.
func NewHub(ctx context.Context, inbound chan<- chat.Message, cfg config.TransportsConfig, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Global()
	}
	return &Hub{
		ctx:     ctx,
		inbound: inbound,
		cfg:     cfg,
		log:     log.WithComponent("transport"),
		running: make(map[string]bool),
	}
}

// Connect builds the adapter for kind and starts it. target is the adapter's
// config file, or the listen address for webchat; empty means the configured
// default.
func (h *Hub) Connect(kind, target string) error {
	adapter, key, err := h.build(kind, target)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx.Err() != nil {
		return fmt.Errorf("shutting down")
	}
	if h.running[key] {
		return fmt.Errorf("%s already running", key)
	}
	h.running[key] = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.running, key)
			h.mu.Unlock()
		}()
		h.log.Info("Starting %s", key)
		if err := adapter.Run(h.ctx, h.inbound); err != nil {
			h.log.Error("%s stopped: %v", key, err)
			return
		}
		h.log.Debug("%s stopped", key)
	}()
	return nil
}

// build returns the adapter and the key that keeps duplicates out.
func (h *Hub) build(kind, target string) (chat.Adapter, string, error) {
	delay := h.cfg.ReconnectDelay
	switch kind {
	case "server":
		return server.New(h.cfg.Server.Address, delay, h.log), "server", nil

	case "webchat":
		if target == "" {
			target = h.cfg.WebChat.Address
		}
		return webchat.NewWebChatAdapter(target, h.log), "webchat " + target, nil

	case "irc":
		path := pick(target, h.cfg.IRC.Config)
		cfg, err := irc.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return irc.New(cfg, delay, h.log), "irc " + path, nil

	case "discord":
		path := pick(target, h.cfg.Discord.Config)
		cfg, err := discord.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return discord.NewDiscordAdapter(cfg, delay, h.log), "discord " + path, nil

	case "telegram":
		path := pick(target, h.cfg.Telegram.Config)
		cfg, err := telegram.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return telegram.NewTelegramAdapter(cfg, delay, h.log), "telegram " + path, nil

	case "slack":
		path := pick(target, h.cfg.Slack.Config)
		cfg, err := slack.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return slack.New(cfg, delay, h.log), "slack " + path, nil

	case "redis":
		path := pick(target, h.cfg.Redis.Config)
		cfg, err := redisstream.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return redisstream.New(cfg, delay, h.log), "redis " + path, nil
	}
	return nil, "", fmt.Errorf("unknown transport %q", kind)
}

func pick(target, fallback string) string {
	if target != "" {
		return target
	}
	return config.ExpandPath(fallback)
}

// AutoConnect starts every transport marked auto_connect. Failures are
// logged and do not stop the others.
func (h *Hub) AutoConnect() {
	auto := []struct {
		kind string
		on   bool
	}{
		{"server", h.cfg.Server.AutoConnect},
		{"webchat", h.cfg.WebChat.AutoConnect},
		{"irc", h.cfg.IRC.AutoConnect},
		{"discord", h.cfg.Discord.AutoConnect},
		{"telegram", h.cfg.Telegram.AutoConnect},
		{"slack", h.cfg.Slack.AutoConnect},
		{"redis", h.cfg.Redis.AutoConnect},
	}
	for _, a := range auto {
		if !a.on {
			continue
		}
		if err := h.Connect(a.kind, ""); err != nil {
			h.log.Warn("Auto-connect %s failed: %v", a.kind, err)
		}
	}
}

// Running lists the adapters currently up.
func (h *Hub) Running() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.running))
	for k := range h.running {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Wait blocks until every adapter has returned. Call after cancelling the
// hub's context.
func (h *Hub) Wait() {
	h.wg.Wait()
}
