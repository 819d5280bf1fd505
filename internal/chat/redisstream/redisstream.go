// Package redisstream carries chat over Redis Streams. Other services XADD
// messages to an input stream; answers go to a reply stream.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/logging"
)

// Config is read from the YAML file named by "connect redis <config>".
type Config struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Stream       string        `yaml:"stream"`
	ReplyStream  string        `yaml:"reply_stream"`
	Group        string        `yaml:"group"`
	Consumer     string        `yaml:"consumer"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// LoadConfig reads a Redis config file and fills in defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := config.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Stream == "" {
		c.Stream = "seifmios:in"
	}
	if c.ReplyStream == "" {
		c.ReplyStream = "seifmios:out"
	}
	if c.Group == "" {
		c.Group = "seifmios"
	}
	if c.Consumer == "" {
		c.Consumer = "seifmios-1"
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = 30 * time.Second
	}
	return c
}

// Entry is one decoded stream message.
type Entry struct {
	ID      string
	Source  string
	Author  string
	Message string
	Ask     bool
}

// ErrMalformedEntry marks a stream entry without a source or message.
var ErrMalformedEntry = errors.New("malformed stream entry")

// parseEntry decodes the fields of one XREADGROUP entry. The "ask" field is
// any value strconv.ParseBool accepts.
func parseEntry(id string, values map[string]interface{}) (Entry, error) {
	str := func(key string) string {
		switch v := values[key].(type) {
		case string:
			return v
		case []byte:
			return string(v)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	}
	e := Entry{ID: id, Source: str("source"), Author: str("author"), Message: str("message")}
	if e.Source == "" || strings.TrimSpace(e.Message) == "" {
		return Entry{}, fmt.Errorf("%w %s", ErrMalformedEntry, id)
	}
	if e.Author == "" {
		e.Author = e.Source
	}
	if raw := str("ask"); raw != "" {
		ask, err := strconv.ParseBool(raw)
		if err != nil {
			return Entry{}, fmt.Errorf("%w %s: ask=%q", ErrMalformedEntry, id, raw)
		}
		e.Ask = ask
	}
	return e, nil
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
	cfg = cfg.withDefaults()
	return &Adapter{cfg: cfg, delay: delay, log: log.WithComponent("redis").WithField("stream", cfg.Stream)}
}

func (a *Adapter) Name() string {
	return "redis"
}

// Run consumes the input stream until ctx is done, reconnecting on failure.
func (a *Adapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	return chat.Reconnect(ctx, a.log, a.delay, func(ctx context.Context) error {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Addr,
			Password: a.cfg.Password,
			DB:       a.cfg.DB,
		})
		defer rdb.Close()
		return a.consume(ctx, rdb, inbound)
	})
}

func (a *Adapter) consume(ctx context.Context, rdb *redis.Client, inbound chan<- chat.Message) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	// BUSYGROUP just means the group is already there.
	if err := rdb.XGroupCreateMkStream(ctx, a.cfg.Stream, a.cfg.Group, "0").Err(); err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	a.log.Info("Consuming %s as %s/%s", a.cfg.Stream, a.cfg.Group, a.cfg.Consumer)

	for ctx.Err() == nil {
		results, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    a.cfg.Group,
			Consumer: a.cfg.Consumer,
			Streams:  []string{a.cfg.Stream, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xreadgroup failed: %w", err)
		}

		for _, result := range results {
			for _, msg := range result.Messages {
				if err := a.handle(ctx, rdb, msg, inbound); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// handle forwards one entry and acks it. Malformed entries are acked and
// dropped so they are not redelivered forever.
func (a *Adapter) handle(ctx context.Context, rdb *redis.Client, msg redis.XMessage, inbound chan<- chat.Message) error {
	entry, err := parseEntry(msg.ID, msg.Values)
	if err != nil {
		a.log.Warn("Skipping entry: %v", err)
		return rdb.XAck(ctx, a.cfg.Stream, a.cfg.Group, msg.ID).Err()
	}

	out := chat.Message{Source: entry.Source, Author: entry.Author, Content: entry.Message}
	if !entry.Ask {
		if err := chat.Post(ctx, inbound, out); err != nil {
			return nil
		}
		return rdb.XAck(ctx, a.cfg.Stream, a.cfg.Group, msg.ID).Err()
	}

	askCtx, cancel := context.WithTimeout(ctx, a.cfg.ReplyTimeout)
	answer, err := chat.Ask(askCtx, inbound, out)
	cancel()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		a.log.Warn("No reply for %s: %v", entry.ID, err)
	} else if answer.OK {
		if err := rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: a.cfg.ReplyStream,
			Values: replyValues(entry, answer.Text),
		}).Err(); err != nil {
			return fmt.Errorf("xadd failed: %w", err)
		}
	}
	return rdb.XAck(ctx, a.cfg.Stream, a.cfg.Group, msg.ID).Err()
}

func replyValues(e Entry, text string) map[string]interface{} {
	return map[string]interface{}{
		"source":      e.Source,
		"in_reply_to": e.ID,
		"message":     text,
	}
}
