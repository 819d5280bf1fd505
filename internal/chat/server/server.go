// Package server accepts chat lines over plain TCP. Each line is a JSON object
// {"source", "author", "message"}; nothing is ever sent back.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/logging"
)

// Line is one inbound chat line.
type Line struct {
	Source  string `json:"source"`
	Author  string `json:"author"`
	Message string `json:"message"`
}

// Adapter listens for chat lines on Address.
type Adapter struct {
	Address string
	delay   time.Duration
	log     *logging.Logger
}

// New creates a listener adapter. delay is the wait before listening again
// after the listener fails.
func New(address string, delay time.Duration, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.Global()
	}
	return &Adapter{
		Address: address,
		delay:   delay,
		log:     log.WithComponent("server").WithField("addr", address),
	}
}

func (a *Adapter) Name() string { return "server" }

// Run listens until ctx is done.
func (a *Adapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	return chat.Reconnect(ctx, a.log, a.delay, func(ctx context.Context) error {
		ln, err := net.Listen("tcp", a.Address)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		a.log.Info("Listening for chat lines")
		return a.Serve(ctx, ln, inbound)
	})
}

// Serve accepts connections on ln until ctx is done or Accept fails.
func (a *Adapter) Serve(ctx context.Context, ln net.Listener, inbound chan<- chat.Message) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.read(ctx, conn, inbound)
		}()
	}
}

func (a *Adapter) read(ctx context.Context, conn net.Conn, inbound chan<- chat.Message) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := a.log.WithField("peer", conn.RemoteAddr().String())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var line Line
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			log.Warn("Error parsing json: %v", err)
			continue
		}
		log.Debug("%s <%s> %s", line.Source, line.Author, line.Message)
		msg := chat.Message{Source: line.Source, Author: line.Author, Content: line.Message}
		if err := chat.Post(ctx, inbound, msg); err != nil {
			return
		}
	}
}
