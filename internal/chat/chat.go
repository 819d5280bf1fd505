// Package chat defines what chat transports hand to the session: a message,
// plus an optional one-shot reply handle the transport blocks on when it was
// addressed directly.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/normanking/seifmios/internal/logging"
)

var (
	// ErrReplyDropped is returned by Reply.Send after the waiting side gave up.
	ErrReplyDropped = errors.New("reply receiver closed")
	// ErrReplySent is returned by a second Reply.Send.
	ErrReplySent = errors.New("reply already sent")
)

// Message is one line of chat headed for the session.
type Message struct {
	Source  string
	Author  string
	Content string
	// Reply is nil when the transport does not want an answer.
	Reply *Reply
}

// Answer is what comes back through a Reply. OK is false when the session had
// nothing to say.
type Answer struct {
	Text string
	OK   bool
}

// Reply is a one-shot channel from the session back to one transport.
type Reply struct {
	ch        chan Answer
	abandoned chan struct{}
	once      sync.Once
}

// NewReply returns an unused reply handle.
func NewReply() *Reply {
	return &Reply{
		ch:        make(chan Answer, 1),
		abandoned: make(chan struct{}),
	}
}

// Send delivers the answer without blocking.
func (r *Reply) Send(a Answer) error {
	select {
	case <-r.abandoned:
		return ErrReplyDropped
	default:
	}
	select {
	case r.ch <- a:
		return nil
	default:
		return ErrReplySent
	}
}

// Wait blocks until the answer arrives or ctx ends. A cancelled wait abandons
// the handle, so a later Send reports ErrReplyDropped.
func (r *Reply) Wait(ctx context.Context) (Answer, error) {
	select {
	case a := <-r.ch:
		return a, nil
	case <-ctx.Done():
		r.Abandon()
		return Answer{}, ctx.Err()
	}
}

// Abandon tells the session nobody is listening any more.
func (r *Reply) Abandon() {
	r.once.Do(func() { close(r.abandoned) })
}

// Adapter is a long-running chat transport. Run returns when ctx is done;
// connection failures are handled inside Run.
type Adapter interface {
	Name() string
	Run(ctx context.Context, inbound chan<- Message) error
}

// Post hands a message to the session without waiting for an answer.
func Post(ctx context.Context, inbound chan<- Message, msg Message) error {
	select {
	case inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ask hands a message to the session and blocks for its answer. At most one
// question per caller is in flight, which is the backpressure transports rely on.
func Ask(ctx context.Context, inbound chan<- Message, msg Message) (Answer, error) {
	msg.Reply = NewReply()
	if err := Post(ctx, inbound, msg); err != nil {
		return Answer{}, err
	}
	return msg.Reply.Wait(ctx)
}

// Addressed reports whether content mentions name, ignoring case.
func Addressed(content, name string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(name))
}

// Reconnect runs connect until ctx ends, waiting delay after each failure or
// disconnect.
func Reconnect(ctx context.Context, log *logging.Logger, delay time.Duration, connect func(context.Context) error) error {
	for {
		err := connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn("Connection lost: %v; retrying in %s", err, delay)
		} else {
			log.Info("Disconnected; retrying in %s", delay)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}
