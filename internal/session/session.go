// Package session owns the lexicon. Run is the only goroutine that reads or
// writes it; everything else reaches it through Submit for operator commands
// or Inbound for chat traffic.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/config"
	"github.com/normanking/seifmios/internal/lexicon"
	"github.com/normanking/seifmios/internal/logging"
	"github.com/normanking/seifmios/internal/metrics"
)

var (
	// ErrClosed is returned by Submit once Run has returned.
	ErrClosed = errors.New("session closed")
	// ErrRunning is returned by Snapshot while Run still owns the lexicon.
	ErrRunning = errors.New("session still running")
)

// Connector starts chat transports for the connect command. target is the
// optional second argument, e.g. a config file path.
type Connector interface {
	Connect(kind, target string) error
}

// Store persists lexicon snapshots for the save and load commands.
type Store interface {
	Save(ctx context.Context, path string, snap *lexicon.Snapshot) error
	Load(ctx context.Context, path string) (*lexicon.Snapshot, error)
}

// Options configures a Session. Zero values fall back to config defaults.
type Options struct {
	Engine config.EngineConfig
	// Source and Author name the console identity used by tell, respond and import.
	Source string
	Author string

	// Lexicon is the starting lexicon, e.g. one restored at startup.
	Lexicon *lexicon.Lexicon

	Store     Store
	StorePath string
	Connector Connector
	Logger    *logging.Logger
}

// Session is the single writer over a lexicon.
type Session struct {
	lex    *lexicon.Lexicon
	rng    *rand.Rand
	params lexicon.Params

	thinkTimes int
	thinkPause time.Duration

	sourceName string
	authorName string
	console    lexicon.SourceID
	me         lexicon.AuthorID

	store     Store
	storePath string
	connector Connector
	log       *logging.Logger

	requests chan request
	inbound  chan chat.Message
	done     chan struct{}
}

type request struct {
	ctx   context.Context
	args  []string
	lines chan string
}

// emit hands one output line to the requester, dropping it if they left.
func (r request) emit(line string) {
	select {
	case r.lines <- line:
	case <-r.ctx.Done():
	}
}

// New creates a session. Call Run to start it.
func New(opts Options) *Session {
	defaults := config.Default()
	engine := opts.Engine
	if engine == (config.EngineConfig{}) {
		engine = defaults.Engine
	}
	if opts.Source == "" {
		opts.Source = defaults.Console.Source
	}
	if opts.Author == "" {
		opts.Author = defaults.Console.Author
	}
	if opts.Logger == nil {
		opts.Logger = logging.Global()
	}
	lex := opts.Lexicon
	if lex == nil {
		lex = lexicon.New()
	}

	s := &Session{
		rng:        rand.New(rand.NewPCG(engine.Seed, engine.Seed^0x9e3779b97f4a7c15)),
		params:     engine.Params(),
		thinkTimes: engine.ThinkTimes,
		thinkPause: engine.ThinkPause,
		sourceName: opts.Source,
		authorName: opts.Author,
		store:      opts.Store,
		storePath:  opts.StorePath,
		connector:  opts.Connector,
		log:        opts.Logger.WithComponent("session"),
		requests:   make(chan request),
		inbound:    make(chan chat.Message, max(engine.InboundBuffer, 1)),
		done:       make(chan struct{}),
	}
	s.adopt(lex)
	return s
}

// adopt makes lex the current lexicon and resolves the console identity in it.
func (s *Session) adopt(lex *lexicon.Lexicon) {
	s.lex = lex
	s.console = lex.Source(s.sourceName)
	s.me = lex.Author(s.console, s.authorName)
	metrics.Messages.Set(float64(lex.Len()))
	metrics.LiveCategories.Set(float64(lex.LiveCategories()))
}

// Inbound is where chat transports deliver messages.
func (s *Session) Inbound() chan<- chat.Message { return s.inbound }

// Submit queues a command and returns its output. The channel is closed when
// the command has finished; cancelling ctx stops delivery of further lines.
func (s *Session) Submit(ctx context.Context, args []string) (<-chan string, error) {
	req := request{ctx: ctx, args: args, lines: make(chan string, 16)}
	select {
	case s.requests <- req:
		out := make(chan string)
		go relay(ctx, req.lines, out)
		return out, nil
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// relay queues output between the owner loop and the requester without
// bound, so a slow reader never stalls learning or chat handling.
func relay(ctx context.Context, in <-chan string, out chan<- string) {
	defer close(out)
	var queue []string
	for in != nil || len(queue) > 0 {
		var send chan<- string
		var next string
		if len(queue) > 0 {
			send, next = out, queue[0]
		}
		select {
		case line, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, line)
		case send <- next:
			queue = queue[1:]
		case <-ctx.Done():
			return
		}
	}
}

// Exec runs a command and collects its output.
func (s *Session) Exec(ctx context.Context, args ...string) ([]string, error) {
	lines, err := s.Submit(ctx, args)
	if err != nil {
		return nil, err
	}
	var out []string
	for line := range lines {
		out = append(out, line)
	}
	return out, ctx.Err()
}

// Run processes commands and chat messages and thinks while idle. It returns
// nil when ctx is done or a quit command arrives.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.log.Info("Session started with %d messages", s.lex.Len())

	pause := time.NewTimer(s.thinkPause)
	defer pause.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		busy := false
		select {
		case req := <-s.requests:
			busy = true
			if s.execute(req) {
				return nil
			}
		default:
		}
		select {
		case msg := <-s.inbound:
			busy = true
			s.handleChat(msg)
		default:
		}
		if busy {
			continue
		}

		// An empty lexicon has nothing to think about, so wait for input.
		var wake <-chan time.Time
		if s.lex.Len() > 0 {
			s.think()
			pause.Reset(s.thinkPause)
			wake = pause.C
		}

		select {
		case <-ctx.Done():
			return nil
		case req := <-s.requests:
			if s.execute(req) {
				return nil
			}
		case msg := <-s.inbound:
			s.handleChat(msg)
		case <-wake:
		}
	}
}

// Snapshot captures the lexicon after Run has returned, for the final save.
func (s *Session) Snapshot() (*lexicon.Snapshot, error) {
	select {
	case <-s.done:
		return s.lex.Snapshot(), nil
	default:
		return nil, ErrRunning
	}
}

var (
	linked   = metrics.LinkChanges.WithLabelValues("linked")
	unlinked = metrics.LinkChanges.WithLabelValues("unlinked")
)

func (s *Session) think() {
	for range s.thinkTimes {
		r := s.lex.Think(s.rng, s.params)
		metrics.ThinkSteps.Inc()
		metrics.Merges.Add(float64(r.Merges))
		linked.Add(float64(r.Linked))
		unlinked.Add(float64(r.Unlinked))
	}
	metrics.LiveCategories.Set(float64(s.lex.LiveCategories()))
}

// handleChat tells the message and answers it when a reply is wanted.
func (s *Session) handleChat(msg chat.Message) {
	src := s.lex.Source(msg.Source)
	author := s.lex.Author(src, msg.Author)
	s.lex.Tell(src, author, msg.Content)
	metrics.MessagesTold.WithLabelValues("chat").Inc()
	metrics.Messages.Set(float64(s.lex.Len()))

	if msg.Reply == nil {
		return
	}
	u, ok := s.lex.Respond(s.rng, src, s.params)
	err := msg.Reply.Send(chat.Answer{Text: u.Drifted, OK: ok})
	switch {
	case errors.Is(err, chat.ErrReplyDropped):
		s.log.Warn("Reply receiver from %s closed unexpectedly", msg.Source)
		metrics.RepliesDropped.Inc()
	case err != nil:
		s.log.Warn("Reply to %s not delivered: %v", msg.Source, err)
	default:
		metrics.Replies.Inc()
	}
}
