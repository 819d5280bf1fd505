package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/normanking/seifmios/internal/logging"
)

// Submitter queues a command and streams its output, closing the channel
// when the command is done.
type Submitter interface {
	Submit(ctx context.Context, args []string) (<-chan string, error)
}

// Server answers remote commands by handing them to a session.
type Server struct {
	session Submitter
	log     *logging.Logger
}

// NewServer creates a server for session.
func NewServer(session Submitter, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Global()
	}
	return &Server{session: session, log: log.WithComponent("remote")}
}

// ListenAndServe listens on address and serves until ctx is done. A stale
// unix socket file left by a previous run is removed first.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	network := Network(address)
	if network == "unix" {
		if err := os.MkdirAll(filepath.Dir(address), 0700); err != nil {
			return fmt.Errorf("create socket directory: %w", err)
		}
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("remote listen on %s: %w", address, err)
	}
	s.log.Info("Accepting commands on %s %s", network, address)
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. Open connections are
// closed on the way out.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("remote accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log := s.log.WithField("peer", conn.RemoteAddr().String())
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		// A final request without a newline is still answered.
		line, err := reader.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return
		}
		id := uuid.NewString()
		if err := s.answer(ctx, log.WithField("request", id), line, writer); err != nil {
			log.Debug("Connection closed: %v", err)
			return
		}
	}
}

// answer runs one request and writes its framed response.
func (s *Server) answer(ctx context.Context, log *logging.Logger, line []byte, w *bufio.Writer) error {
	args, err := decodeRequest(line)
	if err != nil {
		log.Warn("Rejected request: %v", err)
		return writeResponse(w, []string{"Ignored: " + ErrBadRequest.Error()})
	}
	log.Debug("Command %q", args)

	out, err := s.session.Submit(ctx, args)
	if err != nil {
		return writeResponse(w, []string{"Ignored: " + err.Error()})
	}
	for l := range out {
		if _, err := w.WriteString(frame(l) + "\n"); err != nil {
			return err
		}
		// Flush as we go so long imports show progress.
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return writeResponse(w, nil)
}

func writeResponse(w *bufio.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := w.WriteString(frame(l) + "\n"); err != nil {
			return err
		}
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
