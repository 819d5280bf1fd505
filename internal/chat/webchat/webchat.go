package webchat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/logging"
)

// Message types on the socket. A "message" is answered; "say" is only told.
const (
	TypeMessage = "message"
	TypeSay     = "say"
	TypeSilence = "silence"
	TypeError   = "error"
)

type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	UserID  string `json:"user_id,omitempty"`
}

// WebChatAdapter serves a WebSocket chat at /ws. Every connection is its own
// source, so each visitor gets a separate conversation.
type WebChatAdapter struct {
	addr         string
	replyTimeout time.Duration
	upgrader     websocket.Upgrader
	log          *logging.Logger

	connMux sync.Mutex
	conns   map[string]*websocket.Conn
}

func NewWebChatAdapter(addr string, log *logging.Logger) *WebChatAdapter {
	if log == nil {
		log = logging.Global()
	}
	return &WebChatAdapter{
		addr:         addr,
		replyTimeout: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // local tool, any page may connect
		},
		log:   log.WithComponent("webchat").WithField("addr", addr),
		conns: make(map[string]*websocket.Conn),
	}
}

func (w *WebChatAdapter) Name() string {
	return "webchat"
}

// Run serves until ctx is done.
func (w *WebChatAdapter) Run(ctx context.Context, inbound chan<- chat.Message) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("webchat listen on %s: %w", w.addr, err)
	}
	return w.Serve(ctx, ln, inbound)
}

// Serve serves on ln until ctx is done.
func (w *WebChatAdapter) Serve(ctx context.Context, ln net.Listener, inbound chan<- chat.Message) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", w.Handler(ctx, inbound))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	w.log.Info("WebChat listening on %s", ln.Addr())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webchat server: %w", err)
	}
	return nil
}

// Handler upgrades requests and relays their messages to inbound.
func (w *WebChatAdapter) Handler(ctx context.Context, inbound chan<- chat.Message) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := w.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			w.log.Warn("WebSocket upgrade failed: %v", err)
			return
		}
		w.serveConn(ctx, conn, r.URL.Query().Get("user_id"), inbound)
	})
}

func (w *WebChatAdapter) serveConn(ctx context.Context, conn *websocket.Conn, userID string, inbound chan<- chat.Message) {
	connID := uuid.NewString()
	if userID == "" {
		userID = "anonymous"
	}

	w.connMux.Lock()
	w.conns[connID] = conn
	w.connMux.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		w.connMux.Lock()
		delete(w.conns, connID)
		w.connMux.Unlock()
		conn.Close()
	}()

	log := w.log.WithField("conn", connID)
	log.Debug("%s connected", userID)
	source := "webchat/" + connID

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Debug("WebSocket read error: %v", err)
			}
			return
		}

		out := chat.Message{Source: source, Author: userID, Content: msg.Content}
		var reply WSMessage
		switch msg.Type {
		case TypeSay:
			if err := chat.Post(ctx, inbound, out); err != nil {
				return
			}
			continue
		case TypeMessage:
			askCtx, cancel := context.WithTimeout(ctx, w.replyTimeout)
			answer, err := chat.Ask(askCtx, inbound, out)
			cancel()
			switch {
			case err != nil:
				log.Warn("No reply for %s: %v", userID, err)
				reply = WSMessage{Type: TypeSilence}
			case !answer.OK:
				reply = WSMessage{Type: TypeSilence}
			default:
				reply = WSMessage{Type: TypeMessage, Content: answer.Text}
			}
		default:
			reply = WSMessage{Type: TypeError, Content: fmt.Sprintf("unknown message type %q", msg.Type)}
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug("WebSocket write error: %v", err)
			return
		}
	}
}

// Connections reports how many sockets are open.
func (w *WebChatAdapter) Connections() int {
	w.connMux.Lock()
	defer w.connMux.Unlock()
	return len(w.conns)
}
