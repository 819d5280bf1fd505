package webchat

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/logging"
)

func TestName(t *testing.T) {
	adapter := NewWebChatAdapter("127.0.0.1:0", nil)
	if adapter.Name() != "webchat" {
		t.Errorf("expected name webchat, got %s", adapter.Name())
	}
}

// dial starts a test server around the adapter and opens one socket.
func dial(t *testing.T, inbound chan chat.Message) (*websocket.Conn, *WebChatAdapter) {
	t.Helper()
	adapter := NewWebChatAdapter("unused", logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard}))
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(adapter.Handler(ctx, inbound))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=ann"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, adapter
}

func TestMessageIsAnswered(t *testing.T) {
	inbound := make(chan chat.Message)
	conn, _ := dial(t, inbound)

	go func() {
		msg := <-inbound
		_ = msg.Reply.Send(chat.Answer{Text: "echo " + msg.Content + " from " + msg.Author, OK: true})
	}()

	if err := conn.WriteJSON(WSMessage{Type: TypeMessage, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got WSMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeMessage || got.Content != "echo hi from ann" {
		t.Errorf("unexpected reply %+v", got)
	}
}

func TestSayIsOnlyTold(t *testing.T) {
	inbound := make(chan chat.Message, 1)
	conn, _ := dial(t, inbound)

	if err := conn.WriteJSON(WSMessage{Type: TypeSay, Content: "fyi"}); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-inbound:
		if msg.Reply != nil || msg.Content != "fyi" || !strings.HasPrefix(msg.Source, "webchat/") {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("say was not forwarded")
	}
}

func TestNoAnswerIsSilence(t *testing.T) {
	inbound := make(chan chat.Message)
	conn, _ := dial(t, inbound)
	go func() {
		msg := <-inbound
		_ = msg.Reply.Send(chat.Answer{OK: false})
	}()

	if err := conn.WriteJSON(WSMessage{Type: TypeMessage, Content: "anyone?"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got WSMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeSilence {
		t.Errorf("expected silence, got %+v", got)
	}
}

func TestUnknownTypeIsRejected(t *testing.T) {
	conn, adapter := dial(t, make(chan chat.Message))
	if err := conn.WriteJSON(WSMessage{Type: "dance"}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got WSMessage
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeError {
		t.Errorf("expected error reply, got %+v", got)
	}
	if adapter.Connections() != 1 {
		t.Errorf("expected one open connection, got %d", adapter.Connections())
	}
}
