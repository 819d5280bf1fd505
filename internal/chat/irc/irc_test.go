package irc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/irc.v4"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/logging"
)

func testAdapter() *Adapter {
	return New(Config{Server: "irc.example.net:6667", Nick: "seifmios", ReplyTimeout: time.Second},
		time.Second, logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard}))
}

// answerWith replies to the next message carrying a reply handle.
func answerWith(t *testing.T, inbound chan chat.Message, answer chat.Answer) <-chan chat.Message {
	seen := make(chan chat.Message, 1)
	go func() {
		msg := <-inbound
		seen <- msg
		if msg.Reply != nil {
			assert.NoError(t, msg.Reply.Send(answer))
		}
	}()
	return seen
}

func parse(t *testing.T, line string) *irc.Message {
	m, err := irc.ParseMessage(line)
	require.NoError(t, err)
	return m
}

func TestUnaddressedMessageIsOnlyTold(t *testing.T) {
	inbound := make(chan chat.Message, 1)
	target, _, ok := testAdapter().route(context.Background(), "seifmios",
		parse(t, ":ann!a@host PRIVMSG #room :just chatting"), inbound)
	assert.False(t, ok)
	assert.Empty(t, target)

	msg := <-inbound
	assert.Equal(t, chat.Message{Source: "#room", Author: "ann", Content: "just chatting"}, msg)
}

func TestAddressedMessageIsAnswered(t *testing.T) {
	inbound := make(chan chat.Message)
	seen := answerWith(t, inbound, chat.Answer{Text: "hello ann", OK: true})

	target, reply, ok := testAdapter().route(context.Background(), "seifmios",
		parse(t, ":ann!a@host PRIVMSG #room :hey SeifMios what's up"), inbound)
	require.True(t, ok)
	assert.Equal(t, "#room", target)
	assert.Equal(t, "hello ann", reply)
	assert.Equal(t, "#room", (<-seen).Source)
}

func TestPrivateMessageRepliesToSender(t *testing.T) {
	inbound := make(chan chat.Message)
	seen := answerWith(t, inbound, chat.Answer{Text: "psst", OK: true})

	target, reply, ok := testAdapter().route(context.Background(), "seifmios",
		parse(t, ":bob!b@host PRIVMSG seifmios :secret"), inbound)
	require.True(t, ok)
	assert.Equal(t, "bob", target)
	assert.Equal(t, "psst", reply)
	assert.Equal(t, "bob", (<-seen).Source)
}

func TestCommandLikeRepliesAreHeldBack(t *testing.T) {
	for _, text := range []string{"/quit now", ".op me", ""} {
		inbound := make(chan chat.Message)
		answerWith(t, inbound, chat.Answer{Text: text, OK: true})
		_, _, ok := testAdapter().route(context.Background(), "seifmios",
			parse(t, ":ann!a@host PRIVMSG #room :seifmios say something"), inbound)
		assert.False(t, ok, "reply %q should not be sent", text)
	}
}

func TestNoAnswerSendsNothing(t *testing.T) {
	inbound := make(chan chat.Message)
	answerWith(t, inbound, chat.Answer{OK: false})
	_, _, ok := testAdapter().route(context.Background(), "seifmios",
		parse(t, ":ann!a@host PRIVMSG #room :seifmios?"), inbound)
	assert.False(t, ok)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "irc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: irc.libera.chat:6697\ntls: true\nnick: seifmios\nchannels: ['#seifmios']\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "seifmios", cfg.User)
	assert.Equal(t, "seifmios", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, []string{"#seifmios"}, cfg.Channels)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nick: seifmios\n"), 0644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "server is required")
}
