package discord

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/normanking/seifmios/internal/chat"
	"github.com/normanking/seifmios/internal/logging"
)

func testAdapter() *DiscordAdapter {
	return NewDiscordAdapter(Config{Token: "token", Name: "seifmios", ReplyTimeout: time.Second},
		time.Second, logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard}))
}

func create(guild, content string, mentions ...*discordgo.User) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c1",
		GuildID:   guild,
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "ann"},
		Mentions:  mentions,
	}}
}

func TestName(t *testing.T) {
	if testAdapter().Name() != "discord" {
		t.Errorf("expected name discord, got %s", testAdapter().Name())
	}
}

func TestAddressed(t *testing.T) {
	d := testAdapter()
	tests := []struct {
		name string
		msg  *discordgo.MessageCreate
		want bool
	}{
		{"direct message", create("", "hi"), true},
		{"name in text", create("g1", "hey Seifmios"), true},
		{"mention", create("g1", "<@bot>", &discordgo.User{ID: "bot"}), true},
		{"other mention", create("g1", "<@x>", &discordgo.User{ID: "x"}), false},
		{"plain chatter", create("g1", "lunch?"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.addressed("bot", tt.msg); got != tt.want {
				t.Errorf("addressed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChatterIsPostedWithoutReply(t *testing.T) {
	d := testAdapter()
	inbound := make(chan chat.Message, 1)
	session := &discordgo.Session{State: discordgo.NewState()}

	d.onMessage(context.Background(), session, create("g1", "nice weather"), inbound)

	msg := <-inbound
	if msg.Source != "c1" || msg.Author != "ann" || msg.Content != "nice weather" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Reply != nil {
		t.Error("chatter should not ask for a reply")
	}
}

func TestQuitCommandStopsAdapter(t *testing.T) {
	d := testAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	d.stop = cancel

	d.onMessage(ctx, &discordgo.Session{}, create("g1", "!quit"), make(chan chat.Message))

	select {
	case <-ctx.Done():
	default:
		t.Error("!quit did not stop the adapter")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "discord.yaml")
	if err := os.WriteFile(path, []byte("token: abc\nname: seifmios\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Token != "abc" || cfg.ReplyTimeout != 30*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("name: seifmios\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected an error without a token")
	}
}
