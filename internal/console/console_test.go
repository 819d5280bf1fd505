package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/seifmios/internal/logging"
	"github.com/normanking/seifmios/internal/session"
)

// fakeSession records submitted commands and answers with their words.
type fakeSession struct {
	mu     sync.Mutex
	got    [][]string
	closed bool
}

func (f *fakeSession) Submit(ctx context.Context, args []string) (<-chan string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, session.ErrClosed
	}
	f.got = append(f.got, args)
	out := make(chan string, len(args)+1)
	for _, a := range args {
		out <- "ok " + a
	}
	close(out)
	if len(args) > 0 && args[0] == "quit" {
		f.closed = true
	}
	return out, nil
}

func quiet() *logging.Logger {
	return logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard})
}

func TestPlainModeRunsEachLine(t *testing.T) {
	fake := &fakeSession{}
	var out bytes.Buffer
	c := New(fake, "plain", quiet())
	c.in = strings.NewReader("tell `hello there`\nstats\n")
	c.out = &out

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, [][]string{{"tell", "hello there"}, {"stats"}}, fake.got)
	assert.Equal(t, "ok tell\nok hello there\nok stats\n", out.String())
}

func TestPlainModeReportsBadQuote(t *testing.T) {
	fake := &fakeSession{}
	var out bytes.Buffer
	c := New(fake, "plain", quiet())
	c.in = strings.NewReader("tell `oops\n")
	c.out = &out

	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, fake.got)
	assert.True(t, strings.HasPrefix(out.String(), "Ignored: "))
}

func TestPlainModeStopsAfterQuit(t *testing.T) {
	fake := &fakeSession{}
	c := New(fake, "plain", quiet())
	c.in = strings.NewReader("quit\nstats\n")
	c.out = io.Discard

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, [][]string{{"quit"}}, fake.got)
}

func TestAutoModeWithoutTerminal(t *testing.T) {
	c := New(&fakeSession{}, "auto", quiet())
	c.in = strings.NewReader("")
	assert.Equal(t, "plain", c.Mode())
}

func TestOffModeWaitsForShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, New(&fakeSession{}, "off", quiet()).Run(ctx))
}

// drain runs cmd and feeds the resulting messages back until none are left.
func drain(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if _, ok := msg.(closedMsg); ok {
			return m
		}
		m, cmd = m.Update(msg)
	}
	return m
}

func TestModelSubmitsAndShowsOutput(t *testing.T) {
	fake := &fakeSession{}
	var m tea.Model = newModel(context.Background(), fake)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	tm := m.(model)
	tm.input.SetValue("get cc_ratio")
	m, cmd := tm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.(model).busy)

	m = drain(t, m, cmd)
	got := m.(model)
	assert.False(t, got.busy)
	assert.Equal(t, [][]string{{"get", "cc_ratio"}}, fake.got)
	require.Len(t, got.lines, 3)
	assert.Contains(t, got.lines[0], "> get cc_ratio")
	assert.Equal(t, "ok get", got.lines[1])
	assert.Equal(t, "ok cc_ratio", got.lines[2])
}

func TestModelRendersHelpLocally(t *testing.T) {
	fake := &fakeSession{}
	m := newModel(context.Background(), fake)
	m.input.SetValue("help")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, fake.got)
	lines := updated.(model).lines
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "seifmios")
}

func TestCtrlCQuitsSession(t *testing.T) {
	fake := &fakeSession{}
	var m tea.Model = newModel(context.Background(), fake)
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	drain(t, m, cmd)
	assert.Equal(t, [][]string{{"quit"}}, fake.got)

	// Once the session is gone the model asks bubbletea to stop.
	after := newModel(context.Background(), fake)
	msg := after.submit([]string{"stats"})()
	assert.IsType(t, closedMsg{}, msg)
}
