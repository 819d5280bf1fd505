package remote

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/normanking/seifmios/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoSession answers every command with its arguments, one per line.
type echoSession struct{}

func (echoSession) Submit(ctx context.Context, args []string) (<-chan string, error) {
	out := make(chan string)
	go func() {
		defer close(out)
		for _, a := range args {
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func quiet() *logging.Logger {
	return logging.New(&logging.Config{Level: logging.LevelError, Output: io.Discard})
}

// serveTCP runs a server on a loopback port until the test ends.
func serveTCP(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(echoSession{}, quiet()).Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return ln.Addr().String()
}

func TestNetwork(t *testing.T) {
	assert.Equal(t, "tcp", Network("127.0.0.1:2935"))
	assert.Equal(t, "tcp", Network("localhost:0"))
	assert.Equal(t, "unix", Network("/home/me/.seifmios/ctl.sock"))
	assert.Equal(t, "unix", Network("ctl.sock"))
}

func TestClientRoundTrip(t *testing.T) {
	addr := serveTCP(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	var got []string
	require.NoError(t, c.Do(ctx, []string{"tell", "hello there"}, func(l string) { got = append(got, l) }))
	assert.Equal(t, []string{"tell", "hello there"}, got)

	// The connection stays usable for a second request.
	got = nil
	require.NoError(t, c.Do(ctx, []string{"stats"}, func(l string) { got = append(got, l) }))
	assert.Equal(t, []string{"stats"}, got)

	// An empty argv gets an empty response.
	got = nil
	require.NoError(t, c.Do(ctx, nil, func(l string) { got = append(got, l) }))
	assert.Empty(t, got)
}

func TestFramingKeepsLinesApart(t *testing.T) {
	addr := serveTCP(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, addr)
	require.NoError(t, err)
	defer c.Close()

	var got []string
	require.NoError(t, c.Do(ctx, []string{"two\nlines", ""}, func(l string) { got = append(got, l) }))
	assert.Equal(t, []string{"two lines", " "}, got)
}

func TestMalformedRequest(t *testing.T) {
	addr := serveTCP(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{not json\n"))
	require.NoError(t, err)

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Ignored: malformed request\n", line)
	end, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\n", end)
}

func TestUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "seifmios")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "ctl.sock")

	// A stale file from a previous run must not block the listener.
	require.NoError(t, os.WriteFile(sock, nil, 0600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(echoSession{}, quiet()).ListenAndServe(ctx, sock) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	var c *Client
	require.Eventually(t, func() bool {
		c, err = Dial(ctx, sock)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer c.Close()

	var got []string
	require.NoError(t, c.Do(ctx, []string{"list", "categories"}, func(l string) { got = append(got, l) }))
	assert.Equal(t, "list categories", strings.Join(got, " "))
}
