package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
)

// Client sends commands to a running seifmios.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the remote command socket at address.
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, Network(address), address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Do sends one command and calls fn for each response line until the
// terminating empty line.
func (c *Client) Do(ctx context.Context, args []string, fn func(line string)) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	req, err := encodeRequest(args)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				return fmt.Errorf("connection closed before the response ended")
			}
			return fmt.Errorf("read response: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return nil
		}
		fn(line)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
