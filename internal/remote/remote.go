// Package remote carries operator commands over a unix socket or TCP.
//
// A request is one line holding a JSON array of strings, the command's argv.
// The response is zero or more text lines followed by an empty line. A
// connection may carry any number of requests, one at a time.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrBadRequest is returned for a request line that is not a JSON string array.
var ErrBadRequest = errors.New("malformed request")

// Network picks "tcp" for host:port addresses and "unix" for everything else.
func Network(address string) string {
	if strings.ContainsRune(address, '/') || strings.HasSuffix(address, ".sock") {
		return "unix"
	}
	if _, _, err := net.SplitHostPort(address); err == nil {
		return "tcp"
	}
	return "unix"
}

func encodeRequest(args []string) ([]byte, error) {
	if args == nil {
		args = []string{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(b, '\n'), nil
}

func decodeRequest(line []byte) ([]string, error) {
	var args []string
	if err := json.Unmarshal(line, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return args, nil
}

// frame keeps a response line on one line and distinct from the terminator.
func frame(line string) string {
	line = strings.ReplaceAll(line, "\n", " ")
	if line == "" {
		return " "
	}
	return line
}
