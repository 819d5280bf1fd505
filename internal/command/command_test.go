package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain words", "list categories", []string{"list", "categories"}},
		{"extra whitespace", "  import   lines\tcorpus.txt ", []string{"import", "lines", "corpus.txt"}},
		{"backtick quoting", "tell `hello there world`", []string{"tell", "hello there world"}},
		{"quote inside token", "tell a`b c`d", []string{"tell", "ab cd"}},
		{"empty quoted token", "tell ``", []string{"tell", ""}},
		{"empty line", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeUnterminatedQuote(t *testing.T) {
	_, err := Tokenize("tell `oops")
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestParseValidCommands(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{nil, Command{Verb: Help}},
		{[]string{"help"}, Command{Verb: Help}},
		{[]string{"quit"}, Command{Verb: Quit}},
		{[]string{"import", "lines", "a.txt"}, Command{Verb: ImportLines, Args: []string{"a.txt"}}},
		{[]string{"list", "categories"}, Command{Verb: ListCategories}},
		{[]string{"find", "cat", "dog"}, Command{Verb: Find, Args: []string{"cat", "dog"}}},
		{[]string{"stats"}, Command{Verb: Stats}},
		{[]string{"respond"}, Command{Verb: Respond}},
		{[]string{"tell", "hi there"}, Command{Verb: Tell, Args: []string{"hi there"}}},
		{[]string{"connect", "server"}, Command{Verb: Connect, Args: []string{"server"}}},
		{[]string{"connect", "irc", "irc.yaml"}, Command{Verb: Connect, Args: []string{"irc", "irc.yaml"}}},
		{[]string{"connect", "discord"}, Command{Verb: Connect, Args: []string{"discord"}}},
		{[]string{"connect", "slack", "slack.yaml"}, Command{Verb: Connect, Args: []string{"slack", "slack.yaml"}}},
		{[]string{"connect", "redis"}, Command{Verb: Connect, Args: []string{"redis"}}},
		{[]string{"connect", "webchat", "127.0.0.1:8090"}, Command{Verb: Connect, Args: []string{"webchat", "127.0.0.1:8090"}}},
		{[]string{"get", "cc_ratio"}, Command{Verb: Get, Args: []string{"cc_ratio"}}},
		{[]string{"set", "cc_travel", "2"}, Command{Verb: Set, Args: []string{"cc_travel", "2"}}},
		{[]string{"save"}, Command{Verb: Save, Args: []string{}}},
		{[]string{"load", "snap.db"}, Command{Verb: Load, Args: []string{"snap.db"}}},
	}
	for _, tt := range tests {
		t.Run(tt.want.Verb.String(), func(t *testing.T) {
			got, err := Parse(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseUsageErrors(t *testing.T) {
	tests := []struct {
		args  []string
		first string
	}{
		{[]string{"quit", "now"}, "Usage: quit"},
		{[]string{"import"}, "Usage: import <import type>"},
		{[]string{"import", "csv", "x"}, "Ignored: Unrecognized import type"},
		{[]string{"import", "lines"}, "Usage: import lines <filename>"},
		{[]string{"list"}, "Usage: list <list type>"},
		{[]string{"list", "words"}, "Ignored: Unrecognized list type"},
		{[]string{"tell", "two", "words"}, "Usage: tell <message>"},
		{[]string{"connect"}, "Ignored: connect takes at least a connect type"},
		{[]string{"connect", "server", "extra"}, "Ignored: no extra parameters needed"},
		{[]string{"connect", "irc", "a", "b"}, "Usage: connect irc [config]"},
		{[]string{"connect", "gopher"}, "Ignored: Unrecognized connect type"},
		{[]string{"get", "speed"}, "Ignored: Unrecognized get value"},
		{[]string{"set", "cc_ratio"}, "Usage: set cc_ratio <value>"},
		{[]string{"save", "a", "b"}, "Usage: save [path]"},
		{[]string{"dance"}, "Ignored: Unrecognized command"},
	}
	for _, tt := range tests {
		t.Run(tt.first, func(t *testing.T) {
			_, err := Parse(tt.args)
			var ue *UsageError
			require.True(t, errors.As(err, &ue), "expected a usage error, got %v", err)
			assert.Equal(t, tt.first, ue.Lines[0])
		})
	}
}
