// Package command turns operator input into commands for the session. Input
// arrives either as a console line, tokenized here, or as an argv array from
// the remote protocol.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Verb identifies a command.
type Verb int

const (
	Help Verb = iota
	Quit
	ImportLines
	ListCategories
	Find
	Stats
	Respond
	Tell
	Connect
	Get
	Set
	Save
	Load
)

var verbNames = map[Verb]string{
	Help:           "help",
	Quit:           "quit",
	ImportLines:    "import lines",
	ListCategories: "list categories",
	Find:           "find",
	Stats:          "stats",
	Respond:        "respond",
	Tell:           "tell",
	Connect:        "connect",
	Get:            "get",
	Set:            "set",
	Save:           "save",
	Load:           "load",
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return fmt.Sprintf("verb(%d)", int(v))
}

// Command is a parsed request. Args depend on the verb:
//
//	ImportLines  [path]
//	Find         [wordA wordB]
//	Tell         [message]
//	Connect      [kind] or [kind target]
//	Get          [tunable]
//	Set          [tunable value]
//	Save, Load   [] or [path]
type Command struct {
	Verb Verb
	Args []string
}

// Transport kinds accepted by connect.
var ConnectKinds = []string{"server", "irc", "discord", "telegram", "slack", "webchat", "redis"}

// Tunables lists the names accepted by get and set.
var Tunables = []string{
	"cc_ratio", "cc_travel", "cc_magnitude",
	"fwd_edge", "bwd_edge", "fwd_word", "bwd_word",
	"max_walk", "think_times",
}

// HelpLines is printed for help and for an empty command.
var HelpLines = []string{
	"Available commands: quit, import, connect, list, find, stats, respond, tell, get, set, save, load",
}

// UsageError carries the lines to show the operator for a malformed command.
type UsageError struct {
	Lines []string
}

func (e *UsageError) Error() string { return strings.Join(e.Lines, "; ") }

func usage(lines ...string) error { return &UsageError{Lines: lines} }

// ErrUnterminatedQuote is returned by Tokenize for an odd number of backticks.
var ErrUnterminatedQuote = errors.New("unterminated ` quote")

// Tokenize splits line on whitespace. Text between a pair of backticks stays
// one token, spaces included; the backticks themselves are dropped.
func Tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool // inside backticks
		pending bool // current holds a token, possibly empty
	)
	for _, r := range line {
		switch {
		case r == '`':
			quoted = !quoted
			pending = true
		case unicode.IsSpace(r) && !quoted:
			if pending {
				tokens = append(tokens, current.String())
				current.Reset()
				pending = false
			}
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	if quoted {
		return nil, ErrUnterminatedQuote
	}
	if pending {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// Parse validates an argv array. A malformed command yields a *UsageError.
func Parse(args []string) (Command, error) {
	if len(args) == 0 {
		return Command{Verb: Help}, nil
	}
	rest := args[1:]
	switch args[0] {
	case "help":
		return Command{Verb: Help}, nil

	case "quit":
		if len(rest) != 0 {
			return Command{}, usage("Usage: quit")
		}
		return Command{Verb: Quit}, nil

	case "import":
		if len(rest) == 0 {
			return Command{}, usage("Usage: import <import type>", "Available import types: lines")
		}
		if rest[0] != "lines" {
			return Command{}, usage("Ignored: Unrecognized import type")
		}
		if len(rest) != 2 {
			return Command{}, usage("Usage: import lines <filename>")
		}
		return Command{Verb: ImportLines, Args: rest[1:]}, nil

	case "list":
		if len(rest) != 1 {
			return Command{}, usage("Usage: list <list type>", "Available list types: categories")
		}
		if rest[0] != "categories" {
			return Command{}, usage("Ignored: Unrecognized list type")
		}
		return Command{Verb: ListCategories}, nil

	case "find":
		if len(rest) != 2 {
			return Command{}, usage("Usage: find <word> <word>")
		}
		return Command{Verb: Find, Args: rest}, nil

	case "stats":
		if len(rest) != 0 {
			return Command{}, usage("Usage: stats")
		}
		return Command{Verb: Stats}, nil

	case "respond":
		if len(rest) != 0 {
			return Command{}, usage("Usage: respond")
		}
		return Command{Verb: Respond}, nil

	case "tell":
		if len(rest) != 1 {
			return Command{}, usage("Usage: tell <message>", "Quote a message with spaces in backticks: tell `hello there`")
		}
		return Command{Verb: Tell, Args: rest}, nil

	case "connect":
		return parseConnect(rest)

	case "get":
		if len(rest) == 0 {
			return Command{}, usage("Usage: get <value>", "Values: "+strings.Join(Tunables, ", "))
		}
		if !isTunable(rest[0]) {
			return Command{}, usage("Ignored: Unrecognized get value")
		}
		if len(rest) != 1 {
			return Command{}, usage("Usage: get " + rest[0])
		}
		return Command{Verb: Get, Args: rest}, nil

	case "set":
		if len(rest) == 0 {
			return Command{}, usage("Usage: set <value>", "Values: "+strings.Join(Tunables, ", "))
		}
		if !isTunable(rest[0]) {
			return Command{}, usage("Ignored: Unrecognized set value")
		}
		if len(rest) != 2 {
			return Command{}, usage(fmt.Sprintf("Usage: set %s <value>", rest[0]))
		}
		return Command{Verb: Set, Args: rest}, nil

	case "save", "load":
		if len(rest) > 1 {
			return Command{}, usage(fmt.Sprintf("Usage: %s [path]", args[0]))
		}
		verb := Save
		if args[0] == "load" {
			verb = Load
		}
		return Command{Verb: verb, Args: rest}, nil
	}
	return Command{}, usage("Ignored: Unrecognized command")
}

func parseConnect(rest []string) (Command, error) {
	if len(rest) == 0 {
		return Command{}, usage("Ignored: connect takes at least a connect type",
			"Connect types: "+strings.Join(ConnectKinds, ", "))
	}
	switch rest[0] {
	case "server":
		if len(rest) != 1 {
			return Command{}, usage("Ignored: no extra parameters needed")
		}
	case "irc", "discord", "telegram", "slack", "redis":
		if len(rest) > 2 {
			return Command{}, usage(fmt.Sprintf("Usage: connect %s [config]", rest[0]))
		}
	case "webchat":
		if len(rest) > 2 {
			return Command{}, usage("Usage: connect webchat [address]")
		}
	default:
		return Command{}, usage("Ignored: Unrecognized connect type")
	}
	return Command{Verb: Connect, Args: rest}, nil
}

func isTunable(name string) bool {
	for _, t := range Tunables {
		if t == name {
			return true
		}
	}
	return false
}
