package console

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/normanking/seifmios/internal/command"
)

const helpMarkdown = `# seifmios

Type a command and press enter. Wrap text containing spaces in backticks.

| Command | What it does |
|---|---|
| ` + "`tell <message>`" + ` | learn a message from the console |
| ` + "`respond`" + ` | generate an utterance from what was learned |
| ` + "`import lines <file>`" + ` | learn every line of a file |
| ` + "`list categories`" + ` | list categories and their links |
| ` + "`find <a> <b>`" + ` | explain how two words relate |
| ` + "`stats`" + ` | count words, messages and categories |
| ` + "`get <name>`" + `, ` + "`set <name> <value>`" + ` | read or change a tunable |
| ` + "`connect <type> [config]`" + ` | start a chat transport |
| ` + "`save [path]`" + `, ` + "`load [path]`" + ` | write or read a snapshot |
| ` + "`quit`" + ` | stop |

Tunables: `

// renderHelp returns the help text formatted for a terminal of width columns.
func renderHelp(width int) string {
	md := helpMarkdown + strings.Join(quoted(), ", ") + "\n"
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func quoted() []string {
	out := make([]string, len(command.Tunables))
	for i, t := range command.Tunables {
		out[i] = "`" + t + "`"
	}
	return out
}
