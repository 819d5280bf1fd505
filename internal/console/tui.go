package console

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/normanking/seifmios/internal/command"
	"github.com/normanking/seifmios/internal/logging"
	"github.com/normanking/seifmios/internal/session"
)

// Messages flowing into the model.
type (
	outputMsg struct {
		line string
		next <-chan string
	}
	doneMsg   struct{}
	closedMsg struct{}
	errMsg    struct{ err error }
)

type styles struct {
	title   lipgloss.Style
	prompt  lipgloss.Style
	echo    lipgloss.Style
	ignored lipgloss.Style
	status  lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1),
		prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")),
		echo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		ignored: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		status:  lipgloss.NewStyle().Foreground(lipgloss.Color("#5C6370")).Italic(true),
	}
}

type keyMap struct {
	Submit key.Binding
	Quit   key.Binding
	Up     key.Binding
	Down   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Submit: key.NewBinding(key.WithKeys("enter")),
		Quit:   key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d")),
		Up:     key.NewBinding(key.WithKeys("pgup")),
		Down:   key.NewBinding(key.WithKeys("pgdown")),
	}
}

// model is the TUI state. Output is append-only; one command runs at a time.
type model struct {
	ctx     context.Context
	session Submitter

	input    textinput.Model
	viewport viewport.Model
	styles   styles
	keys     keyMap

	lines []string
	busy  bool
	ready bool
	width int
}

func newModel(ctx context.Context, s Submitter) model {
	ti := textinput.New()
	ti.Placeholder = "type a command, e.g. tell `hello there`"
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	st := defaultStyles()
	ti.PromptStyle = st.prompt

	return model{
		ctx:      ctx,
		session:  s,
		input:    ti,
		viewport: viewport.New(80, 20),
		styles:   st,
		keys:     defaultKeyMap(),
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 1)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			// Same as typing quit: the session stops and takes the console with it.
			m.append(m.styles.echo.Render("> quit"))
			cmd := m.submit([]string{"quit"})
			return m, cmd
		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.keys.Submit):
			if m.busy {
				return m, nil
			}
			return m.enter()
		}

	case outputMsg:
		m.append(m.render(msg.line))
		return m, next(msg.next)

	case doneMsg:
		m.busy = false
		return m, nil

	case closedMsg:
		return m, tea.Quit

	case errMsg:
		m.busy = false
		m.append(m.styles.ignored.Render("Ignored: " + msg.err.Error()))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// enter handles a submitted input line.
func (m model) enter() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.input.Reset()
	m.append(m.styles.echo.Render("> " + line))

	args, err := command.Tokenize(line)
	if err != nil {
		m.append(m.styles.ignored.Render("Ignored: " + err.Error()))
		return m, nil
	}
	if len(args) == 1 && args[0] == "help" {
		m.append(renderHelp(m.width))
		return m, nil
	}
	cmd := m.submit(args)
	return m, cmd
}

func (m *model) submit(args []string) tea.Cmd {
	m.busy = true
	ctx, s := m.ctx, m.session
	return func() tea.Msg {
		out, err := s.Submit(ctx, args)
		if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
			return closedMsg{}
		}
		if err != nil {
			return errMsg{err}
		}
		return next(out)()
	}
}

// next reads one line of command output.
func next(out <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-out
		if !ok {
			return doneMsg{}
		}
		return outputMsg{line: line, next: out}
	}
}

func (m model) render(line string) string {
	if strings.HasPrefix(line, "Ignored:") || strings.HasPrefix(line, "Usage:") {
		return m.styles.ignored.Render(line)
	}
	return line
}

func (m *model) append(line string) {
	m.lines = append(m.lines, line)
	m.refresh()
}

func (m *model) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}
	status := "ready"
	if m.busy {
		status = "working..."
	}
	header := m.styles.title.Render("seifmios") + m.styles.status.Render(" "+status)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), m.input.View())
}

func (c *Console) runTUI(ctx context.Context) error {
	// Log lines would tear the screen; the log file still gets them.
	logging.DisableConsoleOutput()
	defer logging.EnableConsoleOutput()

	p := tea.NewProgram(newModel(ctx, c.session), tea.WithAltScreen(), tea.WithInput(c.in), tea.WithOutput(c.out))
	stop := context.AfterFunc(ctx, p.Quit)
	defer stop()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
