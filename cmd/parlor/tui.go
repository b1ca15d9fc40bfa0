package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parlor/internal/chat"
	"github.com/samcharles93/parlor/internal/conversation"
	"github.com/samcharles93/parlor/internal/inference"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D9FF")).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 2)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true).
			PaddingLeft(2)

	roleStyles = map[conversation.Role]lipgloss.Style{
		conversation.System:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFE66D")),
		conversation.User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		conversation.Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4")),
	}

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3d3d5c"))

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#00D9FF"))

	editBorderStyle = inputBorderStyle.
			BorderForeground(lipgloss.Color("#FFE66D"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			PaddingLeft(1)
)

const tuiHelp = "Enter/Ctrl+J send | Alt+Enter newline | Ctrl+G continue | Ctrl+R rewrite reply | Ctrl+C stop | Ctrl+S save | F5 reload | Esc Esc quit"

// genMsg carries one controller event back into the update loop.
type genMsg struct {
	ev  chat.Event
	err error
}

// stepGuard serializes controller steps run from tea.Cmd goroutines with
// shutdown: once shut is called no further step runs, and shut waits for
// the one in flight.
type stepGuard struct {
	mu     sync.Mutex
	closed bool
}

func (g *stepGuard) run(step func() tea.Msg) tea.Msg {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	return step()
}

func (g *stepGuard) shut() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

type tuiModel struct {
	app   *app
	steps stepGuard

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	ready    bool
	width    int
	height   int

	// turns is what the view renders. While generating it is a snapshot
	// with the open assistant turn at live; the controller's conversation
	// is only read between generations.
	turns      []conversation.Turn
	live       int
	generating bool
	editing    bool
	quitArmed  bool

	status string
	err    error
}

func newTUIModel(a *app) *tuiModel {
	ta := textarea.New()
	ta.Placeholder = "Say something..."
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))

	m := &tuiModel{app: a, input: ta, spinner: s}
	m.syncTurns()
	return m
}

func (m *tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case genMsg:
		return m, m.handleGen(msg)

	case spinner.TickMsg:
		if !m.generating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var taCmd, vpCmd tea.Cmd
	m.input, taCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.Type != tea.KeyEsc {
		m.quitArmed = false
	}
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.generating {
			m.cancel()
			return nil, true
		}
		return tea.Quit, true

	case tea.KeyEsc:
		switch {
		case m.generating:
			m.cancel()
		case m.editing:
			m.editing = false
			m.input.Reset()
			m.setStatus("rewrite cancelled")
		case m.quitArmed:
			return tea.Quit, true
		default:
			m.quitArmed = true
			m.setStatus("press Esc again to quit")
		}
		return nil, true

	case tea.KeyEnter, tea.KeyCtrlJ:
		if msg.Alt {
			return nil, false
		}
		if m.generating {
			return nil, true
		}
		return m.submit(), true

	case tea.KeyCtrlG:
		if m.generating {
			return nil, true
		}
		return m.startGeneration(), true

	case tea.KeyCtrlR:
		if !m.generating {
			m.beginRewrite()
		}
		return nil, true

	case tea.KeyCtrlS:
		if !m.generating {
			m.report("saved "+m.app.proj.PromptsPath(), m.app.save())
		}
		return nil, true

	case tea.KeyF5:
		if !m.generating {
			err := m.app.reload()
			m.syncTurns()
			m.report("reloaded "+m.app.proj.PromptsPath(), err)
		}
		return nil, true
	}
	return nil, false
}

// submit sends the input box: a rewritten assistant reply when editing,
// otherwise a new user turn.
func (m *tuiModel) submit() tea.Cmd {
	text := m.input.Value()
	if m.editing {
		m.editing = false
		m.input.Reset()
		if err := m.app.ctrl.Rewrite(text); err != nil {
			m.report("", err)
			return nil
		}
		m.syncTurns()
		return m.startGeneration()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	m.input.Reset()
	if err := m.app.ctrl.Submit(text); err != nil {
		m.report("", err)
		return nil
	}
	m.syncTurns()
	return m.startGeneration()
}

func (m *tuiModel) beginRewrite() {
	last := m.app.ctrl.Conversation().Last()
	if last == nil || last.Role != conversation.Assistant {
		m.setStatus("no assistant reply to rewrite")
		return
	}
	m.editing = true
	m.input.SetValue(last.Message)
	m.input.CursorEnd()
	m.setStatus("editing the last reply: Enter continues from it, Esc cancels")
}

func (m *tuiModel) startGeneration() tea.Cmd {
	m.syncTurns()
	if n := len(m.turns); n == 0 || m.turns[n-1].Role != conversation.Assistant {
		m.turns = append(m.turns, conversation.Turn{Role: conversation.Assistant})
	}
	m.live = len(m.turns) - 1
	m.app.ctrl.ClearCancel()
	m.generating = true
	m.err = nil
	m.setStatus("generating")
	return tea.Batch(m.spinner.Tick, m.startCmd())
}

func (m *tuiModel) startCmd() tea.Cmd {
	ctrl := m.app.ctrl
	return func() tea.Msg {
		return m.steps.run(func() tea.Msg {
			ev, err := ctrl.Start()
			return genMsg{ev: ev, err: err}
		})
	}
}

func (m *tuiModel) pumpCmd() tea.Cmd {
	ctrl := m.app.ctrl
	return func() tea.Msg {
		return m.steps.run(func() tea.Msg {
			ev, err := ctrl.Pump()
			return genMsg{ev: ev, err: err}
		})
	}
}

// shutdown stops scheduling generation steps and waits for one in flight.
func (m *tuiModel) shutdown() {
	m.app.ctrl.Cancel()
	m.steps.shut()
}

func (m *tuiModel) cancel() {
	m.app.ctrl.Cancel()
	m.setStatus("stopping")
}

func (m *tuiModel) handleGen(msg genMsg) tea.Cmd {
	if !m.generating {
		return nil
	}
	ev := msg.ev
	if m.live < len(m.turns) {
		m.turns[m.live].Message = ev.Message
	}
	if ev.Kind != chat.EventEnd {
		m.refresh()
		return m.pumpCmd()
	}

	m.generating = false
	m.syncTurns()
	if msg.err != nil {
		m.report("", msg.err)
		return nil
	}
	s := ev.Stats
	m.setStatus(fmt.Sprintf("%s: %d tokens in %s (%.1f tok/s), prompt %d tokens",
		ev.Reason, s.TokensGenerated, s.Duration.Round(time.Millisecond), s.TPS, s.PromptTokens))
	if ev.Reason == inference.OutcomeCancelled {
		m.app.log.Debug("generation interrupted from the TUI", "tokens", s.TokensGenerated)
	}
	return nil
}

// syncTurns copies the controller's conversation for rendering. Only call
// it while no generation step is in flight.
func (m *tuiModel) syncTurns() {
	m.turns = m.app.ctrl.Conversation().Clone().Turns
	m.refresh()
}

func (m *tuiModel) setStatus(s string) {
	m.status = s
	m.err = nil
	m.refresh()
}

func (m *tuiModel) report(ok string, err error) {
	if err != nil {
		m.err = err
		m.status = ""
		m.refresh()
		return
	}
	m.setStatus(ok)
}

func (m *tuiModel) resize(w, h int) {
	m.width, m.height = w, h
	headerHeight := 2
	inputHeight := m.input.Height() + 2
	footerHeight := 2
	vpHeight := max(h-headerHeight-inputHeight-footerHeight-2, 3)
	if !m.ready {
		m.viewport = viewport.New(max(w-2, 10), vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = max(w-2, 10)
		m.viewport.Height = vpHeight
	}
	m.input.SetWidth(max(w-4, 10))
	m.refresh()
}

func (m *tuiModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m *tuiModel) renderTranscript() string {
	width := max(m.viewport.Width-2, 10)
	body := lipgloss.NewStyle().Width(width).PaddingLeft(1)
	var sb strings.Builder
	for i, t := range m.turns {
		style, ok := roleStyles[t.Role]
		if !ok {
			style = lipgloss.NewStyle().Bold(true)
		}
		sb.WriteString(style.Render(strings.ToUpper(t.Role.String())))
		sb.WriteString("\n")
		text := t.Message
		if m.generating && i == m.live {
			text += " " + m.spinner.View()
		}
		sb.WriteString(body.Render(text))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func (m *tuiModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(" parlor "),
		subtitleStyle.Render(fmt.Sprintf("%s | %s | %s", m.app.proj.Backend, m.app.proj.TemplateName, m.app.strategy)),
	)

	inputStyle := inputBorderStyle
	if m.editing {
		inputStyle = editBorderStyle
	}

	status := statusStyle.Render(m.status)
	if m.err != nil {
		status = errorStyle.Render("error: " + m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		borderStyle.Render(m.viewport.View()),
		inputStyle.Render(m.input.View()),
		status,
		statusStyle.Render(tuiHelp),
	)
}

func tuiCmd() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Chat with the project's model in a full-screen terminal UI",
		Flags: sessionFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := openApp(c)
			if err != nil {
				return exitErr(err)
			}
			defer a.closeAndReport()

			m := newTUIModel(a)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = p.Run()
			// The program can exit with a step still running; the session
			// must not be closed under it.
			m.shutdown()
			if err != nil {
				return exitErr(err)
			}
			return nil
		},
	}
}
