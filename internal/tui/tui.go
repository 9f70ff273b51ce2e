// Package tui is the terminal host of a workspace window: a well list, the
// open views with their link and loading state, the activity log and a
// command line.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/logger"
	"github.com/codefionn/wellspace/internal/workspace"
)

const (
	defaultInputPlaceholder = "Type /help for commands, or a well name to select it"
	refreshInterval         = 250 * time.Millisecond
	errVisibleFor           = 8 * time.Second
	activityBuffer          = 64
)

type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	NextView   key.Binding
	PrevView   key.Binding
	Select     key.Binding
	ToggleLink key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous well")),
		Down:       key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next well")),
		NextView:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
		PrevView:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous view")),
		Select:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run command / select well")),
		ToggleLink: key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "toggle link of focused view")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// activityMsg carries a new activity log entry
type activityMsg activity.Entry

type tickMsg time.Time

// resultMsg reports the outcome of a command that ran off the event loop.
type resultMsg struct {
	status string
	err    error
}

type helpMsg string

// Model is the bubbletea model of one workspace window.
type Model struct {
	ws       *workspace.Workspace
	ctx      context.Context
	commands map[string]commandDefinition
	keys     keyMap
	log      *logger.Logger

	input   textinput.Model
	logView viewport.Model
	spinner spinner.Model

	width  int
	height int
	ready  bool

	cursor  int // well list
	focused int // open views

	entries   chan activity.Entry
	stopWatch func()
	lines     []string
	status    string
	err       error
	errUntil  time.Time
	help      string
	quitting  bool
}

// New creates the host for ws. ctx bounds the commands it runs.
func New(ctx context.Context, ws *workspace.Workspace) *Model {
	ti := textinput.New()
	ti.Placeholder = defaultInputPlaceholder
	ti.Prompt = "│ "
	ti.CharLimit = 512
	ti.Width = 80
	ti.Focus()

	vp := viewport.New(80, 8)
	vp.SetContent("")

	sp := spinner.New(
		spinner.WithSpinner(spinner.Line),
		spinner.WithStyle(statusStyle.MarginLeft(0)),
	)

	m := &Model{
		ws:      ws,
		ctx:     ctx,
		keys:    defaultKeyMap(),
		log:     logger.Global().WithPrefix("tui"),
		input:   ti,
		logView: vp,
		spinner: sp,
		entries: make(chan activity.Entry, activityBuffer),
	}
	m.initCommands()

	if audit := ws.Activity(); audit != nil {
		for _, e := range audit.Entries() {
			m.lines = append(m.lines, formatEntry(e))
		}
		m.stopWatch = audit.Watch(m.entries)
	}
	m.refreshLog()
	return m
}

// Close detaches the model from the activity log.
func (m *Model) Close() {
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.waitForActivity(),
		tick(),
	)
}

func (m *Model) waitForActivity() tea.Cmd {
	ch := m.entries
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return activityMsg(e)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.applyWindowSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			m.Close()
			return m, tea.Quit
		case key.Matches(msg, m.keys.Select):
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, m.selectUnderCursor()
			}
			return m, m.runLine(line)
		case key.Matches(msg, m.keys.Up):
			m.moveCursor(-1)
			return m, nil
		case key.Matches(msg, m.keys.Down):
			m.moveCursor(1)
			return m, nil
		case key.Matches(msg, m.keys.NextView):
			m.moveFocus(1)
			return m, nil
		case key.Matches(msg, m.keys.PrevView):
			m.moveFocus(-1)
			return m, nil
		case key.Matches(msg, m.keys.ToggleLink):
			if id := m.focusedView(); id != "" {
				m.setResult("", m.ws.ToggleLink(id))
			}
			return m, nil
		}

	case activityMsg:
		m.lines = append(m.lines, formatEntry(activity.Entry(msg)))
		if len(m.lines) > activity.DefaultCapacity {
			m.lines = m.lines[len(m.lines)-activity.DefaultCapacity:]
		}
		m.refreshLog()
		return m, m.waitForActivity()

	case tickMsg:
		// the host drives view reconciliation; loading states are polled
		m.ws.Sync()
		return m, tick()

	case resultMsg:
		m.setResult(msg.status, msg.err)
		return m, nil

	case helpMsg:
		m.help = string(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.logView, cmd = m.logView.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) applyWindowSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width = width
	m.height = height
	m.ready = true

	m.input.Width = max(width-4, 10)
	logHeight := max(height/3, 3)
	m.logView.Width = max(width-2, 10)
	m.logView.Height = logHeight
	m.refreshLog()
}

func (m *Model) refreshLog() {
	wrap := m.logView.Width
	if wrap <= 0 {
		wrap = 80
	}
	m.logView.SetContent(wrapLines(m.lines, wrap))
	m.logView.GotoBottom()
}

func (m *Model) setResult(status string, err error) {
	m.status = status
	m.err = err
	if err != nil {
		m.log.Debug("command failed: %v", err)
		m.errUntil = time.Now().Add(errVisibleFor)
	}
}

func (m *Model) moveCursor(delta int) {
	n := len(m.ws.Entities())
	if n == 0 {
		m.cursor = 0
		return
	}
	m.cursor = (m.cursor + delta + n) % n
}

func (m *Model) moveFocus(delta int) {
	views := m.ws.Views()
	if len(views) == 0 {
		m.focused = 0
		return
	}
	m.focused = (m.focused + delta + len(views)) % len(views)
	if err := m.ws.Focus(views[m.focused]); err != nil {
		m.setResult("", err)
	}
}

func (m *Model) focusedView() string {
	views := m.ws.Views()
	if len(views) == 0 {
		return ""
	}
	if m.focused >= len(views) {
		m.focused = len(views) - 1
	}
	return views[m.focused]
}

func (m *Model) selectUnderCursor() tea.Cmd {
	ents := m.ws.Entities()
	if len(ents) == 0 {
		return nil
	}
	if m.cursor >= len(ents) {
		m.cursor = len(ents) - 1
	}
	m.setResult("", m.ws.SelectEntity(ents[m.cursor]))
	return nil
}

// run executes fn off the event loop and reports through resultMsg.
func (m *Model) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		status, err := fn(ctx)
		return resultMsg{status: status, err: err}
	}
}
