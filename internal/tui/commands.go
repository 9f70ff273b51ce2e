package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/codefionn/wellspace/internal/entity"
	"github.com/codefionn/wellspace/internal/view"
)

type commandDefinition struct {
	Name        string
	Usage       string
	Description string
	Handler     func(*Model, []string) tea.Cmd
}

func getDefaultCommandDefinitions() []commandDefinition {
	return []commandDefinition{
		{Name: "/help", Usage: "/help", Description: "Show this help message", Handler: (*Model).handleHelp},
		{Name: "/scope", Usage: "/scope PATH [NAME]", Description: "Open a project and restore its last layout", Handler: (*Model).handleScope},
		{Name: "/reload", Usage: "/reload", Description: "Reload the wells of the open project", Handler: (*Model).handleReload},
		{Name: "/select", Usage: "/select WELL", Description: "Select a well by name or id", Handler: (*Model).handleSelect},
		{Name: "/open", Usage: "/open TYPE", Description: "Open a new floating window (wellLogPlot, crossPlot, logPlot, ...)", Handler: (*Model).handleOpen},
		{Name: "/close", Usage: "/close VIEW", Description: "Close a view", Handler: (*Model).handleClose},
		{Name: "/toggle", Usage: "/toggle PANEL", Description: "Show or hide a panel", Handler: (*Model).handleToggle},
		{Name: "/link", Usage: "/link [VIEW]", Description: "Link or unlink a view from the global selection", Handler: (*Model).handleLink},
		{Name: "/focus", Usage: "/focus VIEW", Description: "Focus a view", Handler: (*Model).handleFocus},
		{Name: "/dataset", Usage: "/dataset NAME", Description: "Choose the dataset of the selected well", Handler: (*Model).handleDataset},
		{Name: "/refresh", Usage: "/refresh [VIEW]", Description: "Fetch the data of a view again", Handler: (*Model).handleRefresh},
		{Name: "/axes", Usage: "/axes CROSSPLOT XLOG YLOG", Description: "Set the logs of a cross plot", Handler: (*Model).handleAxes},
		{Name: "/control", Usage: "/control CROSSPLOT", Description: "Point the cross plot control at a window", Handler: (*Model).handleControl},
		{Name: "/save", Usage: "/save [NAME]", Description: "Save the layout", Handler: (*Model).handleSave},
		{Name: "/load", Usage: "/load [NAME]", Description: "Load a saved layout", Handler: (*Model).handleLoad},
		{Name: "/layouts", Usage: "/layouts", Description: "List saved layouts", Handler: (*Model).handleLayouts},
		{Name: "/delete", Usage: "/delete NAME", Description: "Delete a saved layout", Handler: (*Model).handleDelete},
		{Name: "/reset", Usage: "/reset", Description: "Restore the default layout", Handler: (*Model).handleReset},
		{Name: "/quit", Usage: "/quit", Description: "Quit", Handler: (*Model).handleQuit},
	}
}

func (m *Model) initCommands() {
	defs := getDefaultCommandDefinitions()
	m.commands = make(map[string]commandDefinition, len(defs))
	for _, def := range defs {
		m.commands[def.Name] = def
	}
}

// runLine dispatches a command line. Anything that is not a command selects
// the well with that name.
func (m *Model) runLine(line string) tea.Cmd {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	if !strings.HasPrefix(fields[0], "/") {
		return m.handleSelect([]string{line})
	}
	def, ok := m.commands[strings.ToLower(fields[0])]
	if !ok {
		m.setResult("", fmt.Errorf("unknown command %s, try /help", fields[0]))
		return nil
	}
	m.help = ""
	return def.Handler(m, fields[1:])
}

func (m *Model) helpMarkdown() string {
	names := make([]string, 0, len(m.commands))
	for name := range m.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("# Commands\n\n")
	for _, name := range names {
		def := m.commands[name]
		fmt.Fprintf(&sb, "- `%s` %s\n", def.Usage, def.Description)
	}
	sb.WriteString("\nPanels: ")
	var types []string
	for _, b := range view.All() {
		types = append(types, string(b))
	}
	sb.WriteString(strings.Join(types, ", "))
	sb.WriteString("\n")
	return sb.String()
}

func (m *Model) handleHelp(_ []string) tea.Cmd {
	md := m.helpMarkdown()
	width := m.width
	if width <= 0 {
		width = 80
	}
	return func() tea.Msg {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width-4),
		)
		if err != nil {
			return helpMsg(md)
		}
		out, err := r.Render(md)
		if err != nil {
			return helpMsg(md)
		}
		return helpMsg(out)
	}
}

func (m *Model) handleScope(args []string) tea.Cmd {
	if len(args) == 0 {
		m.setResult("", errors.New("usage: /scope PATH [NAME]"))
		return nil
	}
	scope := entity.Scope{Path: args[0]}
	if len(args) > 1 {
		scope.Name = strings.Join(args[1:], " ")
	}
	m.cursor = 0
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.ws.OpenScope(ctx, scope); err != nil {
			return "", err
		}
		return fmt.Sprintf("Opened %s", scope.Path), nil
	})
}

func (m *Model) handleReload(_ []string) tea.Cmd {
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.ws.ReloadEntities(ctx); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d wells loaded", len(m.ws.Entities())), nil
	})
}

func (m *Model) handleSelect(args []string) tea.Cmd {
	if len(args) == 0 {
		m.setResult("", errors.New("usage: /select WELL"))
		return nil
	}
	query := strings.Join(args, " ")
	ref, ok := m.findEntity(query)
	if !ok {
		if guess, ok := m.closestEntity(query); ok {
			m.setResult("", fmt.Errorf("no well named %q, did you mean %q?", query, guess.Name))
			return nil
		}
		m.setResult("", fmt.Errorf("no well named %q", query))
		return nil
	}
	m.setResult("", m.ws.SelectEntity(ref))
	return nil
}

func (m *Model) findEntity(query string) (entity.Ref, bool) {
	ents := m.ws.Entities()
	for i, e := range ents {
		if e.ID == query || strings.EqualFold(e.Name, query) {
			m.cursor = i
			return e, true
		}
	}
	return entity.Ref{}, false
}

// closestEntity suggests a well whose name is within 40% edit distance of
// query.
func (m *Model) closestEntity(query string) (entity.Ref, bool) {
	q := strings.ToUpper(query)
	var (
		best  entity.Ref
		score = 0.4
		found bool
	)
	for _, e := range m.ws.Entities() {
		name := strings.ToUpper(e.Name)
		longest := max(len(name), len(q))
		if longest == 0 {
			continue
		}
		d := float64(levenshtein.ComputeDistance(q, name)) / float64(longest)
		if d < score {
			best, score, found = e, d, true
		}
	}
	return best, found
}

func (m *Model) handleOpen(args []string) tea.Cmd {
	if len(args) != 1 {
		m.setResult("", errors.New("usage: /open TYPE"))
		return nil
	}
	id, err := m.ws.OpenWindow(view.BaseType(args[0]))
	if err != nil {
		m.setResult("", err)
		return nil
	}
	m.focusOn(id)
	m.setResult(fmt.Sprintf("Opened %s", id), nil)
	return nil
}

func (m *Model) handleClose(args []string) tea.Cmd {
	id := m.viewArg(args)
	if id == "" {
		m.setResult("", errors.New("usage: /close VIEW"))
		return nil
	}
	m.setResult("", m.ws.CloseView(id))
	return nil
}

func (m *Model) handleToggle(args []string) tea.Cmd {
	if len(args) != 1 {
		m.setResult("", errors.New("usage: /toggle PANEL"))
		return nil
	}
	open, err := m.ws.TogglePanel(args[0])
	if err != nil {
		m.setResult("", err)
		return nil
	}
	state := "hidden"
	if open {
		state = "shown"
	}
	m.setResult(fmt.Sprintf("%s %s", args[0], state), nil)
	return nil
}

func (m *Model) handleLink(args []string) tea.Cmd {
	id := m.viewArg(args)
	if id == "" {
		m.setResult("", errors.New("usage: /link VIEW"))
		return nil
	}
	m.setResult("", m.ws.ToggleLink(id))
	return nil
}

func (m *Model) handleFocus(args []string) tea.Cmd {
	if len(args) != 1 {
		m.setResult("", errors.New("usage: /focus VIEW"))
		return nil
	}
	if err := m.ws.Focus(args[0]); err != nil {
		m.setResult("", err)
		return nil
	}
	m.focusOn(args[0])
	return nil
}

func (m *Model) handleDataset(args []string) tea.Cmd {
	sel := m.ws.SelectedEntity()
	if sel == nil {
		m.setResult("", errors.New("select a well first"))
		return nil
	}
	if len(args) == 0 {
		m.setResult("", errors.New("usage: /dataset NAME"))
		return nil
	}
	m.ws.SelectDataset(sel.ID, strings.Join(args, " "))
	return nil
}

func (m *Model) handleRefresh(args []string) tea.Cmd {
	id := m.viewArg(args)
	if id == "" {
		m.setResult("", errors.New("usage: /refresh VIEW"))
		return nil
	}
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.ws.Refresh(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Refreshed %s", id), nil
	})
}

func (m *Model) handleAxes(args []string) tea.Cmd {
	if len(args) != 3 {
		m.setResult("", errors.New("usage: /axes CROSSPLOT XLOG YLOG"))
		return nil
	}
	if b, _ := view.ParseID(args[0]); b != view.CrossPlot {
		m.setResult("", fmt.Errorf("%s is not a cross plot", args[0]))
		return nil
	}
	m.ws.SetCrossPlotAxes(args[0], view.Axes{XLog: args[1], YLog: args[2]})
	return nil
}

func (m *Model) handleControl(args []string) tea.Cmd {
	if len(args) != 1 {
		m.setResult("", errors.New("usage: /control CROSSPLOT"))
		return nil
	}
	m.setResult("", m.ws.OpenCrossPlotControl(args[0]))
	return nil
}

func (m *Model) handleSave(args []string) tea.Cmd {
	name := strings.Join(args, " ")
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.ws.Save(ctx, name); err != nil {
			return "", err
		}
		return "Layout saved", nil
	})
}

func (m *Model) handleLoad(args []string) tea.Cmd {
	name := strings.Join(args, " ")
	return m.run(func(ctx context.Context) (string, error) {
		found, err := m.ws.Load(ctx, name)
		if err != nil {
			return "", err
		}
		if !found {
			return "No saved layout found", nil
		}
		return "Layout loaded", nil
	})
}

func (m *Model) handleLayouts(_ []string) tea.Cmd {
	return m.run(func(ctx context.Context) (string, error) {
		list, err := m.ws.ListLayouts(ctx)
		if err != nil {
			return "", err
		}
		if len(list) == 0 {
			return "No saved layouts", nil
		}
		names := make([]string, 0, len(list))
		for _, s := range list {
			names = append(names, s.LayoutName)
		}
		return "Layouts: " + strings.Join(names, ", "), nil
	})
}

func (m *Model) handleDelete(args []string) tea.Cmd {
	if len(args) == 0 {
		m.setResult("", errors.New("usage: /delete NAME"))
		return nil
	}
	name := strings.Join(args, " ")
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.ws.DeleteLayout(ctx, name); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted %s", name), nil
	})
}

func (m *Model) handleReset(_ []string) tea.Cmd {
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.ws.Reset(ctx); err != nil {
			return "", err
		}
		return "Layout reset", nil
	})
}

func (m *Model) handleQuit(_ []string) tea.Cmd {
	m.quitting = true
	m.Close()
	return tea.Quit
}

// viewArg returns the view named in args or the focused one.
func (m *Model) viewArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return m.focusedView()
}

func (m *Model) focusOn(id string) {
	for i, v := range m.ws.Views() {
		if v == id {
			m.focused = i
			return
		}
	}
}
