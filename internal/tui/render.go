package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/codefionn/wellspace/internal/activity"
	"github.com/codefionn/wellspace/internal/fence"
	"github.com/codefionn/wellspace/internal/view"
)

var (
	// titleStyle is the style for the application title in the header
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginLeft(2)

	// statusStyle is the style for status indicators (scope, layout, selection)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginLeft(2)

	// errorStyle is the style for error messages in the footer
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			MarginLeft(2)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("63"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	unlinkedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	kindStyles = map[activity.Kind]lipgloss.Style{
		activity.KindInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		activity.KindSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		activity.KindWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		activity.KindError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n")

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		sectionStyle.Render(m.renderEntities()),
		sectionStyle.Render(m.renderViews()),
	)
	sb.WriteString(body)
	sb.WriteString("\n")

	if m.help != "" {
		sb.WriteString(m.help)
		sb.WriteString("\n")
	}

	sb.WriteString(m.logView.View())
	sb.WriteString("\n")
	sb.WriteString(m.input.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m *Model) renderHeader() string {
	scope := m.ws.Scope()
	scopeText := "no project open (/scope PATH)"
	if !scope.IsZero() {
		scopeText = scope.Path
		if scope.Name != "" {
			scopeText = fmt.Sprintf("%s (%s)", scope.Name, scope.Path)
		}
	}
	selected := "none"
	if sel := m.ws.SelectedEntity(); sel != nil {
		selected = sel.DisplayName()
	}

	title := titleStyle.Render("wellspace")
	status := statusStyle.Render(fmt.Sprintf("Project: %s  Well: %s  Layout: %s",
		scopeText, selected, m.ws.CurrentLayoutName()))
	return title + "\n" + status + "\n"
}

func (m *Model) renderEntities() string {
	ents := m.ws.Entities()
	sel := m.ws.SelectedEntity()

	var sb strings.Builder
	sb.WriteString(view.Wells.Title())
	sb.WriteString("\n")
	if len(ents) == 0 {
		sb.WriteString(mutedStyle.Render("no wells"))
		return sb.String()
	}
	for i, e := range ents {
		line := e.DisplayName()
		if sel != nil && sel.Same(e) {
			line = selectedStyle.Render("● " + line)
		} else {
			line = "  " + line
		}
		if i == m.cursor {
			line = cursorStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) renderViews() string {
	var sb strings.Builder
	sb.WriteString("Views")
	sb.WriteString("\n")

	focused := m.focusedView()
	for _, id := range m.ws.Views() {
		sb.WriteString(m.renderView(id, id == focused))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) renderView(id string, focused bool) string {
	p := m.ws.Props(id)
	marker := "  "
	if focused {
		marker = "▸ "
	}
	line := marker + p.Title

	if !p.Linkable {
		return line
	}

	link := "linked"
	if !p.Linked {
		link = unlinkedStyle.Render("unlinked")
	}
	line += fmt.Sprintf(" [%s]", link)

	d, err := m.ws.Data(id)
	if err != nil {
		return line
	}
	switch {
	case d.Loading:
		line += " " + m.spinner.View() + " loading"
	case d.Err != nil:
		line += " " + errorStyle.MarginLeft(0).Render("error: "+d.Err.Error())
	case errors.Is(d.Empty, fence.ErrOutOfScope):
		line += " " + mutedStyle.Render("no matching well in this project")
	case p.Entity == nil:
		line += " " + mutedStyle.Render("no well")
	case d.Loaded:
		line += fmt.Sprintf(" %s: %d datasets", p.Entity.DisplayName(), len(d.Datasets))
		if p.Dataset != "" {
			line += fmt.Sprintf(" (%s)", p.Dataset)
		}
	default:
		line += " " + p.Entity.DisplayName()
	}

	if p.Base == view.CrossPlot && (p.Axes.XLog != "" || p.Axes.YLog != "") {
		line += fmt.Sprintf(" x=%s y=%s", p.Axes.XLog, p.Axes.YLog)
	}
	return line
}

func (m *Model) renderFooter() string {
	if m.err != nil && (m.errUntil.IsZero() || time.Now().Before(m.errUntil)) {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	return statusStyle.Render("tab: next view  ↑/↓: wells  enter: select  ctrl+l: link  ctrl+c: quit")
}

func formatEntry(e activity.Entry) string {
	style, ok := kindStyles[e.Kind]
	if !ok {
		style = kindStyles[activity.KindInfo]
	}
	return style.Render(e.String())
}

func wrapLines(lines []string, width int) string {
	var sb strings.Builder
	for i, l := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(wordwrap.String(l, width))
	}
	return sb.String()
}
