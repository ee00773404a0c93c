package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cruft-ninja/script-runner/internal/logsink"
	"github.com/cruft-ninja/script-runner/internal/procstat"
	"github.com/cruft-ninja/script-runner/internal/tui/render"
)

const (
	buttonWidth = 26
	minBody     = 3
)

func (m Model) gridCols() int {
	return max(1, m.width/buttonWidth)
}

func (m Model) gridRows() int {
	cols := m.gridCols()
	return (len(m.scripts) + cols - 1) / cols
}

func (m Model) helpHeight() int {
	return lipgloss.Height(m.help.View(m.keys))
}

// bodyHeight is what remains for the log view after the header, the button
// grid, the tab bar, the status line and the help footer.
func (m Model) bodyHeight() int {
	h := m.height - 1 - m.gridRows() - 1 - 1 - 1 - m.helpHeight()
	return max(minBody, h)
}

func (m *Model) layout() {
	m.help.Width = m.width
	m.viewport.Width = m.width
	m.viewport.Height = m.bodyHeight()
	m.scratch.SetWidth(m.width)
	m.scratch.SetHeight(m.bodyHeight())
	m.password.Width = min(40, max(10, m.width-20))
	m.refreshViewport(false)
}

// View renders the interface.
func (m Model) View() string {
	var body string

	switch {
	case m.focus == focusPrompt && len(m.prompts) > 0:
		body = m.renderPrompt()
	case m.focus == focusQuit:
		body = m.renderQuit()
	case m.activeTab().id == logsink.Scratch:
		body = m.scratch.View()
	default:
		body = m.viewport.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderGrid(),
		"",
		m.renderTabs(),
		body,
		m.renderStatus(),
		m.help.View(m.keys),
	)
}

func (m Model) renderHeader() string {
	right := fmt.Sprintf("running %d/%d", len(m.running), m.ceiling)

	if m.host.MemoryTotal > 0 {
		right += fmt.Sprintf(" · cpu %.0f%% · mem %s/%s",
			m.host.CPUPercent, procstat.FormatBytes(m.host.MemoryUsed), procstat.FormatBytes(m.host.MemoryTotal))
	}

	return render.SpaceBetween(titleStyle.Render(m.title), mutedStyle.Render(right), m.width)
}

func (m Model) renderGrid() string {
	if len(m.scripts) == 0 {
		return mutedStyle.Render("No scripts in the catalog.")
	}

	cols := m.gridCols()
	rows := make([]string, 0, m.gridRows())

	var row []string

	for i, s := range m.scripts {
		row = append(row, m.renderButton(i, s.DisplayLabel(), s.NeedsSudo, s.Identity()))

		if len(row) == cols || i == len(m.scripts)-1 {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row = nil
		}
	}

	return strings.Join(rows, "\n")
}

func (m Model) renderButton(i int, label string, sudo bool, identity string) string {
	marker := "  "
	if _, live := m.running[identity]; live {
		marker = "● "
	} else if !m.enabled[identity] {
		marker = "… "
	}

	suffix := ""
	if sudo {
		suffix = " #"
	}

	inner := buttonWidth - 4
	text := marker + render.Truncate(label, inner-len(marker)-len(suffix)) + suffix

	style := buttonStyle

	switch {
	case !m.enabled[identity] && i == m.selected:
		style = buttonDisabledSelectedStyle
	case !m.enabled[identity]:
		style = buttonDisabledStyle
	case i == m.selected:
		style = buttonSelectedStyle
	}

	return style.Width(buttonWidth-2).Render(text) + "  "
}

func (m Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))

	for i, t := range m.tabs {
		label := render.Truncate(t.label, 20)
		if _, live := m.running[t.identity]; live && t.identity != "" {
			label = "● " + label
		}

		if i == m.active {
			parts = append(parts, tabActiveStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}

	return render.TruncateStyled(strings.Join(parts, mutedStyle.Render("│")), m.width)
}

func (m Model) renderStatus() string {
	t := m.activeTab()

	if pid, live := m.running[t.identity]; live && t.identity != "" {
		line := fmt.Sprintf("pid %d", pid)
		if p, ok := m.stats[t.identity]; ok {
			line += fmt.Sprintf(" · cpu %.1f%% · rss %s · %d proc(s)", p.CPUPercent, procstat.FormatBytes(p.RSS), p.Procs)
		}

		return mutedStyle.Render(render.Truncate(line, m.width))
	}

	return mutedStyle.Render(render.Truncate(m.status, m.width))
}

func (m Model) promptLabel() string {
	if len(m.prompts) == 0 {
		return ""
	}

	p := m.prompts[0].Prompt
	if p.Label != "" {
		return p.Label
	}

	return p.Identity
}

func (m Model) renderPrompt() string {
	lines := []string{
		titleStyle.Render("Password required"),
		"",
		render.Truncate(m.promptLabel(), 40) + " needs elevated privileges.",
		"",
		m.password.View(),
		"",
	}

	if m.promptErr != "" {
		lines = append(lines, errorTextStyle.Render(m.promptErr), "")
	}

	hint := "enter submit · esc cancel · ctrl+r show"
	if m.reveal {
		hint = "enter submit · esc cancel · ctrl+r hide"
	}

	lines = append(lines, mutedStyle.Render(hint))

	if queued := len(m.prompts) - 1; queued > 0 {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("%d more waiting", queued)))
	}

	box := modalStyle.Render(strings.Join(lines, "\n"))

	return lipgloss.Place(m.width, m.bodyHeight(), lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderQuit() string {
	box := modalStyle.Render(strings.Join([]string{
		titleStyle.Render("Quit?"),
		"",
		fmt.Sprintf("%d script(s) still running. They will be terminated.", m.Running()),
		"",
		mutedStyle.Render("y quit · n stay"),
	}, "\n"))

	return lipgloss.Place(m.width, m.bodyHeight(), lipgloss.Center, lipgloss.Center, box)
}
