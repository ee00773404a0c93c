package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("238"))
	buttonSelectedStyle = buttonStyle.
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("12")).
				Bold(true)
	buttonDisabledStyle = buttonStyle.
				Foreground(lipgloss.Color("243")).
				Background(lipgloss.Color("236"))
	buttonDisabledSelectedStyle = buttonDisabledStyle.
					Underline(true)

	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("250"))
	tabActiveStyle = tabStyle.Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12"))

	errLineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	doneLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	infoLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(1, 2)
	errorTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// styleLine colors a log line by its tag.
func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[ERR]"), strings.HasPrefix(line, "[ERROR]"), strings.HasPrefix(line, "[FAIL"):
		return errLineStyle.Render(line)
	case strings.HasPrefix(line, "[WARN]"):
		return warnLineStyle.Render(line)
	case strings.HasPrefix(line, "[DONE]"):
		return doneLineStyle.Render(line)
	case strings.HasPrefix(line, "[INFO]"):
		return infoLineStyle.Render(line)
	case strings.HasPrefix(line, "####"):
		return mutedStyle.Render(line)
	default:
		return line
	}
}
