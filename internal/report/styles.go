package report

import "github.com/charmbracelet/lipgloss"

var (
	accent  = lipgloss.Color("63")
	subtle  = lipgloss.Color("240")
	success = lipgloss.Color("42")
	failure = lipgloss.Color("196")
	warning = lipgloss.Color("220")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	numberStyle = cellStyle.Align(lipgloss.Right)

	mutedStyle   = lipgloss.NewStyle().Foreground(subtle)
	okStyle      = lipgloss.NewStyle().Foreground(success)
	failStyle    = lipgloss.NewStyle().Foreground(failure).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(warning)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)
)
