package main

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	labelStyle = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("#8BE9FD"))
)

// field renders one "label  value" status line.
func field(label, value string) string {
	return labelStyle.Render(label) + value
}
