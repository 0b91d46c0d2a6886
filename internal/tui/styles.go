package tui

import "github.com/charmbracelet/lipgloss"

// Styles for the TUI
type Styles struct {
	Title   lipgloss.Style
	Subtle  lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Accent  lipgloss.Style
	Panel   lipgloss.Style
	Help    lipgloss.Style
}

func NewStyles() *Styles {
	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		Subtle:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		Help: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}
