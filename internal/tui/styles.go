package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
	colorHelp   = lipgloss.Color("241")
)

var paneBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())

// Pane borders.
var (
	StyleFocusedBorder   = paneBorder.BorderForeground(colorAccent)
	StyleUnfocusedBorder = paneBorder.BorderForeground(colorMuted)
)

func statusStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}

// Task status styles. Direct marks tasks answered with a GeoGebra command
// instead of an agent call.
var (
	StyleStatusRunning  = statusStyle("yellow")
	StyleStatusComplete = statusStyle("green")
	StyleStatusFailed   = statusStyle("red")
	StyleStatusDirect   = lipgloss.NewStyle().Foreground(lipgloss.Color("cyan"))
	StyleStatusPending  = lipgloss.NewStyle().Foreground(colorMuted)
)

var (
	StyleTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleLabel    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	StyleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
	StyleHelp     = lipgloss.NewStyle().Foreground(colorHelp)
)
