package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	skyBlue    = lipgloss.Color("#4FC3F7")
	roadAmber  = lipgloss.Color("#FFB300")
	parkGreen  = lipgloss.Color("#66BB6A")
	alertRed   = lipgloss.Color("#EF5350")
	asphalt    = lipgloss.Color("#263238")
	dimWhite   = lipgloss.Color("#B0B0B0")
	mutedGray  = lipgloss.Color("#626262")
	headerText = lipgloss.Color("#FFFFFF")

	titleBarStyle = lipgloss.NewStyle().
			Foreground(headerText).
			Background(asphalt).
			Bold(true).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(skyBlue).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(roadAmber).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(skyBlue).
			Width(18)

	valueStyle = lipgloss.NewStyle().
			Foreground(headerText)

	successStyle = lipgloss.NewStyle().
			Foreground(parkGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(roadAmber)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(mutedGray)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Padding(0, 0, 0, 1)
)

// levelColor maps a log level to its color
func levelColor(level string) lipgloss.Color {
	switch level {
	case "ERROR":
		return alertRed
	case "WARN":
		return roadAmber
	case "SUCCESS":
		return parkGreen
	case "INFO":
		return skyBlue
	}
	return dimWhite
}
