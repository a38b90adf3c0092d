package ui

import "github.com/charmbracelet/lipgloss"

// Terminal palette. Standard ANSI colors follow the user's terminal theme;
// the plot itself uses the configured 24-bit theme.
var (
	colorTitle   = lipgloss.ANSIColor(12) // bright blue
	colorText    = lipgloss.ANSIColor(7)
	colorDim     = lipgloss.ANSIColor(8)
	colorAccent  = lipgloss.ANSIColor(11)
	colorPlaying = lipgloss.ANSIColor(10)
	colorPaused  = lipgloss.ANSIColor(11)
	colorMarker  = lipgloss.ANSIColor(2)
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorTitle).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	timeStyle = lipgloss.NewStyle().
			Foreground(colorText)

	playingStyle = lipgloss.NewStyle().
			Foreground(colorPlaying).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(colorPaused).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Bold(true)

	markerStyle = lipgloss.NewStyle().
			Foreground(colorMarker)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.ANSIColor(9))
)
