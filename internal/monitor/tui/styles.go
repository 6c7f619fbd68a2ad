package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	minTerminalWidth = 60
	maxContentWidth  = 120
)

// Color palette, same naming convention and purple/green/red/gray scheme
// as the configuration wizard's styles, trimmed to what a single status
// table needs.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#43BF6D")
	errorColor   = lipgloss.Color("#FF5555")
	mutedColor   = lipgloss.Color("#626262")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	headerRowStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	availYesStyle     = lipgloss.NewStyle().Foreground(successColor)
	availNoStyle      = lipgloss.NewStyle().Foreground(errorColor)
	availUnknownStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

// terminalWidth returns the current terminal column count, clamped to
// [minTerminalWidth, maxContentWidth], falling back to minTerminalWidth
// when stdout isn't a terminal (e.g. piped output).
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < minTerminalWidth {
		return minTerminalWidth
	}
	if width > maxContentWidth {
		return maxContentWidth
	}
	return width
}

// availabilityStyle picks a color for the AVAIL cell: green for a
// reporting device, red for one that has gone unavailable, gray while
// nothing has been heard from it yet.
func availabilityStyle(avail string) lipgloss.Style {
	switch avail {
	case "yes":
		return availYesStyle
	case "no":
		return availNoStyle
	default:
		return availUnknownStyle
	}
}
