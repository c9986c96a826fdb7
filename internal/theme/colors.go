// Package theme holds the terminal palette and the styles of the run verdict
// lines.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agusx1211/ralphloop/internal/transcript"
)

// Catppuccin Mocha subset.
var (
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")

	ColorRed    = lipgloss.Color("#f38ba8")
	ColorGreen  = lipgloss.Color("#a6e3a1")
	ColorYellow = lipgloss.Color("#f9e2af")
	ColorBlue   = lipgloss.Color("#89b4fa")
	ColorMauve  = lipgloss.Color("#cba6f7")
)

var (
	Success     = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	Failure     = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	Interrupted = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	Info        = lipgloss.NewStyle().Foreground(ColorBlue)
	Dim         = lipgloss.NewStyle().Foreground(ColorOverlay0)
	Accent      = lipgloss.NewStyle().Foreground(ColorMauve).Bold(true)
)

// StatusStyle returns the style for a run status as recorded in metadata.
func StatusStyle(status transcript.Status) lipgloss.Style {
	switch status {
	case transcript.StatusCompleted:
		return Success
	case transcript.StatusInterrupted:
		return Interrupted
	case transcript.StatusFailed:
		return Failure
	default:
		return Info
	}
}

// EndReasonStyle returns the style used for an iteration's end reason.
func EndReasonStyle(reason transcript.EndReason) lipgloss.Style {
	switch reason {
	case transcript.EndPromiseFound:
		return Success
	case transcript.EndContextLimit:
		return Interrupted
	case transcript.EndError:
		return Failure
	case transcript.EndInterrupted:
		return Interrupted
	default:
		return Dim
	}
}
