// Package ui provides terminal styling for pg command output.
//
// Styling is applied only when stdout is a terminal; piped output stays
// plain so it can be fed to other tools.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	successColor = lipgloss.Color("#8BC34A")
	warningColor = lipgloss.Color("#FFC107")
	errorColor   = lipgloss.Color("#E53935")
	infoColor    = lipgloss.Color("#2196F3")
	mutedColor   = lipgloss.Color("#808080")

	headingStyle = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	infoStyle    = lipgloss.NewStyle().Foreground(infoColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	idStyle      = lipgloss.NewStyle().Bold(true).Foreground(infoColor)
)

// severityColors maps record severities and priorities to colors.
var severityColors = map[string]lipgloss.Color{
	"low":      mutedColor,
	"medium":   infoColor,
	"high":     warningColor,
	"critical": errorColor,
}

var interactive = detectInteractive()

func detectInteractive() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// Interactive reports whether styled output is in effect.
func Interactive() bool {
	return interactive
}

func render(style lipgloss.Style, s string) string {
	if !interactive {
		return s
	}
	return style.Render(s)
}

// Heading formats a section heading.
func Heading(s string) string { return render(headingStyle, s) }

// Success formats a confirmation line.
func Success(s string) string { return render(successStyle, s) }

// Warn formats a warning line.
func Warn(s string) string { return render(warningStyle, s) }

// Error formats an error line.
func Error(s string) string { return render(errorStyle, s) }

// Info formats an informational line.
func Info(s string) string { return render(infoStyle, s) }

// Muted formats de-emphasized detail text.
func Muted(s string) string { return render(mutedStyle, s) }

// ID formats a record id.
func ID(s string) string { return render(idStyle, s) }

// Severity formats a severity or priority level in its signal color.
func Severity(level string) string {
	color, ok := severityColors[level]
	if !ok {
		return level
	}
	return render(lipgloss.NewStyle().Foreground(color), level)
}

// Score formats a 0-100 health score in a band color.
func Score(score int) string {
	text := fmt.Sprintf("%d/100", score)
	switch {
	case score >= 75:
		return render(successStyle, text)
	case score >= 60:
		return render(warningStyle, text)
	default:
		return render(errorStyle, text)
	}
}

// Tags formats a tag list like [auth, session].
func Tags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return render(mutedStyle, "["+strings.Join(tags, ", ")+"]")
}

// KeyValue formats an aligned "key: value" detail line.
func KeyValue(key, value string) string {
	return fmt.Sprintf("  %s %s", render(mutedStyle, key+":"), value)
}
