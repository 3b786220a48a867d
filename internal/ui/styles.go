// Package ui holds terminal styles for daycast command output.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors used in command output.
var (
	colorPrimary = lipgloss.Color("62")  // Purple
	colorMuted   = lipgloss.Color("241") // Gray
	colorSuccess = lipgloss.Color("78")  // Green
	colorWarning = lipgloss.Color("214") // Orange
	colorError   = lipgloss.Color("196") // Red
)

// Title style for section headings.
var Title = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorPrimary)

// Label style for the key column of key/value lines.
var Label = lipgloss.NewStyle().
	Foreground(colorMuted).
	Width(16)

// Muted style for secondary text such as IDs and timestamps.
var Muted = lipgloss.NewStyle().
	Foreground(colorMuted)

// SuccessStyle for completed actions.
var SuccessStyle = lipgloss.NewStyle().
	Foreground(colorSuccess)

// WarningStyle for queued or degraded states.
var WarningStyle = lipgloss.NewStyle().
	Foreground(colorWarning)

// ErrorStyle for failures.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Bold(true)

// Badge style for short inline tags like an item type.
var Badge = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// Section renders a heading.
func Section(title string) string {
	return Title.Render(title)
}

// KV renders one aligned key/value line.
func KV(key string, value any) string {
	return Label.Render(key+":") + " " + fmt.Sprint(value)
}

// Connectivity renders the online/offline indicator.
func Connectivity(operational bool) string {
	if operational {
		return SuccessStyle.Render("● online")
	}
	return ErrorStyle.Render("○ offline")
}

// Success renders a completed action.
func Success(format string, args ...any) string {
	return SuccessStyle.Render("✓ " + fmt.Sprintf(format, args...))
}

// Warning renders a queued or degraded outcome.
func Warning(format string, args ...any) string {
	return WarningStyle.Render("! " + fmt.Sprintf(format, args...))
}

// Error renders a failure.
func Error(format string, args ...any) string {
	return ErrorStyle.Render("✗ " + fmt.Sprintf(format, args...))
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
// Newlines are folded into spaces.
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
