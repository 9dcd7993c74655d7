package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/oxviewer/internal/theme"
)

// GetStyles returns current themed styles
func GetStyles() theme.Styles {
	return theme.Current()
}

// ProgressBar renders progress in [0, 1] as a bar of width cells
func ProgressBar(progress float64, width int) string {
	styles := GetStyles()

	progress = max(0, min(progress, 1))
	filled := int(progress * float64(width))

	return styles.Progress.Render(strings.Repeat("█", filled)) +
		styles.Muted.Render(strings.Repeat("░", width-filled))
}

// TruncateString truncates a string to max cells with an ellipsis
func TruncateString(s string, max int) string {
	if lipgloss.Width(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= 3 {
		return string(r[:min(max, len(r))])
	}
	for lipgloss.Width(string(r)) > max-3 {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

// PadRight pads a string to a specific width
func PadRight(s string, width int) string {
	s = TruncateString(s, width)
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}

// PadLeft pads a string on the left to a specific width
func PadLeft(s string, width int) string {
	s = TruncateString(s, width)
	return strings.Repeat(" ", width-lipgloss.Width(s)) + s
}

// formatRating formats a [0, 10] rating, "-" when unknown
func formatRating(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *r)
}

// formatCount formats an optional count, "-" when unknown
func formatCount(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
