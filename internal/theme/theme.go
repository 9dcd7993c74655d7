// Package theme derives the TUI colours from the terminal's own
// configuration. Omarchy, Alacritty, Kitty and Foot configs are read in that
// order; OXV_BG, OXV_FG, OXV_MUTED and OXV_ACCENT override the result.
package theme

import (
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

// Palette holds the color scheme for the TUI
type Palette struct {
	BG       string // background
	FG       string // foreground (primary text)
	Muted    string // secondary info, disabled plugins
	Accent   string // enabled plugins, progress
	AccentBg string // selection background
	Error    string
}

// DefaultPalette returns the fallback amber-on-dark theme
func DefaultPalette() Palette {
	return Palette{
		BG:       "#0a0a0a",
		FG:       "#d4a017",
		Muted:    "#6b6b4f",
		Accent:   "#8bc34a",
		AccentBg: "#1a1a14",
		Error:    "#ff6b6b",
	}
}

// Styles holds the lipgloss styles derived from a palette
type Styles struct {
	Header    lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	StatusBar lipgloss.Style
	Prompt    lipgloss.Style
	Input     lipgloss.Style
	Row       lipgloss.Style
	Selected  lipgloss.Style
	Enabled   lipgloss.Style
	Disabled  lipgloss.Style
	Progress  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	HelpKey   lipgloss.Style
	HelpDesc  lipgloss.Style
	Panel     lipgloss.Style
}

// NewStyles creates styles from a palette
func NewStyles(p Palette) Styles {
	fg := lipgloss.Color(p.FG)
	muted := lipgloss.Color(p.Muted)
	accent := lipgloss.Color(p.Accent)

	return Styles{
		Header:    lipgloss.NewStyle().Foreground(fg).Bold(true).Padding(0, 1),
		Tab:       lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		ActiveTab: lipgloss.NewStyle().Foreground(fg).Bold(true).Underline(true).Padding(0, 1),
		StatusBar: lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		Prompt:    lipgloss.NewStyle().Foreground(muted),
		Input:     lipgloss.NewStyle().Foreground(fg),
		Row:       lipgloss.NewStyle().Foreground(fg),
		Selected: lipgloss.NewStyle().
			Foreground(fg).
			Background(lipgloss.Color(p.AccentBg)).
			Bold(true),
		Enabled:  lipgloss.NewStyle().Foreground(accent),
		Disabled: lipgloss.NewStyle().Foreground(muted).Strikethrough(true),
		Progress: lipgloss.NewStyle().Foreground(accent),
		Muted:    lipgloss.NewStyle().Foreground(muted),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.Error)),
		HelpKey:  lipgloss.NewStyle().Foreground(muted),
		HelpDesc: lipgloss.NewStyle().Foreground(fg),
		Panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),
	}
}

type active struct {
	palette Palette
	styles  Styles
}

var current atomic.Pointer[active]

func init() {
	Refresh()
}

// Current returns the active styles. The watcher swaps them while the TUI
// renders, so callers should not cache the result across frames.
func Current() Styles {
	return current.Load().styles
}

// CurrentPalette returns the palette Current was built from.
func CurrentPalette() Palette {
	return current.Load().palette
}

// Refresh reloads the theme from the terminal configs.
func Refresh() {
	p := Detect()
	current.Store(&active{palette: p, styles: NewStyles(p)})
}
