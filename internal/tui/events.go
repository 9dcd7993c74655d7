package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/litescript/oxviewer/pkg/plugin"
)

type pluginEvent int

const (
	installStart pluginEvent = iota
	installProgress
	installSuccess
	installFailure
	uninstallStart
	uninstallSuccess
	uninstallFailure
)

// pluginEventMsg carries one plugin.Listener callback into Update.
type pluginEventMsg struct {
	event    pluginEvent
	info     plugin.Info
	progress float64
	state    plugin.State
	err      error
}

// patternChangedMsg is sent when a section invalidates its pattern.
type patternChangedMsg struct{}

// themeChangedMsg is sent after the terminal theme was reloaded.
type themeChangedMsg struct{}

// Events turns plugin manager callbacks and other background notifications
// into tea messages. Register it with the plugin manager and hand it to
// NewModel; the model keeps a command waiting on it.
type Events struct {
	ch chan tea.Msg
}

var _ plugin.Listener = (*Events)(nil)

// NewEvents creates an event queue.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, 64)}
}

// wait returns a command delivering the next event.
func (e *Events) wait() tea.Cmd {
	return func() tea.Msg {
		return <-e.ch
	}
}

func (e *Events) send(msg tea.Msg) {
	e.ch <- msg
}

// ThemeChanged asks the model to redraw with the new theme.
func (e *Events) ThemeChanged() {
	// Dropped if a redraw is already queued
	select {
	case e.ch <- themeChangedMsg{}:
	default:
	}
}

func (e *Events) patternChanged() {
	select {
	case e.ch <- patternChangedMsg{}:
	default:
	}
}

func (e *Events) OnInstallStart(info plugin.Info) {
	e.send(pluginEventMsg{event: installStart, info: info})
}

func (e *Events) OnInstallProgress(info plugin.Info, progress float64) {
	e.send(pluginEventMsg{event: installProgress, info: info, progress: progress})
}

func (e *Events) OnInstallSuccess(info plugin.Info, state plugin.State) {
	e.send(pluginEventMsg{event: installSuccess, info: info, state: state})
}

func (e *Events) OnInstallFailure(info plugin.Info, err error) {
	e.send(pluginEventMsg{event: installFailure, info: info, err: err})
}

func (e *Events) OnUninstallStart(info plugin.Info) {
	e.send(pluginEventMsg{event: uninstallStart, info: info})
}

func (e *Events) OnUninstallSuccess(info plugin.Info) {
	e.send(pluginEventMsg{event: uninstallSuccess, info: info})
}

func (e *Events) OnUninstallFailure(info plugin.Info, err error) {
	e.send(pluginEventMsg{event: uninstallFailure, info: info, err: err})
}
