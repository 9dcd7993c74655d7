package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/internal/pluginman"
	"github.com/litescript/oxviewer/pkg/plugin"
)

type pluginsState struct {
	states []plugin.State
	cursor int

	adding bool
	input  textinput.Model

	// Running installs by package, with their progress in [0, 1]
	progress map[string]float64
}

func newPluginsState() pluginsState {
	ti := textinput.New()
	ti.Placeholder = "Path to a plugin descriptor (.ini)..."
	ti.CharLimit = 1024
	ti.Width = 60

	return pluginsState{
		input:    ti,
		progress: make(map[string]float64),
	}
}

func packageKey(info plugin.Info) string {
	return info.Uploader + "/" + info.Name
}

// pluginOpMsg reports the end of an operation started from the UI.
type pluginOpMsg struct {
	action string
	state  plugin.State
	err    error
}

func (m *Model) reloadStates() {
	states := m.deps.Plugins.States()
	sort.Slice(states, func(i, j int) bool {
		a, b := states[i].Info, states[j].Info
		if a.DisplayName != b.DisplayName {
			return strings.ToLower(a.DisplayName) < strings.ToLower(b.DisplayName)
		}
		return a.Uploader < b.Uploader
	})
	m.plugins.states = states
	if m.plugins.cursor >= len(states) {
		m.plugins.cursor = max(0, len(states)-1)
	}
}

func (m *Model) selectedState() (plugin.State, bool) {
	p := m.plugins
	if p.cursor < 0 || p.cursor >= len(p.states) {
		return plugin.State{}, false
	}
	return p.states[p.cursor], true
}

func (m Model) handlePluginsKey(key string) (tea.Model, tea.Cmd) {
	p := &m.plugins

	switch key {
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.states)-1 {
			p.cursor++
		}
	case "a":
		p.adding = true
		p.input.SetValue("")
		return m, p.input.Focus()
	case "e", "enter":
		if st, ok := m.selectedState(); ok {
			return m, m.setEnabled(st.Info, !st.Enabled)
		}
	case "x":
		if st, ok := m.selectedState(); ok {
			return m, m.uninstall(st.Info)
		}
	case "r":
		if m.deps.Rescan != nil {
			m.statusMsg = "Scanning drop-ins..."
			return m, m.rescan()
		}
	}
	return m, nil
}

func (m Model) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.plugins

	switch msg.String() {
	case "esc":
		p.adding = false
		p.input.Blur()
		return m, nil
	case "enter":
		path := strings.TrimSpace(p.input.Value())
		p.adding = false
		p.input.Blur()
		if path == "" {
			return m, nil
		}
		return m, m.installDescriptor(path)
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return m, cmd
}

func (m Model) installDescriptor(path string) tea.Cmd {
	manager, timeout := m.deps.Plugins, m.deps.Timeout
	return func() tea.Msg {
		if !strings.EqualFold(filepath.Ext(path), ".ini") {
			return pluginOpMsg{action: "Install", err: errors.New("expected a .ini descriptor")}
		}
		info, err := pluginman.ParseDescriptor(path)
		if err != nil {
			return pluginOpMsg{action: "Install", err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := manager.Install(ctx, info)
		return pluginOpMsg{action: "Install", state: st, err: err}
	}
}

func (m Model) setEnabled(info plugin.Info, enabled bool) tea.Cmd {
	manager, timeout := m.deps.Plugins, m.deps.Timeout
	action := "Disable"
	if enabled {
		action = "Enable"
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := manager.SetEnabled(ctx, info.Name, info.Uploader, enabled)
		return pluginOpMsg{action: action, state: st, err: err}
	}
}

func (m Model) uninstall(info plugin.Info) tea.Cmd {
	manager, timeout := m.deps.Plugins, m.deps.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := manager.Uninstall(ctx, info.Name, info.Uploader)
		return pluginOpMsg{action: "Uninstall", state: plugin.State{Info: info}, err: err}
	}
}

func (m Model) rescan() tea.Cmd {
	rescan, timeout := m.deps.Rescan, m.deps.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		rescan(ctx)
		return pluginOpMsg{action: "Rescan"}
	}
}

func (m *Model) handlePluginOp(msg pluginOpMsg) {
	m.reloadStates()
	m.reloadSections()

	name := msg.state.Info.DisplayName
	switch {
	case msg.err != nil:
		m.statusMsg = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		m.deps.Logger.Warn("plugin operation failed",
			zap.String("action", msg.action), zap.Error(msg.err))
	case msg.state.Err != nil:
		m.statusMsg = fmt.Sprintf("%s: %s can't be loaded: %v", msg.action, name, msg.state.Err)
	case name != "":
		m.statusMsg = fmt.Sprintf("%s: %s", msg.action, name)
	default:
		m.statusMsg = msg.action + " done"
	}
}

func (m *Model) handlePluginEvent(msg pluginEventMsg) {
	p := &m.plugins
	key := packageKey(msg.info)

	switch msg.event {
	case installStart:
		p.progress[key] = 0
		m.statusMsg = "Installing " + msg.info.DisplayName + "..."
	case installProgress:
		p.progress[key] = msg.progress
	case installSuccess, installFailure:
		delete(p.progress, key)
	case uninstallStart:
		m.statusMsg = "Uninstalling " + msg.info.DisplayName + "..."
	}

	// Installs from drop-ins change the plugin set too
	switch msg.event {
	case installSuccess, installFailure, uninstallSuccess, uninstallFailure:
		m.reloadStates()
		m.reloadSections()
	}
	if msg.event == installFailure || msg.event == uninstallFailure {
		m.statusMsg = fmt.Sprintf("%s: %v", msg.info.DisplayName, msg.err)
	}
}

func (m Model) renderPluginsTab(height int) string {
	styles := GetStyles()
	p := m.plugins
	var b strings.Builder

	if p.adding {
		b.WriteString(styles.Prompt.Render("Descriptor: ") + p.input.View())
	} else {
		b.WriteString(styles.Header.UnsetPadding().Render("Plugins"))
		b.WriteString("  ")
		b.WriteString(styles.Muted.Render("[a]Add  [e]Enable/disable  [x]Uninstall  [r]Rescan drop-ins"))
	}
	b.WriteString("\n\n")

	// Installs in flight that aren't in the registry yet
	keys := make([]string, 0, len(p.progress))
	for key := range p.progress {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		progress := p.progress[key]
		b.WriteString(fmt.Sprintf("%s %s %3.0f%%\n", PadRight(key, 30), ProgressBar(progress, 20), progress*100))
	}

	if len(p.states) == 0 {
		b.WriteString(styles.Muted.Render("No plugins installed. Press 'a' to add one or drop a descriptor into the drop-ins directory."))
		return b.String()
	}

	statusWidth, versionWidth, uploaderWidth := 10, 10, 16
	nameWidth := max(20, m.width-statusWidth-versionWidth-uploaderWidth-8)

	header := fmt.Sprintf("  %s %s %s %s",
		PadRight("PLUGIN", nameWidth),
		PadRight("UPLOADER", uploaderWidth),
		PadRight("VERSION", versionWidth),
		PadLeft("STATUS", statusWidth))
	b.WriteString(styles.Muted.Bold(true).Render(header))
	b.WriteString("\n")

	visible := max(1, height-4-len(p.progress))
	start := 0
	if p.cursor >= visible {
		start = p.cursor - visible + 1
	}
	end := min(len(p.states), start+visible)

	for i := start; i < end; i++ {
		st := p.states[i]

		var status string
		switch {
		case !st.Enabled:
			status = styles.Disabled.Render(PadLeft("Disabled", statusWidth))
		case st.Err != nil:
			status = styles.Error.Render(PadLeft("Error", statusWidth))
		case st.Loaded():
			status = styles.Enabled.Render(PadLeft("Loaded", statusWidth))
		default:
			status = styles.Muted.Render(PadLeft("Enabled", statusWidth))
		}

		row := fmt.Sprintf("%s %s %s ",
			PadRight(st.Info.DisplayName, nameWidth),
			PadRight(st.Info.DisplayUploader, uploaderWidth),
			PadRight(st.Info.DisplayVersion, versionWidth))
		if i == p.cursor {
			b.WriteString(styles.Selected.Render("▸ "+row) + status)
		} else {
			b.WriteString(styles.Row.Render("  "+row) + status)
		}
		b.WriteString("\n")
	}

	if st, ok := m.selectedState(); ok && st.Err != nil {
		b.WriteString("\n" + styles.Error.Render(TruncateString(st.Err.Error(), max(20, m.width-2))))
	}
	return b.String()
}
