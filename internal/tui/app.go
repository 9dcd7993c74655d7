// Package tui implements the terminal user interface using Bubble Tea.
// It lets the user search the sections of the installed source plugins and
// manage the plugins themselves.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/internal/theme"
	"github.com/litescript/oxviewer/internal/version"
	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

const defaultTimeout = 30 * time.Second

// Tabs
type tabType int

const (
	tabSearch tabType = iota
	tabPlugins
)

// PluginManager is the part of the plugin manager the UI drives.
type PluginManager interface {
	Install(ctx context.Context, info plugin.Info) (plugin.State, error)
	Uninstall(ctx context.Context, name, uploader string) error
	SetEnabled(ctx context.Context, name, uploader string, enabled bool) (plugin.State, error)
	States() []plugin.State
}

// Deps are the services the UI works with.
type Deps struct {
	Plugins PluginManager
	// Sections lists what can be searched. It is called again whenever
	// the set of loaded plugins changes.
	Sections func() []source.Section
	Events   *Events
	// Rescan installs new drop-in descriptors. Optional.
	Rescan func(ctx context.Context)
	// Updates is asked for a newer release at startup. Optional.
	Updates *version.Checker
	Logger  *zap.Logger
	// Timeout bounds searches and plugin operations.
	Timeout time.Duration
}

// Model is the main application state
type Model struct {
	deps Deps

	// Components
	spinner spinner.Model

	// State
	activeTab tabType
	statusMsg string
	width     int
	height    int

	search  searchState
	plugins pluginsState
}

type updateCheckMsg struct {
	info version.UpdateInfo
}

// NewModel creates the initial model
func NewModel(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultTimeout
	}
	if deps.Events == nil {
		deps.Events = NewEvents()
	}
	if deps.Sections == nil {
		deps.Sections = func() []source.Section { return nil }
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.CurrentPalette().Accent))

	m := Model{
		deps:    deps,
		spinner: sp,
		plugins: newPluginsState(),
	}
	m.reloadSections()
	m.reloadStates()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.deps.Events.wait()}
	if m.deps.Updates != nil {
		cmds = append(cmds, m.checkForUpdate())
	}
	return tea.Batch(cmds...)
}

func (m Model) checkForUpdate() tea.Cmd {
	checker := *m.deps.Updates
	timeout := m.deps.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return updateCheckMsg{info: checker.CheckForUpdate(ctx)}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.plugins.input.Width = max(20, msg.Width-20)

	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case updateCheckMsg:
		if msg.info.Error != nil {
			m.deps.Logger.Debug("update check failed", zap.Error(msg.info.Error))
		} else if msg.info.UpdateAvailable {
			m.statusMsg = fmt.Sprintf("Update available: v%s -> v%s (run: %s)",
				msg.info.CurrentVersion, msg.info.LatestVersion, version.InstallCommand())
		}

	case searchResultMsg:
		m.handleSearchResult(msg)

	case patternChangedMsg:
		m.search.rebuildPatterns()
		cmds = append(cmds, m.deps.Events.wait())

	case themeChangedMsg:
		m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(theme.CurrentPalette().Accent))
		cmds = append(cmds, m.deps.Events.wait())

	case pluginEventMsg:
		m.handlePluginEvent(msg)
		cmds = append(cmds, m.deps.Events.wait())

	case pluginOpMsg:
		m.handlePluginOp(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) busy() bool {
	return m.search.searching || len(m.plugins.progress) > 0
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys - always work
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "alt+1":
		m.activeTab = tabSearch
		return m, nil
	case "alt+2":
		m.activeTab = tabPlugins
		return m, nil
	}

	// Text inputs get every other key while focused
	if m.activeTab == tabSearch && m.search.editing() {
		return m.handleFormKey(msg)
	}
	if m.activeTab == tabPlugins && m.plugins.adding {
		return m.handleAddKey(msg)
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "tab":
		if m.activeTab == tabSearch {
			m.activeTab = tabPlugins
		} else {
			m.activeTab = tabSearch
		}
		return m, nil
	}

	if m.activeTab == tabPlugins {
		return m.handlePluginsKey(key)
	}
	return m.handleSearchKey(key)
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTabBar())
	b.WriteString("\n\n")

	// Tabs 2, status 2, spacing 2
	contentHeight := max(5, m.height-6)

	switch m.activeTab {
	case tabSearch:
		b.WriteString(m.renderSearchTab(contentHeight))
	case tabPlugins:
		b.WriteString(m.renderPluginsTab(contentHeight))
	}

	b.WriteString("\n\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabBar() string {
	styles := GetStyles()

	loaded := 0
	for _, s := range m.plugins.states {
		if s.Loaded() {
			loaded++
		}
	}

	tabs := []struct {
		name  string
		tab   tabType
		count int
	}{
		{"[1]Search", tabSearch, len(m.search.sections)},
		{"[2]Plugins", tabPlugins, loaded},
	}

	var parts []string
	for _, t := range tabs {
		label := t.name
		if t.count > 0 {
			label = fmt.Sprintf("%s(%d)", t.name, t.count)
		}
		if t.tab == m.activeTab {
			parts = append(parts, styles.ActiveTab.Render(label))
		} else {
			parts = append(parts, styles.Tab.Render(label))
		}
	}

	title := styles.Header.Render("oxviewer v" + version.Version)
	return title + " " + strings.Join(parts, " ")
}

func (m Model) renderStatusBar() string {
	styles := GetStyles()

	var help string
	switch {
	case m.activeTab == tabSearch && m.search.editing():
		help = "[tab]Next field [space]Toggle [←→]Choose [enter]Search [esc]Done"
	case m.activeTab == tabPlugins && m.plugins.adding:
		help = "[enter]Install [esc]Cancel"
	case m.activeTab == tabPlugins:
		help = "[a]Add [e]Enable/disable [x]Uninstall [r]Rescan [tab]Search [q]Quit"
	default:
		help = "[/]Query [[ ]]Section [n/p]Page [s]Sort [enter]Open [esc]Back [q]Quit"
	}

	left := m.statusMsg
	if m.busy() {
		left = m.spinner.View() + " " + left
	}

	right := styles.HelpKey.Render(help)
	padding := max(1, m.width-lipgloss.Width(left)-lipgloss.Width(right)-2)
	return styles.StatusBar.Render(left) + strings.Repeat(" ", padding) + right
}
