// Package pluginman installs plugin artifacts under a home directory, keeps
// the list of installed plugins in home/plugins.json and loads enabled
// plugins through the registered loaders.
package pluginman

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/litescript/oxviewer/pkg/core"
	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

const (
	registryName = "plugins.json"
	pluginsDir   = "plugins"
	dropinsDir   = "dropins"
	tempSuffix   = ".temp"
)

var (
	// ErrNotInitialized is returned by operations run before Initialize.
	ErrNotInitialized = errors.New("plugin manager not initialized")

	// ErrUnsupported is returned when no loader handles an artifact.
	ErrUnsupported = errors.New("unsupported plugin artifact")
)

type entry struct {
	info    plugin.Info
	enabled bool
	plugin  plugin.Plugin
	err     error
}

func (e *entry) state() plugin.State {
	return plugin.State{
		Info:    e.info,
		Enabled: e.enabled,
		Plugin:  e.plugin,
		Err:     e.err,
	}
}

// Manager implements plugin.Manager on the local file system.
type Manager struct {
	home    string
	loaders map[string]plugin.Loader
	http    *httpc.Client
	ui      core.Dispatcher
	logger  *zap.Logger

	// op serialises Initialize, Install, Uninstall and SetEnabled.
	op          sync.Mutex
	initialized bool

	mu      sync.RWMutex
	entries []*entry

	lmu       sync.Mutex
	listeners []plugin.Listener
}

var _ plugin.Manager = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDispatcher sets where listener callbacks run. The default runs them
// on the goroutine that raised the event.
func WithDispatcher(d core.Dispatcher) Option {
	return func(m *Manager) {
		m.ui = d
	}
}

// WithHTTPClient sets the client used to download http(s) artifacts.
func WithHTTPClient(c *httpc.Client) Option {
	return func(m *Manager) {
		m.http = c
	}
}

// New creates a manager rooted at home. Each loader is registered for the
// extensions it reports; a later loader wins on conflicts.
func New(home string, loaders []plugin.Loader, opts ...Option) *Manager {
	m := &Manager{
		home:    home,
		loaders: make(map[string]plugin.Loader),
		ui:      core.Immediate,
		logger:  zap.NewNop(),
	}
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			m.loaders[strings.TrimPrefix(ext, ".")] = l
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.http == nil {
		m.http = httpc.NewClient(httpc.WithLogger(m.logger))
	}
	return m
}

// Home returns the manager's home directory.
func (m *Manager) Home() string {
	return m.home
}

// DropinDir is watched for plugin descriptors by Watcher.
func (m *Manager) DropinDir() string {
	return filepath.Join(m.home, dropinsDir)
}

func (m *Manager) pluginDir() string {
	return filepath.Join(m.home, pluginsDir)
}

func (m *Manager) registryPath() string {
	return filepath.Join(m.home, registryName)
}

// Initialize prepares the home directory and loads every enabled plugin
// listed in the registry. A missing or corrupt registry starts empty.
// Plugins that fail to load stay installed with the error on their state.
func (m *Manager) Initialize(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if m.initialized {
		return errors.New("plugin manager already initialized")
	}

	if err := ensureDir("home", m.home); err != nil {
		return err
	}
	if err := ensureDir("plugins", m.pluginDir()); err != nil {
		return err
	}
	if err := ensureDir("dropins", m.DropinDir()); err != nil {
		return err
	}
	if err := ensureFile("registry", m.registryPath()); err != nil {
		return err
	}

	records, err := readRegistry(m.registryPath())
	if err != nil {
		m.logger.Warn("Ignoring unreadable plugin registry",
			zap.String("path", m.registryPath()),
			zap.Error(err))
		records = nil
	}

	entries := make([]*entry, 0, len(records))
	for _, r := range records {
		e := &entry{info: r.Info, enabled: r.Enabled}
		if e.enabled {
			m.load(ctx, e)
		}
		entries = append(entries, e)
	}

	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()

	m.initialized = true
	m.logger.Info("Plugin manager initialized",
		zap.String("home", m.home),
		zap.Int("plugins", len(entries)))
	return nil
}

// Install fetches info.URL into the plugins directory and loads it. An
// installed plugin of the same package is replaced. The loader is picked
// by the extension of the URL path.
func (m *Manager) Install(ctx context.Context, info plugin.Info) (plugin.State, error) {
	m.op.Lock()
	defer m.op.Unlock()

	m.notify(func(l plugin.Listener) { l.OnInstallStart(info) })

	state, err := m.install(ctx, info)
	if err != nil {
		m.logger.Error("Plugin install failed", zap.Stringer("plugin", info), zap.Error(err))
		m.notify(func(l plugin.Listener) { l.OnInstallFailure(info, err) })
		return plugin.State{}, err
	}

	m.logger.Info("Plugin installed", zap.Stringer("plugin", info), zap.Bool("loaded", state.Loaded()))
	m.notify(func(l plugin.Listener) { l.OnInstallSuccess(info, state) })
	return state, nil
}

func (m *Manager) install(ctx context.Context, info plugin.Info) (plugin.State, error) {
	if !m.initialized {
		return plugin.State{}, ErrNotInitialized
	}
	if err := info.Validate(); err != nil {
		return plugin.State{}, fmt.Errorf("invalid plugin info: %w", err)
	}

	ext := artifactExt(info.URL)
	if _, ok := m.loaders[ext]; !ok {
		return plugin.State{}, fmt.Errorf("%w: %q", ErrUnsupported, info.URL)
	}

	file := filepath.Join(m.pluginDir(), info.Filename(ext))
	target := file
	if _, err := os.Stat(file); err == nil {
		target = file + tempSuffix
	}

	progress := func(p float64) {
		m.notify(func(l plugin.Listener) { l.OnInstallProgress(info, p) })
	}
	if err := m.fetch(ctx, info.URL, target, progress); err != nil {
		_ = os.Remove(target)
		return plugin.State{}, err
	}

	// Persist first: a failed write leaves memory and disk as they were.
	old := m.find(info.Name, info.Uploader)
	if err := writeRegistry(m.registryPath(), m.records(old, &entry{info: info, enabled: true})); err != nil {
		_ = os.Remove(target)
		return plugin.State{}, err
	}

	if target != file {
		if err := os.Rename(target, file); err != nil {
			_ = os.Remove(target)
			if serr := m.sync(); serr != nil {
				m.logger.Error("Failed to restore plugin registry", zap.Error(serr))
			}
			return plugin.State{}, fmt.Errorf("replace %s: %w", file, err)
		}
	}

	if old != nil {
		m.unload(old)
		m.remove(old)
		if oldFile, ok := m.artifact(old.info); ok && oldFile != file {
			if err := os.Remove(oldFile); err != nil {
				m.logger.Warn("Failed to remove replaced artifact", zap.String("path", oldFile), zap.Error(err))
			}
		}
	}

	e := &entry{info: info, enabled: true}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()

	m.load(ctx, e)
	return m.snapshot(e), nil
}

// Uninstall unloads the plugin and deletes its artifact. It returns
// plugin.ErrNotInstalled, without notifying listeners, for unknown plugins.
func (m *Manager) Uninstall(ctx context.Context, name, uploader string) error {
	m.op.Lock()
	defer m.op.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}

	e := m.find(name, uploader)
	if e == nil {
		return fmt.Errorf("%s/%s: %w", uploader, name, plugin.ErrNotInstalled)
	}
	info := e.info

	m.notify(func(l plugin.Listener) { l.OnUninstallStart(info) })

	m.unload(e)
	m.remove(e)

	err := m.sync()
	if err == nil {
		if file, ok := m.artifact(info); ok {
			err = os.Remove(file)
		}
	}
	if err != nil {
		m.logger.Error("Plugin uninstall failed", zap.Stringer("plugin", info), zap.Error(err))
		m.notify(func(l plugin.Listener) { l.OnUninstallFailure(info, err) })
		return err
	}

	m.logger.Info("Plugin uninstalled", zap.Stringer("plugin", info))
	m.notify(func(l plugin.Listener) { l.OnUninstallSuccess(info) })
	return nil
}

// SetEnabled loads or unloads an installed plugin and persists the choice.
func (m *Manager) SetEnabled(ctx context.Context, name, uploader string, enabled bool) (plugin.State, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if !m.initialized {
		return plugin.State{}, ErrNotInitialized
	}

	e := m.find(name, uploader)
	if e == nil {
		return plugin.State{}, fmt.Errorf("%s/%s: %w", uploader, name, plugin.ErrNotInstalled)
	}

	m.mu.Lock()
	changed := e.enabled != enabled
	e.enabled = enabled
	m.mu.Unlock()

	if changed {
		if err := m.sync(); err != nil {
			m.mu.Lock()
			e.enabled = !enabled
			m.mu.Unlock()
			return plugin.State{}, err
		}
		if enabled {
			m.load(ctx, e)
		} else {
			m.unload(e)
		}
	}
	return m.snapshot(e), nil
}

// States returns every installed plugin.
func (m *Manager) States() []plugin.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]plugin.State, 0, len(m.entries))
	for _, e := range m.entries {
		states = append(states, e.state())
	}
	return states
}

// State returns the plugin with the given name and uploader.
func (m *Manager) State(name, uploader string) (plugin.State, bool) {
	e := m.find(name, uploader)
	if e == nil {
		return plugin.State{}, false
	}
	return m.snapshot(e), true
}

// Sections returns the sections of every loaded plugin.
func (m *Manager) Sections() []source.Section {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sections []source.Section
	for _, e := range m.entries {
		if e.plugin != nil {
			sections = append(sections, e.plugin.Sections()...)
		}
	}
	return sections
}

func (m *Manager) find(name, uploader string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.info.Name == name && e.info.Uploader == uploader {
			return e
		}
	}
	return nil
}

func (m *Manager) snapshot(e *entry) plugin.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.state()
}

func (m *Manager) remove(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, x := range m.entries {
		if x == e {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// sync writes the registry.
func (m *Manager) sync() error {
	return writeRegistry(m.registryPath(), m.records(nil, nil))
}

// records lists the registry records of the current entries without skip
// and followed by extra.
func (m *Manager) records(skip, extra *entry) []record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]record, 0, len(m.entries)+1)
	for _, e := range m.entries {
		if e != skip {
			records = append(records, record{Info: e.info, Enabled: e.enabled})
		}
	}
	if extra != nil {
		records = append(records, record{Info: extra.info, Enabled: extra.enabled})
	}
	return records
}

// artifact finds the installed file of info among the registered
// extensions.
func (m *Manager) artifact(info plugin.Info) (string, bool) {
	for ext := range m.loaders {
		p := filepath.Join(m.pluginDir(), info.Filename(ext))
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func (m *Manager) load(ctx context.Context, e *entry) {
	var (
		p   plugin.Plugin
		err error
	)
	if file, ok := m.artifact(e.info); ok {
		p, err = m.loaders[strings.TrimPrefix(filepath.Ext(file), ".")].Load(ctx, file)
	} else {
		err = fmt.Errorf("artifact of %s: %w", e.info, os.ErrNotExist)
	}

	m.mu.Lock()
	e.plugin, e.err = p, err
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("Plugin failed to load", zap.Stringer("plugin", e.info), zap.Error(err))
		return
	}
	m.logger.Debug("Plugin loaded", zap.Stringer("plugin", e.info))
}

func (m *Manager) unload(e *entry) {
	m.mu.Lock()
	p := e.plugin
	e.plugin, e.err = nil, nil
	m.mu.Unlock()

	if c, ok := p.(plugin.Closer); ok {
		if err := c.Close(); err != nil {
			m.logger.Warn("Plugin close failed", zap.Stringer("plugin", e.info), zap.Error(err))
		}
	}
}

func artifactExt(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	return strings.TrimPrefix(path.Ext(filepath.ToSlash(p)), ".")
}
