package pluginman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/pkg/core"
	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

// fakeLoader loads .fake artifacts; the file content becomes the plugin
// name and "fail" makes loading fail.
type fakeLoader struct{}

func (fakeLoader) Extensions() []string {
	return []string{"fake"}
}

func (fakeLoader) Load(_ context.Context, path string) (plugin.Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if string(data) == "fail" {
		return nil, errors.New("broken plugin")
	}
	return &fakePlugin{content: string(data)}, nil
}

type fakePlugin struct {
	content string
	closed  bool
}

func (p *fakePlugin) Sections() []source.Section {
	return []source.Section{fakeSection(p.content)}
}

func (p *fakePlugin) Close() error {
	p.closed = true
	return nil
}

type fakeSection string

func (s fakeSection) Name() string { return string(s) }

func (s fakeSection) SetupPattern(*source.PatternBuilder) {}

func (s fakeSection) Search(context.Context, int, source.Parameters) (source.Result, error) {
	return source.Result{}, nil
}

type recorder struct {
	plugin.NopListener
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) OnInstallStart(info plugin.Info) {
	r.add("install start %s", info)
}

func (r *recorder) OnInstallSuccess(info plugin.Info, state plugin.State) {
	r.add("install success %s loaded=%t", info, state.Loaded())
}

func (r *recorder) OnInstallFailure(info plugin.Info, err error) {
	r.add("install failure %s", info)
}

func (r *recorder) OnUninstallStart(info plugin.Info) {
	r.add("uninstall start %s", info)
}

func (r *recorder) OnUninstallSuccess(info plugin.Info) {
	r.add("uninstall success %s", info)
}

func (r *recorder) OnUninstallFailure(info plugin.Info, err error) {
	r.add("uninstall failure %s", info)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func newManager(t *testing.T, opts ...Option) (*Manager, string) {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	m := New(home, []plugin.Loader{fakeLoader{}}, opts...)
	require.NoError(t, m.Initialize(context.Background()))
	return m, home
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.fake")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func info(version int, url string) plugin.Info {
	return plugin.Info{
		Name:     "sample",
		Uploader: "hippo",
		Version:  version,
		URL:      url,
	}
}

func TestInitialize(t *testing.T) {
	m, home := newManager(t)

	for _, dir := range []string{home, filepath.Join(home, "plugins"), filepath.Join(home, "dropins")} {
		st, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
	assert.Empty(t, m.States())
	assert.Error(t, m.Initialize(context.Background()), "second initialize")
}

func TestInitialize_HomeIsFile(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	require.NoError(t, os.WriteFile(home, nil, 0644))

	m := New(home, []plugin.Loader{fakeLoader{}})
	assert.Error(t, m.Initialize(context.Background()))
}

func TestInitialize_CorruptRegistry(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, registryName), []byte("{nope"), 0644))

	m := New(home, []plugin.Loader{fakeLoader{}})
	require.NoError(t, m.Initialize(context.Background()))
	assert.Empty(t, m.States())
}

func TestInstall(t *testing.T) {
	m, home := newManager(t)
	rec := &recorder{}
	m.RegisterListener(rec)

	state, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	assert.True(t, state.Enabled)
	require.True(t, state.Loaded())
	assert.NoError(t, state.Err)

	assert.FileExists(t, filepath.Join(home, "plugins", "sample-hippo-1.fake"))
	assert.Equal(t, []string{
		"install start hippo/sample@1",
		"install success hippo/sample@1 loaded=true",
	}, rec.Events())

	got, ok := m.State("sample", "hippo")
	require.True(t, ok)
	assert.Equal(t, 1, got.Info.Version)
	_, ok = m.State("sample", "other")
	assert.False(t, ok)

	sections := m.Sections()
	require.Len(t, sections, 1)
	assert.Equal(t, "one", sections[0].Name())

	var records []map[string]any
	data, err := os.ReadFile(filepath.Join(home, registryName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0]["enabled"])
	assert.Equal(t, "sample", records[0]["info"].(map[string]any)["name"])
}

func TestInstall_FileURL(t *testing.T) {
	m, _ := newManager(t)

	state, err := m.Install(context.Background(), info(1, "file://"+writeArtifact(t, "one")))
	require.NoError(t, err)
	assert.True(t, state.Loaded())
}

func TestInstall_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/p/sample.fake" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	m, _ := newManager(t)

	var progress []float64
	var mu sync.Mutex
	l := &progressListener{fn: func(p float64) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	}}
	m.RegisterListener(l)

	state, err := m.Install(context.Background(), info(1, srv.URL+"/p/sample.fake?token=x"))
	require.NoError(t, err)
	require.True(t, state.Loaded())
	assert.Equal(t, "remote", m.Sections()[0].Name())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])

	_, err = m.Install(context.Background(), info(2, srv.URL+"/missing.fake"))
	assert.Error(t, err)
}

type progressListener struct {
	plugin.NopListener
	fn func(float64)
}

func (l *progressListener) OnInstallProgress(_ plugin.Info, p float64) {
	l.fn(p)
}

func TestInstall_Replace(t *testing.T) {
	m, home := newManager(t)

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	old, _ := m.State("sample", "hippo")

	state, err := m.Install(context.Background(), info(2, writeArtifact(t, "two")))
	require.NoError(t, err)
	assert.Equal(t, 2, state.Info.Version)

	assert.True(t, old.Plugin.(*fakePlugin).closed, "old plugin closed")
	assert.Len(t, m.States(), 1)
	assert.NoFileExists(t, filepath.Join(home, "plugins", "sample-hippo-1.fake"))
	assert.FileExists(t, filepath.Join(home, "plugins", "sample-hippo-2.fake"))
	assert.Equal(t, "two", m.Sections()[0].Name())
}

func TestInstall_SameVersionUsesTemp(t *testing.T) {
	m, home := newManager(t)

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	_, err = m.Install(context.Background(), info(1, writeArtifact(t, "again")))
	require.NoError(t, err)

	file := filepath.Join(home, "plugins", "sample-hippo-1.fake")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "again", string(data))
	assert.NoFileExists(t, file+tempSuffix)
	assert.Len(t, m.States(), 1)
}

func TestInstall_Failures(t *testing.T) {
	m, home := newManager(t)
	rec := &recorder{}
	m.RegisterListener(rec)

	_, err := m.Install(context.Background(), info(1, filepath.Join(t.TempDir(), "missing.fake")))
	require.Error(t, err)

	_, err = m.Install(context.Background(), info(1, "/tmp/plugin.zip"))
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = m.Install(context.Background(), plugin.Info{Name: "../x", Uploader: "u", URL: "a.fake"})
	assert.Error(t, err)

	assert.Empty(t, m.States())
	entries, err := os.ReadDir(filepath.Join(home, "plugins"))
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial artifacts left behind")
	assert.Equal(t, []string{
		"install start hippo/sample@1",
		"install failure hippo/sample@1",
		"install start hippo/sample@1",
		"install failure hippo/sample@1",
		"install start u/../x@0",
		"install failure u/../x@0",
	}, rec.Events())
}

func TestInstall_LoadErrorRecorded(t *testing.T) {
	m, _ := newManager(t)

	state, err := m.Install(context.Background(), info(1, writeArtifact(t, "fail")))
	require.NoError(t, err)
	assert.True(t, state.Enabled)
	assert.False(t, state.Loaded())
	assert.EqualError(t, state.Err, "broken plugin")
	assert.Empty(t, m.Sections())
}

func TestNotInitialized(t *testing.T) {
	m := New(t.TempDir(), []plugin.Loader{fakeLoader{}})

	_, err := m.Install(context.Background(), info(1, "a.fake"))
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, m.Uninstall(context.Background(), "a", "b"), ErrNotInitialized)
}

func TestUninstall(t *testing.T) {
	m, home := newManager(t)
	rec := &recorder{}
	m.RegisterListener(rec)

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	loaded, _ := m.State("sample", "hippo")

	require.NoError(t, m.Uninstall(context.Background(), "sample", "hippo"))
	assert.Empty(t, m.States())
	assert.True(t, loaded.Plugin.(*fakePlugin).closed)
	assert.NoFileExists(t, filepath.Join(home, "plugins", "sample-hippo-1.fake"))

	records, err := readRegistry(filepath.Join(home, registryName))
	require.NoError(t, err)
	assert.Empty(t, records)

	err = m.Uninstall(context.Background(), "sample", "hippo")
	assert.ErrorIs(t, err, plugin.ErrNotInstalled)

	assert.Equal(t, []string{
		"install start hippo/sample@1",
		"install success hippo/sample@1 loaded=true",
		"uninstall start hippo/sample@1",
		"uninstall success hippo/sample@1",
	}, rec.Events())
}

func TestSetEnabledAndReload(t *testing.T) {
	m, home := newManager(t)

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	other := info(1, writeArtifact(t, "two"))
	other.Name = "other"
	_, err = m.Install(context.Background(), other)
	require.NoError(t, err)

	state, err := m.SetEnabled(context.Background(), "other", "hippo", false)
	require.NoError(t, err)
	assert.False(t, state.Enabled)
	assert.False(t, state.Loaded())
	assert.Len(t, m.Sections(), 1)

	_, err = m.SetEnabled(context.Background(), "missing", "hippo", true)
	assert.ErrorIs(t, err, plugin.ErrNotInstalled)

	// A fresh manager restores both plugins and loads only the enabled one.
	reloaded := New(home, []plugin.Loader{fakeLoader{}})
	require.NoError(t, reloaded.Initialize(context.Background()))
	require.Len(t, reloaded.States(), 2)

	s, ok := reloaded.State("sample", "hippo")
	require.True(t, ok)
	assert.True(t, s.Loaded())
	s, ok = reloaded.State("other", "hippo")
	require.True(t, ok)
	assert.False(t, s.Enabled)
	assert.False(t, s.Loaded())

	state, err = reloaded.SetEnabled(context.Background(), "other", "hippo", true)
	require.NoError(t, err)
	assert.True(t, state.Loaded())
}

func TestInitialize_MissingArtifact(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeRegistry(filepath.Join(home, registryName), []record{
		{Info: info(1, "x.fake"), Enabled: true},
	}))

	m := New(home, []plugin.Loader{fakeLoader{}})
	require.NoError(t, m.Initialize(context.Background()))

	s, ok := m.State("sample", "hippo")
	require.True(t, ok)
	assert.False(t, s.Loaded())
	assert.ErrorIs(t, s.Err, os.ErrNotExist)
}

// queue is a dispatcher that holds events until flushed.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) Dispatch(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
}

func (q *queue) flush() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestListenerUnregisteredBeforeDelivery(t *testing.T) {
	q := &queue{}
	m, _ := newManager(t, WithDispatcher(q))
	kept, dropped := &recorder{}, &recorder{}
	m.RegisterListener(kept)
	m.RegisterListener(dropped)

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	assert.Empty(t, kept.Events(), "nothing delivered before the dispatcher runs")

	m.UnregisterListener(dropped)
	q.flush()

	assert.Len(t, kept.Events(), 2)
	assert.Empty(t, dropped.Events())
}

// sliceListener is not comparable as a value.
type sliceListener struct {
	plugin.NopListener
	seen []string
}

func TestRegisterListener_NotComparable(t *testing.T) {
	m, _ := newManager(t)

	assert.PanicsWithValue(t,
		"pluginman: listener type pluginman.sliceListener is not comparable; register a pointer",
		func() { m.RegisterListener(sliceListener{}) })

	l := &sliceListener{}
	assert.NotPanics(t, func() {
		m.RegisterListener(l)
		m.RegisterListener(nil)
		m.UnregisterListener(l)
	})

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
}

func TestListenerSerialDispatcher(t *testing.T) {
	d := core.NewSerialDispatcher()
	m, _ := newManager(t, WithDispatcher(d))
	rec := &recorder{}
	m.RegisterListener(rec)

	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)
	d.Close()

	assert.Equal(t, []string{
		"install start hippo/sample@1",
		"install success hippo/sample@1 loaded=true",
	}, rec.Events())
}

func TestArtifactExt(t *testing.T) {
	tests := map[string]string{
		"/tmp/a.lua":                     "lua",
		"file:///tmp/a.so":               "so",
		"https://x.org/p/a.lua?v=1#frag": "lua",
		"relative/a.fake":                "fake",
		"noext":                          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, artifactExt(in), in)
	}
}

func TestWatcher(t *testing.T) {
	m, _ := newManager(t)
	artifact := writeArtifact(t, "dropped")

	w, err := NewWatcher(m.DropinDir(), m, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	descriptor := fmt.Sprintf("[plugin]\nname = sample\nuploader = hippo\nversion = 3\nurl = %s\n", artifact)
	require.NoError(t, os.WriteFile(filepath.Join(m.DropinDir(), "sample.ini"), []byte(descriptor), 0644))

	require.Eventually(t, func() bool {
		s, ok := m.State("sample", "hippo")
		return ok && s.Info.Version == 3 && s.Loaded()
	}, 5*time.Second, 20*time.Millisecond)

	// Rescanning an installed version is a no-op.
	rec := &recorder{}
	m.RegisterListener(rec)
	w.Scan(context.Background())
	assert.Empty(t, rec.Events())
}

// blockingManager holds Install until its context is cancelled.
type blockingManager struct {
	plugin.Manager
	started  chan struct{}
	once     sync.Once
	returned atomic.Bool
}

func (b *blockingManager) State(string, string) (plugin.State, bool) {
	return plugin.State{}, false
}

func (b *blockingManager) Install(ctx context.Context, info plugin.Info) (plugin.State, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	b.returned.Store(true)
	return plugin.State{}, ctx.Err()
}

func TestWatcher_StopWaitsForInstall(t *testing.T) {
	dir := t.TempDir()
	m := &blockingManager{started: make(chan struct{})}

	w, err := NewWatcher(dir, m, zap.NewNop())
	require.NoError(t, err)

	descriptor := "[plugin]\nname = sample\nuploader = hippo\nversion = 1\nurl = https://example.org/sample.fake\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.ini"), []byte(descriptor), 0644))

	select {
	case <-m.started:
	case <-time.After(5 * time.Second):
		t.Fatal("install never started")
	}

	w.Stop()
	assert.True(t, m.returned.Load(), "Stop returns after the running install")
	assert.NotPanics(t, w.Stop)
}

// blockRegistry swaps plugins.json for a non-empty directory so that
// writing the registry fails.
func blockRegistry(t *testing.T, home string) {
	t.Helper()
	path := filepath.Join(home, registryName)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocked"), 0755))
}

func TestInstall_RegistryWriteFails(t *testing.T) {
	m, home := newManager(t)
	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)

	blockRegistry(t, home)

	_, err = m.Install(context.Background(), info(2, writeArtifact(t, "two")))
	require.Error(t, err)

	st, ok := m.State("sample", "hippo")
	require.True(t, ok)
	assert.Equal(t, 1, st.Info.Version)
	assert.True(t, st.Loaded())
	assert.False(t, st.Plugin.(*fakePlugin).closed)
	assert.Equal(t, "one", m.Sections()[0].Name())
	assert.FileExists(t, filepath.Join(home, "plugins", "sample-hippo-1.fake"))
	assert.NoFileExists(t, filepath.Join(home, "plugins", "sample-hippo-2.fake"))

	_, err = m.SetEnabled(context.Background(), "sample", "hippo", false)
	require.Error(t, err)
	st, _ = m.State("sample", "hippo")
	assert.True(t, st.Enabled, "failed write keeps the plugin enabled")
}

func TestInstall_RenameFails(t *testing.T) {
	m, home := newManager(t)
	_, err := m.Install(context.Background(), info(1, writeArtifact(t, "one")))
	require.NoError(t, err)

	// Reinstalling the same version goes through a temp file; a directory
	// in place of the artifact makes the final rename fail.
	file := filepath.Join(home, "plugins", "sample-hippo-1.fake")
	require.NoError(t, os.Remove(file))
	require.NoError(t, os.MkdirAll(filepath.Join(file, "blocked"), 0755))

	_, err = m.Install(context.Background(), info(1, writeArtifact(t, "again")))
	require.Error(t, err)
	assert.NoFileExists(t, file+tempSuffix)

	st, ok := m.State("sample", "hippo")
	require.True(t, ok)
	assert.True(t, st.Loaded(), "old plugin stays loaded")
	assert.Equal(t, "one", m.Sections()[0].Name())

	var records []record
	data, err := os.ReadFile(filepath.Join(home, registryName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Info.Version)
}
