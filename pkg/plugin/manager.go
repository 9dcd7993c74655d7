package plugin

import (
	"context"
	"errors"
)

// ErrNotInstalled is returned for operations on an unknown plugin.
var ErrNotInstalled = errors.New("plugin not installed")

// Listener receives install and uninstall events. Callbacks run on the UI
// dispatcher, never concurrently with each other. Listeners are compared
// with == on unregister, so register pointers: registering a value whose
// type is not comparable (a struct holding a slice, say) panics.
type Listener interface {
	OnInstallStart(info Info)
	// OnInstallProgress reports download progress in [0, 1].
	OnInstallProgress(info Info, progress float64)
	OnInstallSuccess(info Info, state State)
	OnInstallFailure(info Info, err error)

	OnUninstallStart(info Info)
	OnUninstallSuccess(info Info)
	OnUninstallFailure(info Info, err error)
}

// NopListener implements Listener with empty callbacks. Embed it to
// override only the events you care about.
type NopListener struct{}

func (NopListener) OnInstallStart(Info) {}
func (NopListener) OnInstallProgress(Info, float64) {}
func (NopListener) OnInstallSuccess(Info, State) {}
func (NopListener) OnInstallFailure(Info, error) {}
func (NopListener) OnUninstallStart(Info) {}
func (NopListener) OnUninstallSuccess(Info) {}
func (NopListener) OnUninstallFailure(Info, error) {}

// Manager installs and tracks plugins.
type Manager interface {
	Initialize(ctx context.Context) error

	// Install fetches info.URL and loads it, replacing an installed plugin
	// of the same package.
	Install(ctx context.Context, info Info) (State, error)
	Uninstall(ctx context.Context, name, uploader string) error

	// States returns every installed plugin. The order is undefined.
	States() []State
	State(name, uploader string) (State, bool)

	RegisterListener(l Listener)
	UnregisterListener(l Listener)
}

// Loader turns a plugin artifact on disk into a running Plugin.
type Loader interface {
	// Extensions lists the file extensions handled, without dots.
	Extensions() []string
	Load(ctx context.Context, path string) (Plugin, error)
}

// Closer is implemented by plugins holding resources that must be
// released on unload.
type Closer interface {
	Close() error
}
