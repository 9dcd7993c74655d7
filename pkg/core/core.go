// Package core holds the process-wide services a source plugin reaches for:
// the UI dispatcher, the JSON and DOM factories, the shared HTTP client and
// the plugin manager. Each is assigned exactly once by the host at startup.
package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/litescript/oxviewer/pkg/dom"
	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/json"
	"github.com/litescript/oxviewer/pkg/plugin"
)

// ErrAlreadySet is returned when a WriteOnce value is assigned twice.
var ErrAlreadySet = errors.New("value has been initialized")

// WriteOnce is a value that can be set a single time and read many times.
type WriteOnce[T any] struct {
	name  string
	mu    sync.RWMutex
	value T
	set   bool
}

// NewWriteOnce creates an unset value. name is used in error messages.
func NewWriteOnce[T any](name string) *WriteOnce[T] {
	return &WriteOnce[T]{name: name}
}

// Set assigns the value. It fails if the value was already assigned.
func (w *WriteOnce[T]) Set(v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.set {
		return fmt.Errorf("%s: %w", w.name, ErrAlreadySet)
	}
	w.value = v
	w.set = true
	return nil
}

// Get returns the value and whether it has been set.
func (w *WriteOnce[T]) Get() (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value, w.set
}

// MustGet returns the value or panics if it has not been set yet.
func (w *WriteOnce[T]) MustGet() T {
	v, ok := w.Get()
	if !ok {
		panic(fmt.Sprintf("%s should be initialized before get", w.name))
	}
	return v
}

var (
	UI      = NewWriteOnce[Dispatcher]("UI")
	JSON    = NewWriteOnce[json.Factory]("JSON")
	DOM     = NewWriteOnce[dom.Factory]("DOM")
	HTTP    = NewWriteOnce[*httpc.Client]("HTTP")
	Plugins = NewWriteOnce[plugin.Manager]("Plugins")
)
