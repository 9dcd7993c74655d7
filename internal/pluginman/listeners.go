package pluginman

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/litescript/oxviewer/pkg/plugin"
)

// RegisterListener adds l to the listeners notified of install and
// uninstall events. It panics if l's dynamic type is not comparable, since
// listeners are found again by ==.
func (m *Manager) RegisterListener(l plugin.Listener) {
	if l == nil {
		return
	}
	if t := reflect.TypeOf(l); !t.Comparable() {
		panic(fmt.Sprintf("pluginman: listener type %s is not comparable; register a pointer", t))
	}

	m.lmu.Lock()
	defer m.lmu.Unlock()
	m.listeners = append(m.listeners, l)
}

// UnregisterListener removes l. Events queued on the dispatcher but not yet
// delivered skip it.
func (m *Manager) UnregisterListener(l plugin.Listener) {
	m.lmu.Lock()
	defer m.lmu.Unlock()

	if i := slices.Index(m.listeners, l); i >= 0 {
		m.listeners = slices.Delete(m.listeners, i, i+1)
	}
}

func (m *Manager) registered(l plugin.Listener) bool {
	m.lmu.Lock()
	defer m.lmu.Unlock()
	return slices.Contains(m.listeners, l)
}

// notify delivers an event to a snapshot of the listeners on the
// dispatcher.
func (m *Manager) notify(event func(plugin.Listener)) {
	m.lmu.Lock()
	listeners := slices.Clone(m.listeners)
	m.lmu.Unlock()

	if len(listeners) == 0 {
		return
	}
	m.ui.Dispatch(func() {
		for _, l := range listeners {
			if m.registered(l) {
				event(l)
			}
		}
	})
}
