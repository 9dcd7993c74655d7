package pluginman

import (
	"context"
	"fmt"
	goplugin "plugin"

	"github.com/litescript/oxviewer/pkg/plugin"
)

// GoLoader loads plugins built with -buildmode=plugin. Go plugins cannot be
// unloaded; unloading only drops the reference.
type GoLoader struct{}

func (GoLoader) Extensions() []string {
	return []string{"so"}
}

// Load opens the shared object and resolves its exported Plugin symbol.
func (GoLoader) Load(_ context.Context, path string) (plugin.Plugin, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin file: %w", err)
	}

	sym, err := p.Lookup(plugin.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to find symbol '%s' in plugin: %w", plugin.Symbol, err)
	}
	return resolveSymbol(sym)
}

// resolveSymbol accepts a variable implementing plugin.Plugin, a
// plugin.Plugin variable or a constructor function.
func resolveSymbol(sym any) (plugin.Plugin, error) {
	switch v := sym.(type) {
	case *plugin.Plugin:
		if *v == nil {
			return nil, fmt.Errorf("symbol '%s' is nil", plugin.Symbol)
		}
		return *v, nil
	case func() plugin.Plugin:
		p := v()
		if p == nil {
			return nil, fmt.Errorf("symbol '%s' returned nil", plugin.Symbol)
		}
		return p, nil
	case plugin.Plugin:
		return v, nil
	default:
		return nil, fmt.Errorf("symbol '%s' does not implement Plugin interface", plugin.Symbol)
	}
}
