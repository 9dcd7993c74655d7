package luaplugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/pkg/core"
	"github.com/litescript/oxviewer/pkg/dom"
	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/json"
	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

// Loader loads .lua plugins. Unset services fall back to the ones
// registered in core, then to fresh defaults.
type Loader struct {
	HTTP    *httpc.Client
	DOM     dom.Factory
	JSON    json.Factory
	Logger  *zap.Logger
	Timeout time.Duration
}

var _ plugin.Loader = (*Loader)(nil)

func (l *Loader) Extensions() []string {
	return []string{"lua"}
}

// Load runs the script at path.
func (l *Loader) Load(ctx context.Context, path string) (plugin.Plugin, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.LoadString(ctx, filepath.Base(path), string(src))
}

// LoadString runs src and collects the sections it declares in the global
// sections table.
func (l *Loader) LoadString(ctx context.Context, name, src string) (plugin.Plugin, error) {
	a := l.api(name)
	sb := newSandbox(l.Timeout)

	var sections []source.Section
	err := sb.run(ctx, func(L *lua.LState) error {
		a.register(L)

		fn, err := L.LoadString(src)
		if err != nil {
			return err
		}
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
			return err
		}

		list, ok := L.GetGlobal("sections").(*lua.LTable)
		if !ok {
			return errors.New("script does not declare a sections table")
		}
		for i := 1; i <= list.Len(); i++ {
			s, err := parseSection(sb, list.RawGetInt(i))
			if err != nil {
				return fmt.Errorf("section %d: %w", i, err)
			}
			sections = append(sections, s)
		}
		return nil
	})
	if err != nil {
		sb.Close()
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	a.logger.Debug("Lua plugin loaded", zap.Int("sections", len(sections)))
	return &luaPlugin{sb: sb, sections: sections}, nil
}

func (l *Loader) api(name string) *api {
	a := &api{http: l.HTTP, dom: l.DOM, json: l.JSON, logger: l.Logger}
	if a.http == nil {
		if c, ok := core.HTTP.Get(); ok {
			a.http = c
		} else {
			a.http = httpc.NewClient()
		}
	}
	if a.dom == nil {
		if f, ok := core.DOM.Get(); ok {
			a.dom = f
		} else {
			a.dom = dom.NewFactory()
		}
	}
	if a.json == nil {
		if f, ok := core.JSON.Get(); ok {
			a.json = f
		} else {
			a.json = json.NewFactory()
		}
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	a.logger = a.logger.With(zap.String("script", name))
	return a
}

type luaPlugin struct {
	sb       *sandbox
	sections []source.Section
}

func (p *luaPlugin) Sections() []source.Section {
	return append([]source.Section(nil), p.sections...)
}

// Close releases the interpreter; later searches fail.
func (p *luaPlugin) Close() error {
	return p.sb.Close()
}
