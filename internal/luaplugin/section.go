package luaplugin

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/litescript/oxviewer/pkg/source"
)

// section is a source.Section backed by a Lua table of the form
//
//	{ name = "...", pattern = function(p) ... end, search = function(page, params) ... end }
type section struct {
	source.Base

	sb      *sandbox
	name    string
	pattern *lua.LFunction
	search  *lua.LFunction
}

var _ source.Section = (*section)(nil)

// parseSection reads a section table. It runs with the sandbox locked.
func parseSection(sb *sandbox, v lua.LValue) (*section, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("section must be a table, got %s", v.Type())
	}

	name, ok := t.RawGetString("name").(lua.LString)
	if !ok || name == "" {
		return nil, errors.New("section has no name")
	}
	search, ok := t.RawGetString("search").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("section %q has no search function", string(name))
	}

	s := &section{sb: sb, name: string(name), search: search}
	switch p := t.RawGetString("pattern").(type) {
	case *lua.LFunction:
		s.pattern = p
	case *lua.LNilType:
	default:
		return nil, fmt.Errorf("section %q: pattern must be a function", s.name)
	}
	return s, nil
}

func (s *section) Name() string {
	return s.name
}

// SetupPattern passes the script a builder with text, toggle and select
// methods.
func (s *section) SetupPattern(p *source.PatternBuilder) {
	if s.pattern == nil {
		return
	}
	err := s.sb.run(context.Background(), func(L *lua.LState) error {
		return L.CallByParam(lua.P{Fn: s.pattern, NRet: 0, Protect: true}, patternBuilder(L, p))
	})
	if err != nil {
		p.Fail(fmt.Errorf("section %q: pattern: %w", s.name, err))
	}
}

func patternBuilder(L *lua.LState, p *source.PatternBuilder) *lua.LTable {
	t := L.NewTable()
	// p:text(name [, default])
	t.RawSetString("text", L.NewFunction(func(L *lua.LState) int {
		p.Add(source.Text{Name: L.CheckString(2), Value: L.OptString(3, "")})
		return 0
	}))
	// p:toggle(name [, default])
	t.RawSetString("toggle", L.NewFunction(func(L *lua.LState) int {
		p.Add(source.Toggle{Name: L.CheckString(2), Value: L.OptBool(3, false)})
		return 0
	}))
	// p:select(name, options [, default]); the default is the first option.
	t.RawSetString("select", L.NewFunction(func(L *lua.LState) int {
		var options []string
		opts := L.CheckTable(3)
		for i := 1; i <= opts.Len(); i++ {
			options = append(options, opts.RawGetInt(i).String())
		}
		def := ""
		if len(options) > 0 {
			def = options[0]
		}
		p.Add(source.Select{Name: L.CheckString(2), Options: options, Value: L.OptString(4, def)})
		return 0
	}))
	return t
}

// Search calls the script's search function. It must return
// { pages = n, entries = { ... } }.
func (s *section) Search(ctx context.Context, page int, params source.Parameters) (source.Result, error) {
	var result source.Result
	err := s.sb.run(ctx, func(L *lua.LState) error {
		args := L.NewTable()
		for k, v := range params {
			args.RawSetString(k, lua.LString(v))
		}
		if err := L.CallByParam(lua.P{Fn: s.search, NRet: 1, Protect: true}, lua.LNumber(page), args); err != nil {
			return err
		}
		ret := L.Get(-1)
		L.Pop(1)

		var err error
		result, err = s.parseResult(ret)
		return err
	})
	if err != nil {
		return source.Result{}, fmt.Errorf("section %q: search page %d: %w", s.name, page, err)
	}
	return result, nil
}

func (s *section) parseResult(v lua.LValue) (source.Result, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return source.Result{}, fmt.Errorf("search must return a table, got %s", v.Type())
	}

	var result source.Result
	if pages, ok := t.RawGetString("pages").(lua.LNumber); ok {
		result.Pages = int(pages)
	}

	entries, _ := t.RawGetString("entries").(*lua.LTable)
	if entries == nil {
		return result, nil
	}
	for i := 1; i <= entries.Len(); i++ {
		e, err := s.parseEntry(entries.RawGetInt(i))
		if err != nil {
			return source.Result{}, fmt.Errorf("entry %d: %w", i, err)
		}
		result.Entries = append(result.Entries, e)
	}
	return result, nil
}

func (s *section) parseEntry(v lua.LValue) (source.Entry, error) {
	t, ok := v.(*lua.LTable)
	if !ok {
		return source.Entry{}, fmt.Errorf("entry must be a table, got %s", v.Type())
	}

	var e source.Entry
	if kind := stringField(t, "kind"); kind != "" {
		k, err := source.ParseKind(kind)
		if err != nil {
			return source.Entry{}, err
		}
		e.Kind = k
	}

	e.ID = stringField(t, "id")
	e.Title = stringField(t, "title")
	e.Description = stringField(t, "description")
	e.Thumbnail = stringField(t, "thumbnail")
	e.Uploader = stringField(t, "uploader")
	e.Language = stringField(t, "language")

	if n, ok := t.RawGetString("version").(lua.LNumber); ok {
		e.Version = int64(n)
	}
	if n, ok := t.RawGetString("rating").(lua.LNumber); ok {
		r := float64(n)
		e.Rating = &r
	}
	if n, ok := t.RawGetString("pages").(lua.LNumber); ok {
		p := int(n)
		e.PageNum = &p
	}
	if n, ok := t.RawGetString("chapters").(lua.LNumber); ok {
		c := int(n)
		e.ChapterNum = &c
	}
	if tags, ok := t.RawGetString("tags").(*lua.LTable); ok {
		e.Tags = parseTags(tags)
	}
	if sec := t.RawGetString("section"); sec != lua.LNil {
		nested, err := parseSection(s.sb, sec)
		if err != nil {
			return source.Entry{}, err
		}
		e.Section = nested
	}

	if err := e.Validate(); err != nil {
		return source.Entry{}, err
	}
	return e, nil
}

// parseTags accepts { ns = {"a", "b"} } or a plain list for sources without
// namespaces.
func parseTags(t *lua.LTable) map[string][]string {
	tags := map[string][]string{}
	if isArray(t) {
		tags[source.NoNamespace] = stringList(t)
		return tags
	}
	t.ForEach(func(k, v lua.LValue) {
		if list, ok := v.(*lua.LTable); ok {
			tags[k.String()] = stringList(list)
		}
	})
	return tags
}

func stringList(t *lua.LTable) []string {
	list := make([]string, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		list = append(list, t.RawGetInt(i).String())
	}
	return list
}

func stringField(t *lua.LTable, key string) string {
	switch v := t.RawGetString(key).(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return v.String()
	default:
		return ""
	}
}
