package luaplugin

import (
	"context"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/pkg/dom"
	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/json"
)

// api holds the services exposed to scripts.
type api struct {
	http   *httpc.Client
	dom    dom.Factory
	json   json.Factory
	logger *zap.Logger
}

func (a *api) register(L *lua.LState) {
	httpMod := L.NewTable()
	httpMod.RawSetString("get", L.NewFunction(a.httpGet))
	httpMod.RawSetString("post_form", L.NewFunction(a.httpPostForm))
	httpMod.RawSetString("post_json", L.NewFunction(a.httpPostJSON))
	httpMod.RawSetString("set_cookie", L.NewFunction(a.httpSetCookie))
	L.SetGlobal("http", httpMod)

	htmlMod := L.NewTable()
	htmlMod.RawSetString("select", L.NewFunction(a.htmlSelect))
	htmlMod.RawSetString("abs", L.NewFunction(a.htmlAbs))
	L.SetGlobal("html", htmlMod)

	jsonMod := L.NewTable()
	jsonMod.RawSetString("encode", L.NewFunction(a.jsonEncode))
	jsonMod.RawSetString("decode", L.NewFunction(a.jsonDecode))
	L.SetGlobal("json", jsonMod)

	L.SetGlobal("log", L.NewFunction(a.log))
}

func fail(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

func callContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// applyHeaders copies the headers table of an options argument.
func applyHeaders(req *httpc.Request, opts *lua.LTable) {
	if opts == nil {
		return
	}
	if headers, ok := opts.RawGetString("headers").(*lua.LTable); ok {
		headers.ForEach(func(k, v lua.LValue) {
			req.Header(k.String(), v.String())
		})
	}
}

// execute runs req and pushes {status, body, url, headers}.
func (a *api) execute(L *lua.LState, req *httpc.Request) int {
	resp, err := req.Execute(callContext(L))
	if err != nil {
		return fail(L, err)
	}

	result := L.NewTable()
	result.RawSetString("status", lua.LNumber(resp.Code()))
	result.RawSetString("body", lua.LString(resp.String()))
	result.RawSetString("url", lua.LString(resp.URL()))

	headers := L.NewTable()
	for _, name := range resp.HeaderNames() {
		v, _ := resp.Header(name)
		headers.RawSetString(name, lua.LString(v))
	}
	result.RawSetString("headers", headers)

	L.Push(result)
	return 1
}

// http.get(url [, {headers = {...}}])
func (a *api) httpGet(L *lua.LState) int {
	req := a.http.NewRequest().URL(L.CheckString(1))
	applyHeaders(req, L.OptTable(2, nil))
	return a.execute(L, req)
}

// http.post_form(url, form [, opts])
func (a *api) httpPostForm(L *lua.LState) int {
	form := map[string]string{}
	L.CheckTable(2).ForEach(func(k, v lua.LValue) {
		form[k.String()] = v.String()
	})
	req := a.http.NewRequest().URL(L.CheckString(1)).PostForm(form)
	applyHeaders(req, L.OptTable(3, nil))
	return a.execute(L, req)
}

// http.post_json(url, table [, opts])
func (a *api) httpPostJSON(L *lua.LState) int {
	v, err := toJSON(a.json, L.CheckTable(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	obj, ok := v.(json.Object)
	if !ok {
		L.ArgError(2, "object expected")
		return 0
	}
	req := a.http.NewRequest().URL(L.CheckString(1)).PostJSON(obj)
	applyHeaders(req, L.OptTable(3, nil))
	return a.execute(L, req)
}

// http.set_cookie(name, value, domain [, path])
func (a *api) httpSetCookie(L *lua.LState) int {
	a.http.AddCookie(L.CheckString(1), L.CheckString(2), L.CheckString(3), L.OptString(4, "/"))
	return 0
}

// html.select(source, selector [, base]) returns a list of element tables.
func (a *api) htmlSelect(L *lua.LState) int {
	doc, err := a.dom.Parse(L.CheckString(1), L.OptString(3, ""))
	if err != nil {
		return fail(L, err)
	}
	elems, err := doc.Select(L.CheckString(2))
	if err != nil {
		return fail(L, err)
	}

	list := L.NewTable()
	for _, e := range elems {
		list.Append(elementTable(L, doc, e))
	}
	L.Push(list)
	return 1
}

func elementTable(L *lua.LState, doc dom.Document, e dom.Element) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("tag", lua.LString(e.TagName()))
	t.RawSetString("id", lua.LString(e.ID()))
	t.RawSetString("text", lua.LString(e.Text()))
	t.RawSetString("html", lua.LString(e.InnerHTML()))
	t.RawSetString("outer_html", lua.LString(e.OuterHTML()))

	classes := L.NewTable()
	for _, c := range e.ClassNames() {
		classes.Append(lua.LString(c))
	}
	t.RawSetString("classes", classes)

	// el:attr(name) and el:select(selector) work on the wrapped element.
	t.RawSetString("attr", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(e.Attr(L.CheckString(2))))
		return 1
	}))
	t.RawSetString("select", L.NewFunction(func(L *lua.LState) int {
		elems, err := e.Select(L.CheckString(2))
		if err != nil {
			return fail(L, err)
		}
		list := L.NewTable()
		for _, child := range elems {
			list.Append(elementTable(L, doc, child))
		}
		L.Push(list)
		return 1
	}))

	if href := e.Attr("href"); href != "" {
		t.RawSetString("abs_href", lua.LString(doc.AbsURL(href)))
	}
	if src := e.Attr("src"); src != "" {
		t.RawSetString("abs_src", lua.LString(doc.AbsURL(src)))
	}
	return t
}

// html.abs(base, href)
func (a *api) htmlAbs(L *lua.LState) int {
	doc, err := a.dom.Parse("", L.CheckString(1))
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LString(doc.AbsURL(L.CheckString(2))))
	return 1
}

func (a *api) jsonEncode(L *lua.LState) int {
	v, err := toJSON(a.json, L.CheckTable(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	L.Push(lua.LString(v.String()))
	return 1
}

func (a *api) jsonDecode(L *lua.LState) int {
	v, err := a.json.Parse(L.CheckString(1))
	if err != nil {
		return fail(L, err)
	}
	L.Push(fromJSON(L, v))
	return 1
}

func (a *api) log(L *lua.LState) int {
	a.logger.Info(L.CheckString(1))
	return 0
}
