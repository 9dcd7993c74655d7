package luaplugin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

const galleryPage = `<html><body>
<div class="gallery" data-id="11"><a href="/g/11/"><img src="/t/11.jpg"></a><span class="title">First</span></div>
<div class="gallery" data-id="12"><a href="/g/12/"><img src="/t/12.jpg"></a><span class="title">Second</span></div>
</body></html>`

const script = `
sections = {
  {
    name = "Latest",
    pattern = function(p)
      p:text("query", "")
      p:toggle("safe", true)
      p:select("sort", {"new", "top"})
    end,
    search = function(page, params)
      local resp, err = http.get(BASE .. "/list?page=" .. page .. "&sort=" .. params.sort)
      if not resp then error(err) end
      local entries = {}
      for _, div in ipairs(html.select(resp.body, "div.gallery", resp.url)) do
        local link = div:select("a")[1]
        table.insert(entries, {
          kind = "gallery",
          id = div:attr("data-id"),
          title = div:select(".title")[1].text,
          thumbnail = div:select("img")[1].abs_src,
          description = link.abs_href,
          language = "eng",
          rating = 7.5,
          pages = 20,
          tags = { artist = {"someone"}, misc = {"a", "b"} },
        })
      end
      return { pages = 3, entries = entries }
    end,
  },
  {
    name = "API",
    search = function(page, params)
      local resp = http.post_json(BASE .. "/api", { page = page, q = params.query or "" })
      local data = json.decode(resp.body)
      local entries = {}
      for _, item in ipairs(data.items) do
        table.insert(entries, { id = item.id, title = item.name, tags = item.tags })
      end
      return { pages = data.pages, entries = entries }
    end,
  },
}
`

func newServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list":
			if r.URL.Query().Get("sort") != "new" {
				http.Error(w, "bad sort", http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, galleryPage)
		case "/api":
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"page":1,"q":"cats"}` {
				http.Error(w, string(body), http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"pages":1,"items":[{"id":"a1","name":"Cat","tags":["x","y"]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func load(t *testing.T, src string, opts ...func(*Loader)) plugin.Plugin {
	t.Helper()
	l := &Loader{HTTP: httpc.NewClient()}
	for _, opt := range opts {
		opt(l)
	}
	p, err := l.LoadString(context.Background(), "test.lua", src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.(plugin.Closer).Close() })
	return p
}

func TestLoadAndSearch(t *testing.T) {
	srv := newServer(t)
	p := load(t, fmt.Sprintf("BASE = %q\n%s", srv.URL, script))

	sections := p.Sections()
	require.Len(t, sections, 2)
	latest := sections[0]
	assert.Equal(t, "Latest", latest.Name())

	pattern, err := source.BuildPattern(latest)
	require.NoError(t, err)
	assert.Equal(t, source.Parameters{"query": "", "safe": "true", "sort": "new"}, pattern.Defaults())

	result, err := latest.Search(context.Background(), 0, pattern.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Pages)
	require.Len(t, result.Entries, 2)

	e := result.Entries[0]
	assert.Equal(t, source.KindGallery, e.Kind)
	assert.Equal(t, "11", e.ID)
	assert.Equal(t, "First", e.Title)
	assert.Equal(t, srv.URL+"/t/11.jpg", e.Thumbnail)
	assert.Equal(t, srv.URL+"/g/11/", e.Description)
	assert.Equal(t, "eng", e.Language)
	require.NotNil(t, e.Rating)
	assert.Equal(t, 7.5, *e.Rating)
	require.NotNil(t, e.PageNum)
	assert.Equal(t, 20, *e.PageNum)
	assert.Equal(t, map[string][]string{"artist": {"someone"}, "misc": {"a", "b"}}, e.Tags)
}

func TestSearchJSON(t *testing.T) {
	srv := newServer(t)
	p := load(t, fmt.Sprintf("BASE = %q\n%s", srv.URL, script))
	api := p.Sections()[1]

	pattern, err := source.BuildPattern(api)
	require.NoError(t, err)
	assert.Empty(t, pattern.Fields())

	result, err := api.Search(context.Background(), 1, source.Parameters{"query": "cats"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "a1", result.Entries[0].ID)
	assert.Equal(t, map[string][]string{source.NoNamespace: {"x", "y"}}, result.Entries[0].Tags)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := newServer(t)
	p := load(t, fmt.Sprintf("BASE = %q\n%s", srv.URL, script))

	// The server rejects this sort with a 400, which still reaches the script.
	result, err := p.Sections()[0].Search(context.Background(), 0, source.Parameters{"sort": "top"})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
}

func TestSandbox(t *testing.T) {
	p := load(t, `
sections = {{
  name = "probe",
  search = function()
    local missing = {}
    for _, name in ipairs({"os", "io", "dofile", "load", "loadstring", "require", "setmetatable"}) do
      if _G[name] ~= nil then table.insert(missing, name) end
    end
    return { pages = #missing, entries = {} }
  end,
}}`)

	result, err := p.Sections()[0].Search(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Pages, "dangerous globals are removed")
}

func TestTimeout(t *testing.T) {
	p := load(t, `
sections = {{
  name = "loop",
  search = function() while true do end end,
}}`, func(l *Loader) { l.Timeout = 100 * time.Millisecond })

	start := time.Now()
	_, err := p.Sections()[0].Search(context.Background(), 0, nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInvalidResults(t *testing.T) {
	tests := map[string]string{
		"not a table":    `return 1`,
		"bad language":   `return { entries = {{ id = "1", language = "en" }} }`,
		"missing id":     `return { entries = {{ title = "x" }} }`,
		"unknown kind":   `return { entries = {{ id = "1", kind = "video" }} }`,
		"pages on comic": `return { entries = {{ id = "1", kind = "comic", pages = 3 }} }`,
		"raises":         `error("boom")`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			p := load(t, fmt.Sprintf("sections = {{ name = 's', search = function() %s end }}", body))
			_, err := p.Sections()[0].Search(context.Background(), 0, nil)
			assert.Error(t, err)
		})
	}
}

func TestSectorEntry(t *testing.T) {
	p := load(t, `
local child = { name = "Child", search = function() return { pages = 1, entries = {{ id = "c" }} } end }
sections = {{
  name = "Parent",
  search = function() return { pages = 1, entries = {{ id = "s", kind = "sector", section = child }} } end,
}}`)

	result, err := p.Sections()[0].Search(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	child := result.Entries[0].Section
	require.NotNil(t, child)
	assert.Equal(t, "Child", child.Name())

	inner, err := child.Search(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "c", inner.Entries[0].ID)
}

func TestPatternErrors(t *testing.T) {
	p := load(t, `
sections = {
  { name = "dup", pattern = function(p) p:text("q") p:text("q") end, search = function() end },
  { name = "raise", pattern = function(p) error("nope") end, search = function() end },
}`)

	for _, s := range p.Sections() {
		_, err := source.BuildPattern(s)
		assert.Error(t, err, s.Name())
	}
}

func TestJSONModule(t *testing.T) {
	p := load(t, `
sections = {{
  name = "json",
  search = function()
    local text = json.encode({ b = 1, a = { 1.5, "x", true }, c = { d = "e" } })
    local back = json.decode(text)
    return { pages = back.b, entries = {{ id = text, title = back.c.d .. back.a[2] }} }
  end,
}}`)

	result, err := p.Sections()[0].Search(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, `{"a":[1.5,"x",true],"b":1,"c":{"d":"e"}}`, result.Entries[0].ID)
	assert.Equal(t, "ex", result.Entries[0].Title)
}

func TestJSONModule_Cycles(t *testing.T) {
	tests := map[string]string{
		"self":   `local t = {} t.self = t return t`,
		"mutual": `local a, b = {}, {} a.b = b b.list = { a } return a`,
		"deep":   `local t = {} for i = 1, 100 do t = { t } end return t`,
	}
	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			p := load(t, fmt.Sprintf(`
local function build() %s end
sections = {{
  name = "json",
  search = function()
    local ok, err = pcall(json.encode, build())
    local posted = pcall(http.post_json, "http://127.0.0.1:1/", { v = build() })
    return { pages = (ok or posted) and 1 or 0, entries = {{ id = "e", title = tostring(err) }} }
  end,
}}`, build))

			result, err := p.Sections()[0].Search(context.Background(), 0, nil)
			require.NoError(t, err)
			assert.Zero(t, result.Pages, "encoding must raise")
			assert.Contains(t, result.Entries[0].Title, "table")
		})
	}
}

func TestJSONModule_SharedTable(t *testing.T) {
	p := load(t, `
sections = {{
  name = "json",
  search = function()
    local s = { 1 }
    return { entries = {{ id = json.encode({ a = s, b = s }) }} }
  end,
}}`)

	result, err := p.Sections()[0].Search(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1],"b":[1]}`, result.Entries[0].ID)
}

func TestStringRepLimit(t *testing.T) {
	p := load(t, `
sections = {{
  name = "rep",
  search = function()
    local ok = pcall(string.rep, "x", 1e10)
    local okMethod = pcall(function() return ("x"):rep(1e10) end)
    local pages = 0
    if ok then pages = pages + 1 end
    if okMethod then pages = pages + 1 end
    return { pages = pages, entries = {{ id = string.rep("ab", 3) .. ("c"):rep(2) .. string.rep("z", 0) }} }
  end,
}}`)

	result, err := p.Sections()[0].Search(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Pages, "oversized repeats raise")
	assert.Equal(t, "abababcc", result.Entries[0].ID)
}

func TestLoadErrors(t *testing.T) {
	l := &Loader{}
	tests := map[string]string{
		"syntax":      `sections = {`,
		"no sections": `x = 1`,
		"no search":   `sections = {{ name = "a" }}`,
		"no name":     `sections = {{ search = function() end }}`,
		"bad pattern": `sections = {{ name = "a", pattern = 1, search = function() end }}`,
		"top raises":  `error("boom")`,
		"cyclic json": `local t = {} t.self = t json.encode(t) sections = {}`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := l.LoadString(context.Background(), "bad.lua", src)
			assert.Error(t, err)
		})
	}
}

func TestLoadFileAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.lua")
	require.NoError(t, os.WriteFile(path, []byte(`sections = {{ name = "a", search = function() return {} end }}`), 0644))

	l := &Loader{}
	assert.Equal(t, []string{"lua"}, l.Extensions())

	p, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	s := p.Sections()[0]

	_, err = s.Search(context.Background(), 0, nil)
	require.NoError(t, err)

	require.NoError(t, p.(plugin.Closer).Close())
	_, err = s.Search(context.Background(), 0, nil)
	assert.ErrorIs(t, err, errClosed)
}

func TestBundledPlugin(t *testing.T) {
	l := &Loader{HTTP: httpc.NewClient()}
	p, err := l.Load(context.Background(), filepath.Join("..", "..", "examples", "plugins", "lua", "picsum.lua"))
	require.NoError(t, err)
	defer p.(plugin.Closer).Close()

	require.Len(t, p.Sections(), 1)
	pattern, err := source.BuildPattern(p.Sections()[0])
	require.NoError(t, err)
	assert.Equal(t, source.Parameters{"per_page": "30"}, pattern.Defaults())
}
