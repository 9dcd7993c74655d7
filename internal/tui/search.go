package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/internal/scraper"
	"github.com/litescript/oxviewer/pkg/source"
)

// formField is one input of the query form.
type formField struct {
	field source.Field
	input textinput.Model // Text fields
	value string          // Toggle and Select fields
}

func newFormField(f source.Field, value string) formField {
	ff := formField{field: f, value: value}
	if _, ok := f.(source.Text); ok {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 256
		ti.Width = 40
		ti.SetValue(value)
		ff.input = ti
	}
	return ff
}

func (f formField) current() string {
	if _, ok := f.field.(source.Text); ok {
		return f.input.Value()
	}
	return f.value
}

// view is a section being browsed. Opening a sector entry pushes a view
// for the section it provides.
type view struct {
	section source.Section
	fields  []formField
	err     error // pattern failed to build

	results []source.Entry
	page    int
	pages   int
	cursor  int
}

func newView(s source.Section, events *Events) *view {
	if inv, ok := s.(source.Invalidator); ok {
		inv.OnInvalidate(events.patternChanged)
	}
	v := &view{section: s}
	v.rebuild()
	return v
}

// rebuild asks the section for its pattern again. Values of fields that
// survive are kept.
func (v *view) rebuild() {
	old := make(source.Parameters, len(v.fields))
	for _, f := range v.fields {
		old[f.field.Key()] = f.current()
	}

	pattern, err := source.BuildPattern(v.section)
	v.err = err
	v.fields = nil
	if err != nil {
		return
	}
	for _, f := range pattern.Fields() {
		value := f.Default()
		if prev, ok := old[f.Key()]; ok && f.Check(prev) == nil {
			value = prev
		}
		v.fields = append(v.fields, newFormField(f, value))
	}
}

func (v *view) params() source.Parameters {
	params := make(source.Parameters, len(v.fields))
	for _, f := range v.fields {
		params[f.field.Key()] = f.current()
	}
	return params
}

type searchState struct {
	sections []source.Section
	selected int
	stack    []*view

	// Index of the focused form field, -1 when browsing results
	focus int

	searching bool
	seq       int
	byRating  bool
}

func (s *searchState) top() *view {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *searchState) editing() bool {
	return s.focus >= 0 && s.top() != nil && s.focus < len(s.top().fields)
}

func (s *searchState) rebuildPatterns() {
	for _, v := range s.stack {
		v.rebuild()
	}
	if top := s.top(); top != nil && s.focus >= len(top.fields) {
		s.focus = -1
	}
}

type searchResultMsg struct {
	seq    int
	view   *view
	page   int
	result source.Result
	err    error
}

// reloadSections refreshes the section list, keeping the selection when
// the selected section is still there. Sections are compared by identity.
func (m *Model) reloadSections() {
	sections := m.deps.Sections()
	if len(sections) == 0 {
		sections = []source.Section{scraper.NewDummySection()}
	}

	var current source.Section
	if m.search.selected < len(m.search.sections) {
		current = m.search.sections[m.search.selected]
	}
	m.search.sections = sections

	if i := slices.Index(sections, current); current != nil && i >= 0 {
		m.search.selected = i
		return
	}
	m.selectSection(0)
}

func (m *Model) selectSection(i int) {
	s := &m.search
	s.selected = i
	s.stack = []*view{newView(s.sections[i], m.deps.Events)}
	s.focus = -1
	s.searching = false
	s.seq++
}

func (m Model) handleSearchKey(key string) (tea.Model, tea.Cmd) {
	s := &m.search
	top := s.top()

	switch key {
	case "]":
		m.selectSection((s.selected + 1) % len(s.sections))
	case "[":
		m.selectSection((s.selected + len(s.sections) - 1) % len(s.sections))
	case "/", "i":
		if len(top.fields) > 0 {
			return m, m.focusField(0)
		}
	case "up", "k":
		if top.cursor > 0 {
			top.cursor--
		}
	case "down", "j":
		if top.cursor < len(top.results)-1 {
			top.cursor++
		}
	case "n":
		if !s.searching && top.page+1 < top.pages {
			return m, m.runSearch(top.page + 1)
		}
	case "p":
		if !s.searching && top.page > 0 {
			return m, m.runSearch(top.page - 1)
		}
	case "s":
		s.byRating = !s.byRating
		scraper.SortEntries(top.results, s.byRating)
		if s.byRating {
			m.statusMsg = "Sorted by rating"
		} else {
			m.statusMsg = "Sorted by title"
		}
	case "enter":
		if top.cursor < len(top.results) {
			e := top.results[top.cursor]
			if e.Kind == source.KindSector && e.Section != nil {
				s.stack = append(s.stack, newView(e.Section, m.deps.Events))
				s.seq++
				s.searching = false
				m.statusMsg = "Opened " + e.Section.Name()
			} else {
				m.statusMsg = e.ID
			}
		}
	case "esc", "backspace":
		if len(s.stack) > 1 {
			s.stack = s.stack[:len(s.stack)-1]
			s.seq++
			s.searching = false
		}
	}
	return m, nil
}

func (m *Model) focusField(i int) tea.Cmd {
	top := m.search.top()
	if m.search.editing() {
		f := top.fields[m.search.focus]
		f.input.Blur()
		top.fields[m.search.focus] = f
	}
	m.search.focus = i
	f := top.fields[i]
	if _, ok := f.field.(source.Text); ok {
		cmd := f.input.Focus()
		top.fields[i] = f
		return cmd
	}
	return nil
}

func (m Model) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.search
	top := s.top()
	f := top.fields[s.focus]

	switch msg.String() {
	case "esc":
		f.input.Blur()
		top.fields[s.focus] = f
		s.focus = -1
		return m, nil
	case "tab", "down":
		return m, m.focusField((s.focus + 1) % len(top.fields))
	case "shift+tab", "up":
		return m, m.focusField((s.focus + len(top.fields) - 1) % len(top.fields))
	case "enter":
		f.input.Blur()
		top.fields[s.focus] = f
		s.focus = -1
		return m, m.runSearch(0)
	}

	switch field := f.field.(type) {
	case source.Text:
		var cmd tea.Cmd
		f.input, cmd = f.input.Update(msg)
		top.fields[s.focus] = f
		return m, cmd
	case source.Toggle:
		if msg.String() == " " {
			f.value = fmt.Sprint(f.value != "true")
		}
	case source.Select:
		if len(field.Options) > 0 {
			i := slices.Index(field.Options, f.value)
			switch msg.String() {
			case "right", "l", " ":
				f.value = field.Options[(i+1)%len(field.Options)]
			case "left", "h":
				f.value = field.Options[(i+len(field.Options)-1)%len(field.Options)]
			}
		}
	}
	top.fields[s.focus] = f
	return m, nil
}

// runSearch starts a search of the top view. Results of searches started
// earlier are dropped when they arrive.
func (m *Model) runSearch(page int) tea.Cmd {
	s := &m.search
	top := s.top()
	if top.err != nil {
		m.statusMsg = fmt.Sprintf("Pattern error: %v", top.err)
		return nil
	}

	pattern, err := source.BuildPattern(top.section)
	if err != nil {
		m.statusMsg = fmt.Sprintf("Pattern error: %v", err)
		return nil
	}
	params := top.params()
	if err := pattern.Validate(params); err != nil {
		m.statusMsg = fmt.Sprintf("Invalid query: %v", err)
		return nil
	}

	s.seq++
	s.searching = true
	m.statusMsg = fmt.Sprintf("Searching %s...", top.section.Name())

	seq, section, timeout := s.seq, top.section, m.deps.Timeout
	logger := m.deps.Logger
	search := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		result, err := section.Search(ctx, page, pattern.Defaults().Merge(params))
		logger.Debug("search",
			zap.String("section", section.Name()),
			zap.Int("page", page),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return searchResultMsg{seq: seq, view: top, page: page, result: result, err: err}
	}
	return tea.Batch(m.spinner.Tick, search)
}

func (m *Model) handleSearchResult(msg searchResultMsg) {
	s := &m.search
	if msg.seq != s.seq {
		return
	}
	s.searching = false

	if msg.err != nil {
		m.statusMsg = fmt.Sprintf("Search failed: %v", msg.err)
		return
	}

	// Sections are plugin code; drop what breaks the entry invariants
	var entries []source.Entry
	for _, e := range msg.result.Entries {
		if err := e.Validate(); err != nil {
			m.deps.Logger.Warn("dropping invalid entry",
				zap.String("section", msg.view.section.Name()), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	if s.byRating {
		scraper.SortEntries(entries, true)
	}

	v := msg.view
	v.results = entries
	v.page = msg.page
	v.pages = max(msg.result.Pages, msg.page+1)
	v.cursor = 0

	if len(entries) == 0 {
		m.statusMsg = "No results found"
	} else {
		m.statusMsg = fmt.Sprintf("Found %d results", len(entries))
	}
}

func (m Model) renderSearchTab(height int) string {
	styles := GetStyles()
	s := m.search
	top := s.top()
	var b strings.Builder

	// Section picker and sector breadcrumb
	names := make([]string, len(s.stack))
	for i, v := range s.stack {
		names[i] = v.section.Name()
	}
	b.WriteString(styles.Prompt.Render("Section: "))
	b.WriteString(styles.Input.Render(strings.Join(names, " › ")))
	b.WriteString(styles.Muted.Render(fmt.Sprintf("  (%d/%d)", s.selected+1, len(s.sections))))
	b.WriteString("\n")

	// Query form
	if top.err != nil {
		b.WriteString(styles.Error.Render(fmt.Sprintf("Pattern error: %v", top.err)))
		b.WriteString("\n")
	}
	for i, f := range top.fields {
		label := styles.Prompt.Render(PadRight(f.field.Key(), 12) + " ")
		var value string
		switch f.field.(type) {
		case source.Text:
			value = f.input.View()
		case source.Toggle:
			mark := "[ ]"
			if f.value == "true" {
				mark = "[x]"
			}
			value = styles.Input.Render(mark)
		default:
			value = styles.Input.Render("< " + f.value + " >")
		}
		if i == s.focus {
			label = styles.Selected.Render(PadRight(f.field.Key(), 12)) + " "
		}
		b.WriteString(label + value + "\n")
	}
	b.WriteString("\n")

	if len(top.results) == 0 {
		if s.searching {
			b.WriteString(m.spinner.View() + " Searching...")
		} else {
			b.WriteString(styles.Muted.Render("No results. Press / to edit the query, enter to search."))
		}
		return b.String()
	}

	b.WriteString(m.renderResults(top, height-len(top.fields)-3))
	return b.String()
}

func (m Model) renderResults(v *view, height int) string {
	styles := GetStyles()
	var b strings.Builder

	kindWidth, langWidth, pagesWidth, ratingWidth := 8, 4, 6, 6
	titleWidth := max(20, m.width-kindWidth-langWidth-pagesWidth-ratingWidth-8)

	header := fmt.Sprintf("  %s %s %s %s %s",
		PadRight("TITLE", titleWidth),
		PadRight("KIND", kindWidth),
		PadRight("LANG", langWidth),
		PadLeft("PAGES", pagesWidth),
		PadLeft("RATING", ratingWidth))
	b.WriteString(styles.Muted.Bold(true).Render(header))
	b.WriteString("\n")

	visible := max(1, height-3)
	start := 0
	if v.cursor >= visible {
		start = v.cursor - visible + 1
	}
	end := min(len(v.results), start+visible)

	for i := start; i < end; i++ {
		e := v.results[i]
		title := e.Title
		if title == "" {
			title = e.ID
		}
		count := e.PageNum
		if e.Kind == source.KindComic {
			count = e.ChapterNum
		}
		row := fmt.Sprintf("%s %s %s %s %s",
			PadRight(title, titleWidth),
			PadRight(e.Kind.String(), kindWidth),
			PadRight(e.Language, langWidth),
			PadLeft(formatCount(count), pagesWidth),
			PadLeft(formatRating(e.Rating), ratingWidth))

		if i == v.cursor {
			b.WriteString(styles.Selected.Render("▸ " + row))
		} else {
			b.WriteString(styles.Row.Render("  " + row))
		}
		b.WriteString("\n")
	}

	b.WriteString(styles.Muted.Render(fmt.Sprintf("Page %d/%d", v.page+1, v.pages)))
	return b.String()
}
