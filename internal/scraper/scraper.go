// Package scraper provides sections that work without plugins: a heuristic
// GenericSection that can search most gallery sites, a DummySection used
// when nothing is configured and MultiSection aggregating several.
package scraper

import (
	"context"
	"errors"
	"sort"

	"github.com/litescript/oxviewer/pkg/source"
)

// MultiSection aggregates results from multiple sections
type MultiSection struct {
	name     string
	sections []source.Section
}

var _ source.Section = (*MultiSection)(nil)

// NewMultiSection creates a section that queries multiple sections
func NewMultiSection(name string, sections ...source.Section) *MultiSection {
	return &MultiSection{name: name, sections: sections}
}

func (m *MultiSection) Name() string {
	return m.name
}

// SetupPattern declares the union of the fields of all sections. The first
// section declaring a key wins.
func (m *MultiSection) SetupPattern(p *source.PatternBuilder) {
	seen := make(map[string]bool)
	for _, s := range m.sections {
		pattern, err := source.BuildPattern(s)
		if err != nil {
			p.Fail(err)
			return
		}
		for _, f := range pattern.Fields() {
			if !seen[f.Key()] {
				seen[f.Key()] = true
				p.Add(f)
			}
		}
	}
}

// Search queries all sections and merges results. Failing sections are
// skipped; an error is returned only if every section failed.
func (m *MultiSection) Search(ctx context.Context, page int, params source.Parameters) (source.Result, error) {
	var (
		result source.Result
		errs   []error
	)

	for _, s := range m.sections {
		r, err := s.Search(ctx, page, params)
		if err != nil {
			errs = append(errs, err)
			continue // Skip failed sources
		}
		if r.Pages > result.Pages {
			result.Pages = r.Pages
		}
		result.Entries = append(result.Entries, r.Entries...)
	}

	if len(m.sections) > 0 && len(errs) == len(m.sections) {
		return source.Result{}, errors.Join(errs...)
	}
	return result, nil
}

// SortEntries orders entries in place by title, or by rating (highest
// first, unrated last).
func SortEntries(entries []source.Entry, byRating bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if byRating {
			ri, rj := entries[i].Rating, entries[j].Rating
			switch {
			case ri == nil:
				return false
			case rj == nil:
				return true
			default:
				return *ri > *rj
			}
		}
		return entries[i].Title < entries[j].Title
	})
}
