package scraper

import (
	"context"

	"github.com/litescript/oxviewer/pkg/source"
)

// DummySection is a no-op section that returns empty results.
// It serves as the default section when no plugins or sources are
// configured, ensuring the TUI remains functional.
type DummySection struct {
	name string
}

// NewDummySection creates a dummy section that returns no results.
func NewDummySection() *DummySection {
	return &DummySection{
		name: "None",
	}
}

// Name returns the section name.
func (s *DummySection) Name() string {
	return s.name
}

// SetupPattern declares a query field so the search box still renders.
func (s *DummySection) SetupPattern(p *source.PatternBuilder) {
	p.Add(source.Text{Name: "query"})
}

// Search returns empty results.
func (s *DummySection) Search(ctx context.Context, page int, params source.Parameters) (source.Result, error) {
	return source.Result{}, nil
}
