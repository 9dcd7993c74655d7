package source

import (
	"context"
	"sync"
)

// Section is a part of a source. It runs paged searches with parameters
// generated from its query pattern.
type Section interface {
	// Name is the display name.
	Name() string

	// SetupPattern declares the query pattern. It is called when the host
	// builds the section's UI and again after InvalidatePattern.
	SetupPattern(p *PatternBuilder)

	// Search returns one page of results. Pages start at 0.
	Search(ctx context.Context, page int, params Parameters) (Result, error)
}

// Invalidator is implemented by sections that can announce a pattern
// change. Embedding Base provides it.
type Invalidator interface {
	OnInvalidate(fn func())
}

// Base can be embedded in a Section to support InvalidatePattern.
type Base struct {
	mu       sync.Mutex
	onChange func()
}

// OnInvalidate registers the host callback run by InvalidatePattern. Only
// the last registered callback is kept.
func (b *Base) OnInvalidate(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// InvalidatePattern declares that the query pattern has changed;
// SetupPattern will be called again soon.
func (b *Base) InvalidatePattern() {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// BuildPattern runs s.SetupPattern on a fresh builder.
func BuildPattern(s Section) (Pattern, error) {
	var b PatternBuilder
	s.SetupPattern(&b)
	return b.Build()
}
