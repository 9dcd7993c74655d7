package source

import (
	"fmt"
	"slices"
	"strconv"
)

// Field is one input of a query pattern.
type Field interface {
	// Key names the parameter the field produces.
	Key() string
	// Default is the parameter value before the user changes it.
	Default() string
	// Check reports whether value is acceptable for the field.
	Check(value string) error
}

// Text is a free-form text field.
type Text struct {
	Name  string
	Value string
}

func (t Text) Key() string {
	return t.Name
}

func (t Text) Default() string {
	return t.Value
}

func (t Text) Check(value string) error {
	return nil
}

// Toggle is an on/off field producing "true" or "false".
type Toggle struct {
	Name  string
	Value bool
}

func (t Toggle) Key() string {
	return t.Name
}

func (t Toggle) Default() string {
	return strconv.FormatBool(t.Value)
}

func (t Toggle) Check(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("%s: %q is not a boolean", t.Name, value)
	}
	return nil
}

// Select is a choice among fixed options.
type Select struct {
	Name    string
	Options []string
	Value   string
}

func (s Select) Key() string {
	return s.Name
}

func (s Select) Default() string {
	return s.Value
}

func (s Select) Check(value string) error {
	if !slices.Contains(s.Options, value) {
		return fmt.Errorf("%s: %q is not one of %v", s.Name, value, s.Options)
	}
	return nil
}

// Pattern is the ordered set of fields a section searches with.
type Pattern struct {
	fields []Field
}

// Fields returns the fields in the order they were added.
func (p Pattern) Fields() []Field {
	return append([]Field(nil), p.fields...)
}

// Defaults returns parameters holding every field's default.
func (p Pattern) Defaults() Parameters {
	params := make(Parameters, len(p.fields))
	for _, f := range p.fields {
		params[f.Key()] = f.Default()
	}
	return params
}

// Validate checks that params only hold known keys with acceptable values.
// Missing keys are allowed; callers merge them with Defaults.
func (p Pattern) Validate(params Parameters) error {
	for key, value := range params {
		i := slices.IndexFunc(p.fields, func(f Field) bool { return f.Key() == key })
		if i < 0 {
			return fmt.Errorf("unknown parameter %q", key)
		}
		if err := p.fields[i].Check(value); err != nil {
			return err
		}
	}
	return nil
}

// PatternBuilder collects fields in SetupPattern.
type PatternBuilder struct {
	fields []Field
	err    error
}

// Add appends a field. A duplicate or empty key is recorded and reported by
// Build.
func (b *PatternBuilder) Add(f Field) *PatternBuilder {
	if b.err != nil {
		return b
	}
	if f.Key() == "" {
		b.err = fmt.Errorf("pattern field has no key")
		return b
	}
	for _, existing := range b.fields {
		if existing.Key() == f.Key() {
			b.err = fmt.Errorf("duplicate pattern field %q", f.Key())
			return b
		}
	}
	if err := f.Check(f.Default()); err != nil {
		b.err = fmt.Errorf("invalid default: %w", err)
		return b
	}
	b.fields = append(b.fields, f)
	return b
}

// Fail records err to be returned by Build. Only the first error is kept.
func (b *PatternBuilder) Fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the pattern or the first error recorded by Add.
func (b *PatternBuilder) Build() (Pattern, error) {
	if b.err != nil {
		return Pattern{}, b.err
	}
	return Pattern{fields: append([]Field(nil), b.fields...)}, nil
}

// Parameters are the values of a pattern's fields, by key.
type Parameters map[string]string

// Get returns the value of key, or "".
func (p Parameters) Get(key string) string {
	return p[key]
}

// Bool parses the value of key. Missing or malformed values are false.
func (p Parameters) Bool(key string) bool {
	b, _ := strconv.ParseBool(p[key])
	return b
}

// Int parses the value of key.
func (p Parameters) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", key, err)
	}
	return n, nil
}

// Merge returns a copy of p with the entries of other laid over it.
func (p Parameters) Merge(other Parameters) Parameters {
	merged := make(Parameters, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}
