// Package dom defines the HTML document model exposed to source plugins.
// Parsing and CSS selection are provided by goquery and cascadia; this
// package only maps their node model onto Document and Element.
package dom

// Document is a parsed HTML document.
type Document interface {
	// Root returns the root element. Its tag name and attributes depend on
	// how the parser normalised the input, usually <html>.
	Root() Element

	// Select finds the elements matching a CSS selector.
	Select(cssSelector string) ([]Element, error)

	// AbsURL resolves href against the document's base URL. href is
	// returned unchanged when there is no base URL or it can't be parsed.
	AbsURL(href string) string
}

// Element is a single HTML element.
type Element interface {
	// TagName returns the lower case tag name.
	TagName() string

	// ID returns the id attribute, or "" if not present.
	ID() string

	// ClassNames returns all class names. Never nil.
	ClassNames() []string

	InnerHTML() string
	OuterHTML() string

	// Text returns the combined text of the element and its descendants.
	Text() string

	// Parent returns the parent element, or nil at the root.
	Parent() Element

	// Children returns the child elements, skipping text and comments.
	Children() []Element

	// NextSibling returns the next sibling element, or nil.
	NextSibling() Element

	// PreviousSibling returns the previous sibling element, or nil.
	PreviousSibling() Element

	// Attr returns an attribute's value by case-insensitive key, or "" if
	// not present.
	Attr(key string) string

	// HasAttr reports whether the element has an attribute with the key.
	HasAttr(key string) bool

	// Select finds descendant elements matching a CSS selector.
	Select(cssSelector string) ([]Element, error)

	// Equal reports whether other wraps the same node.
	Equal(other Element) bool
}

// Factory parses HTML into documents.
type Factory interface {
	// Parse parses html. baseURL may be empty.
	Parse(html string, baseURL string) (Document, error)
}
