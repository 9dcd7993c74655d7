package dom

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

type goqueryFactory struct{}

// NewFactory returns a Factory backed by goquery.
func NewFactory() Factory {
	return goqueryFactory{}
}

func (goqueryFactory) Parse(text string, baseURL string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
		}
		doc.Url = u
	}

	return &document{doc: doc}, nil
}

type document struct {
	doc *goquery.Document
}

func (d *document) Root() Element {
	for n := d.doc.Selection.Nodes[0].FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return newElement(n)
		}
	}
	// The html parser always synthesises <html>, so this is unreachable in
	// practice.
	return nil
}

func (d *document) Select(cssSelector string) ([]Element, error) {
	return selectFrom(d.doc.Selection, cssSelector)
}

func (d *document) AbsURL(href string) string {
	if d.doc.Url == nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return d.doc.Url.ResolveReference(ref).String()
}

type element struct {
	node *html.Node
	sel  *goquery.Selection
}

func newElement(n *html.Node) *element {
	return &element{
		node: n,
		sel:  goquery.NewDocumentFromNode(n).Selection,
	}
}

func (e *element) TagName() string {
	return strings.ToLower(e.node.Data)
}

func (e *element) ID() string {
	return e.Attr("id")
}

func (e *element) ClassNames() []string {
	names := strings.Fields(e.Attr("class"))
	if names == nil {
		return []string{}
	}
	return names
}

func (e *element) InnerHTML() string {
	s, err := e.sel.Html()
	if err != nil {
		return ""
	}
	return s
}

func (e *element) OuterHTML() string {
	s, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return ""
	}
	return s
}

func (e *element) Text() string {
	return e.sel.Text()
}

func (e *element) Parent() Element {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return newElement(p)
}

func (e *element) Children() []Element {
	var children []Element
	for n := e.node.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			children = append(children, newElement(n))
		}
	}
	if children == nil {
		return []Element{}
	}
	return children
}

func (e *element) NextSibling() Element {
	for n := e.node.NextSibling; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return newElement(n)
		}
	}
	return nil
}

func (e *element) PreviousSibling() Element {
	for n := e.node.PrevSibling; n != nil; n = n.PrevSibling {
		if n.Type == html.ElementNode {
			return newElement(n)
		}
	}
	return nil
}

func (e *element) Attr(key string) string {
	for _, a := range e.node.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func (e *element) HasAttr(key string) bool {
	for _, a := range e.node.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func (e *element) Select(cssSelector string) ([]Element, error) {
	return selectFrom(e.sel, cssSelector)
}

func (e *element) Equal(other Element) bool {
	o, ok := other.(*element)
	return ok && o.node == e.node
}

// selectFrom compiles the selector up front so a malformed one is reported
// instead of silently matching nothing, which is what goquery's Find does.
func selectFrom(sel *goquery.Selection, cssSelector string) ([]Element, error) {
	m, err := cascadia.Compile(cssSelector)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", cssSelector, err)
	}

	found := sel.FindMatcher(m)
	elements := make([]Element, 0, found.Length())
	for _, n := range found.Nodes {
		elements = append(elements, newElement(n))
	}
	return elements, nil
}
