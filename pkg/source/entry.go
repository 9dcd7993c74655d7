// Package source defines what a source plugin provides: sections that run
// paged searches driven by a query pattern, returning entries.
package source

import (
	"fmt"
	"regexp"
)

// NoNamespace groups tags of sources without tag namespaces.
const NoNamespace = "__NO_NAMESPACE__"

// Kind is the kind of content an entry points at.
type Kind int

const (
	// KindImage is a single image.
	KindImage Kind = iota
	// KindGallery is a set of images.
	KindGallery
	// KindComic is a set of galleries.
	KindComic
	// KindSector provides a section instead of content.
	KindSector
)

var kindNames = map[Kind]string{
	KindImage:   "image",
	KindGallery: "gallery",
	KindComic:   "comic",
	KindSector:  "sector",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps "image", "gallery", "comic" or "sector" to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown entry kind %q", s)
}

// Entry is one search result. Zero values mean "unknown".
type Entry struct {
	Kind Kind

	// ID identifies the entry uniquely within its section.
	ID string

	// Version is the last update time as a unix timestamp.
	Version int64

	Title       string
	Description string
	Thumbnail   string
	Uploader    string

	// Language is an ISO 639-3 three-letter code.
	Language string

	// Rating is in [0, 10].
	Rating *float64

	// Tags maps a namespace to its tags. Use NoNamespace when the source
	// has none.
	Tags map[string][]string

	// PageNum is the number of pages of a gallery.
	PageNum *int

	// ChapterNum is the number of chapters of a comic.
	ChapterNum *int

	// Section is the section provided by a sector.
	Section Section
}

var languageRe = regexp.MustCompile(`^[a-z]{3}$`)

// Validate checks the entry's invariants.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry has no id")
	}
	if _, ok := kindNames[e.Kind]; !ok {
		return fmt.Errorf("entry %s: invalid kind %d", e.ID, int(e.Kind))
	}
	if e.Language != "" && !languageRe.MatchString(e.Language) {
		return fmt.Errorf("entry %s: language %q is not an ISO 639-3 code", e.ID, e.Language)
	}
	if e.Rating != nil && (*e.Rating < 0 || *e.Rating > 10) {
		return fmt.Errorf("entry %s: rating %v out of [0, 10]", e.ID, *e.Rating)
	}
	if e.PageNum != nil && e.Kind != KindGallery {
		return fmt.Errorf("entry %s: page count on a %s", e.ID, e.Kind)
	}
	if e.ChapterNum != nil && e.Kind != KindComic {
		return fmt.Errorf("entry %s: chapter count on a %s", e.ID, e.Kind)
	}
	if (e.Section != nil) != (e.Kind == KindSector) {
		return fmt.Errorf("entry %s: only sectors carry a section", e.ID)
	}
	return nil
}

// Result is one page of search results.
type Result struct {
	// Pages is the total number of pages.
	Pages   int
	Entries []Entry
}
