package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/litescript/oxviewer/pkg/dom"
	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/source"
)

const acceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// GenericSection attempts to scrape any gallery site using heuristics
type GenericSection struct {
	name    string
	baseURL string
	client  *httpc.Client
	dom     dom.Factory

	mu        sync.Mutex
	searchURL string // Discovered search URL pattern, %s is the query
}

var _ source.Section = (*GenericSection)(nil)

// NewGenericSection creates a section for an arbitrary gallery site
func NewGenericSection(name, baseURL string, client *httpc.Client, f dom.Factory) *GenericSection {
	return &GenericSection{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		dom:     f,
	}
}

// Name returns the source name
func (s *GenericSection) Name() string {
	return s.name
}

// SetupPattern declares the single query field.
func (s *GenericSection) SetupPattern(p *source.PatternBuilder) {
	p.Add(source.Text{Name: "query"})
}

// Search queries the site for galleries. Pages start at 0; the site's own
// numbering is assumed to start at 1.
func (s *GenericSection) Search(ctx context.Context, page int, params source.Parameters) (source.Result, error) {
	query := params.Get("query")

	// Try common search URL patterns
	searchPatterns := []string{
		s.baseURL + "/search/" + url.PathEscape(query) + "/",
		s.baseURL + "/search/" + url.PathEscape(query),
		s.baseURL + "/search?q=" + url.QueryEscape(query),
		s.baseURL + "/?s=" + url.QueryEscape(query),
		s.baseURL + "/galleries/?search=" + url.QueryEscape(query),
	}

	// If we've discovered a working search URL, use it first
	s.mu.Lock()
	known := s.searchURL
	s.mu.Unlock()
	if known != "" {
		searchPatterns = append([]string{
			strings.Replace(known, "%s", url.PathEscape(query), 1),
		}, searchPatterns...)
	}

	var lastErr error
	for _, searchURL := range searchPatterns {
		result, err := s.trySearch(ctx, withPage(searchURL, page))
		if err != nil {
			lastErr = err
			continue
		}
		if len(result.Entries) > 0 {
			// Remember this pattern worked
			s.mu.Lock()
			s.searchURL = strings.Replace(searchURL, url.PathEscape(query), "%s", 1)
			s.mu.Unlock()
			return result, nil
		}
	}

	if lastErr != nil {
		return source.Result{}, lastErr
	}
	return source.Result{}, fmt.Errorf("no results found with any search pattern")
}

// withPage adds a page query parameter for pages after the first.
func withPage(rawURL string, page int) string {
	if page <= 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page+1))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *GenericSection) trySearch(ctx context.Context, searchURL string) (source.Result, error) {
	doc, err := s.fetch(ctx, searchURL)
	if err != nil {
		return source.Result{}, err
	}

	entries := s.extractEntries(doc)
	pages := pageOf(searchURL)
	if hasNextPage(doc) {
		// At least one more page; the real count is unknown.
		pages++
	}
	return source.Result{Pages: pages, Entries: entries}, nil
}

func (s *GenericSection) fetch(ctx context.Context, rawURL string) (dom.Document, error) {
	resp, err := s.client.NewRequest().
		URL(rawURL).
		Header("Accept", acceptHTML).
		Execute(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Code() != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.Code())
	}
	return resp.Document(s.dom)
}

// pageOf returns the 1-based page number of a search URL.
func pageOf(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > 0 {
		return n
	}
	return 1
}

func hasNextPage(doc dom.Document) bool {
	if next, _ := doc.Select("a[rel='next'], link[rel='next']"); len(next) > 0 {
		return true
	}
	links, _ := doc.Select("a")
	for _, a := range links {
		switch strings.ToLower(strings.TrimSpace(a.Text())) {
		case "next", "next »", "»", ">", "older":
			return true
		}
	}
	return false
}

// extractEntries uses heuristics to find galleries in any page
func (s *GenericSection) extractEntries(doc dom.Document) []source.Entry {
	var results []source.Entry
	seen := make(map[string]bool)

	// Strategy 1: Find all links wrapping a thumbnail and work outwards
	links, _ := doc.Select("a[href]")
	for _, link := range links {
		imgs, _ := link.Select("img")
		if len(imgs) == 0 {
			continue
		}
		href := doc.AbsURL(link.Attr("href"))
		if href == "" || seen[href] || isNavigation(href, s.baseURL) {
			continue
		}
		seen[href] = true

		e := source.Entry{
			Kind:      source.KindGallery,
			ID:        href,
			Thumbnail: doc.AbsURL(imageSource(imgs[0])),
			Title:     firstNonEmpty(link.Attr("title"), imgs[0].Attr("alt"), imgs[0].Attr("title")),
			Tags:      map[string][]string{},
		}

		// Look for info in parent/ancestor elements
		s.extractInfoFromContext(link, &e)

		if e.Title != "" && e.Validate() == nil {
			results = append(results, e)
		}
	}

	// Strategy 2: Look for gallery tables if there were no thumbnails
	if len(results) == 0 {
		results = s.extractFromTables(doc)
	}

	return results
}

var containerTags = map[string]bool{
	"tr": true, "li": true, "article": true, "figure": true, "div": true,
}

// closest returns the nearest ancestor that looks like a result container.
func closest(e dom.Element) dom.Element {
	for p := e.Parent(); p != nil; p = p.Parent() {
		if containerTags[p.TagName()] {
			return p
		}
	}
	return nil
}

// extractInfoFromContext looks at surrounding elements for gallery metadata
func (s *GenericSection) extractInfoFromContext(link dom.Element, e *source.Entry) {
	// Walk up a few containers; stop at the first one with useful info
	container := link
	for depth := 0; depth < 3; depth++ {
		container = closest(container)
		if container == nil {
			return
		}
		text := container.Text()

		// Try to find a title if we don't have one
		if e.Title == "" {
			titles, _ := container.Select(".title, .caption, h1, h2, h3, h4")
			for _, t := range titles {
				if candidate := strings.TrimSpace(t.Text()); !isBoilerplate(candidate) {
					e.Title = candidate
					break
				}
			}
			if e.Title == "" {
				if candidate := strings.TrimSpace(link.Text()); !isBoilerplate(candidate) {
					e.Title = candidate
				}
			}
		}

		if e.PageNum == nil {
			if n := extractNumber(text, []string{"pages", "page", "p:", "images"}); n > 0 {
				e.PageNum = &n
			}
		}

		if e.Rating == nil {
			e.Rating = extractRating(text)
		}

		if e.Language == "" {
			e.Language = extractLanguage(text)
		}

		if len(e.Tags) == 0 {
			tags, _ := container.Select(".tag, .tags a, a[rel='tag']")
			for _, t := range tags {
				if name := strings.TrimSpace(t.Text()); name != "" {
					e.Tags[source.NoNamespace] = append(e.Tags[source.NoNamespace], name)
				}
			}
		}

		// If we found useful info, stop looking
		if e.Title != "" && (e.PageNum != nil || e.Rating != nil) {
			break
		}
	}
}

// extractFromTables looks for gallery links in HTML tables
func (s *GenericSection) extractFromTables(doc dom.Document) []source.Entry {
	var results []source.Entry

	rows, _ := doc.Select("table tr")
	for _, row := range rows {
		// Skip header rows
		if th, _ := row.Select("th"); len(th) > 0 {
			continue
		}

		e := source.Entry{Kind: source.KindGallery, Tags: map[string][]string{}}
		text := row.Text()

		// Look for links
		links, _ := row.Select("a[href]")
		for _, link := range links {
			href := link.Attr("href")
			if e.ID == "" && (strings.Contains(strings.ToLower(href), "gallery") || strings.Contains(href, "/g/")) {
				e.ID = doc.AbsURL(href)
				if name := strings.TrimSpace(link.Text()); name != "" {
					e.Title = name
				}
			}
		}

		if n := extractNumber(text, []string{"pages", "page"}); n > 0 {
			e.PageNum = &n
		}
		e.Rating = extractRating(text)

		if e.ID != "" && e.Title != "" && e.Validate() == nil {
			results = append(results, e)
		}
	}

	return results
}

// ValidateURL checks if a URL is reachable and looks like a gallery site
func ValidateURL(ctx context.Context, client *httpc.Client, f dom.Factory, rawURL string) (string, error) {
	// Parse and validate URL format
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + rawURL)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL must be http or https")
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must have a host")
	}

	normalizedURL := parsed.Scheme + "://" + parsed.Host

	// Check reachability
	resp, err := client.NewRequest().URL(normalizedURL).Header("Accept", acceptHTML).Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("site unreachable: %w", err)
	}
	if resp.Code() >= 400 {
		return "", fmt.Errorf("site returned HTTP %d", resp.Code())
	}

	doc, err := resp.Document(f)
	if err != nil {
		return "", fmt.Errorf("couldn't parse page: %w", err)
	}

	// Look for gallery indicators
	pageText := strings.ToLower(doc.Root().Text())
	thumbs, _ := doc.Select("a img")
	search, _ := doc.Select("input[type='search'], input[name='q'], input[name='search'], form[action*='search']")
	hasGalleryWords := strings.Contains(pageText, "gallery") ||
		strings.Contains(pageText, "galleries") ||
		strings.Contains(pageText, "album") ||
		strings.Contains(pageText, "pages")

	if len(thumbs) < 3 && len(search) == 0 && !hasGalleryWords {
		return "", fmt.Errorf("doesn't look like a gallery site")
	}

	return normalizedURL, nil
}

// TestSearch performs a test search to verify the site works
func TestSearch(ctx context.Context, client *httpc.Client, f dom.Factory, baseURL string) (int, error) {
	s := NewGenericSection("test", baseURL, client, f)

	// Try a common search term
	result, err := s.Search(ctx, 0, source.Parameters{"query": "test"})
	if err != nil {
		// Try another term
		result, err = s.Search(ctx, 0, source.Parameters{"query": "art"})
		if err != nil {
			return 0, fmt.Errorf("search failed: %w", err)
		}
	}

	return len(result.Entries), nil
}

// Helper functions

func imageSource(img dom.Element) string {
	for _, key := range []string{"data-src", "data-original", "src"} {
		if v := img.Attr(key); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// isNavigation filters site chrome such as the logo link to the home page.
func isNavigation(href, baseURL string) bool {
	trimmed := strings.TrimRight(href, "/")
	return trimmed == baseURL || trimmed == "" || strings.HasPrefix(href, "javascript:")
}

var ratingRegex = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:/|out of)\s*(5|10)\b`)

// extractRating finds "4.5/5" or "8 out of 10" and scales it to [0, 10].
func extractRating(text string) *float64 {
	m := ratingRegex.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	scale, _ := strconv.ParseFloat(m[2], 64)
	v = v * 10 / scale
	if v < 0 || v > 10 {
		return nil
	}
	return &v
}

// ISO 639-3 codes of languages commonly named on gallery sites.
var languageCodes = map[string]string{
	"english":  "eng",
	"japanese": "jpn",
	"chinese":  "zho",
	"korean":   "kor",
	"french":   "fra",
	"german":   "deu",
	"spanish":  "spa",
	"russian":  "rus",
}

var wordRegex = regexp.MustCompile(`[a-z]+`)

func extractLanguage(text string) string {
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if code, ok := languageCodes[w]; ok {
			return code
		}
	}
	return ""
}

var numberRegex = regexp.MustCompile(`\d+`)

// extractNumber returns the number closest to the first hint found in text.
func extractNumber(text string, hints []string) int {
	textLower := strings.ToLower(text)

	for _, hint := range hints {
		idx := strings.Index(textLower, hint)
		if idx == -1 {
			continue
		}

		// Look for number near the hint (before or after)
		window := 20
		start := idx - window
		if start < 0 {
			start = 0
		}
		end := idx + len(hint) + window
		if end > len(textLower) {
			end = len(textLower)
		}

		snippet := textLower[start:end]
		best, bestDist := 0, -1
		for _, loc := range numberRegex.FindAllStringIndex(snippet, -1) {
			n, err := strconv.Atoi(snippet[loc[0]:loc[1]])
			if err != nil || n >= 100000 {
				continue
			}
			dist := distance(start+loc[0], start+loc[1], idx, idx+len(hint))
			if bestDist < 0 || dist < bestDist {
				best, bestDist = n, dist
			}
		}
		if bestDist >= 0 {
			return best
		}
	}

	return 0
}

// distance is the gap between the byte ranges [a0, a1) and [b0, b1).
func distance(a0, a1, b0, b1 int) int {
	switch {
	case a1 <= b0:
		return b0 - a1
	case b1 <= a0:
		return a0 - b1
	default:
		return 0
	}
}

func isBoilerplate(text string) bool {
	lower := strings.ToLower(text)
	boilerplate := []string{
		"home", "search", "login", "register", "about", "contact",
		"download", "gallery", "galleries", "category", "browse", "next", "prev",
	}
	for _, b := range boilerplate {
		if lower == b {
			return true
		}
	}
	return len(text) < 2 || len(text) > 300
}
