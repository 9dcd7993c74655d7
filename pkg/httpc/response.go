package httpc

import (
	stdjson "encoding/json"
	"net/http"
	"sort"

	"github.com/litescript/oxviewer/pkg/dom"
	"github.com/litescript/oxviewer/pkg/json"
)

// Response is a fully read HTTP response.
type Response struct {
	code   int
	header http.Header
	body   []byte
	url    string
}

// Code returns the HTTP status code.
func (r *Response) Code() int {
	return r.code
}

// Header returns the first value of the named header and whether the
// header was present.
func (r *Response) Header(name string) (string, bool) {
	values := r.header.Values(name)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// HeaderNames returns the canonical names of all response headers, sorted.
func (r *Response) HeaderNames() []string {
	names := make([]string, 0, len(r.header))
	for name := range r.header {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the body as a string.
func (r *Response) String() string {
	return string(r.body)
}

// Bytes returns the body.
func (r *Response) Bytes() []byte {
	return r.body
}

// URL returns the final URL after redirects.
func (r *Response) URL() string {
	return r.url
}

// Document parses the body as HTML, using the final URL as base URL.
func (r *Response) Document(f dom.Factory) (dom.Document, error) {
	return f.Parse(string(r.body), r.url)
}

// JSON parses the body as a JSON object or array.
func (r *Response) JSON(f json.Factory) (json.Value, error) {
	return f.Parse(string(r.body))
}

type cachedResponse struct {
	Code   int         `json:"code"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
	URL    string      `json:"url"`
}

func (r *Response) encode() ([]byte, error) {
	return stdjson.Marshal(cachedResponse{
		Code:   r.code,
		Header: r.header,
		Body:   r.body,
		URL:    r.url,
	})
}

func decodeResponse(data []byte) (*Response, error) {
	var c cachedResponse
	if err := stdjson.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &Response{code: c.Code, header: c.Header, body: c.Body, url: c.URL}, nil
}
