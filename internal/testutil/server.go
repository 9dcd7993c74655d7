// Package testutil provides an HTTP server for exercising clients in tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RecordedRequest is what the server saw.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// Server records every request and answers it with:
//   - the status code taken from the request's "Code" header (200 if absent)
//   - every request header echoed back as "Request-<name>"
//   - the request URL as body
type Server struct {
	*httptest.Server
	requests chan RecordedRequest
}

// NewServer starts a server. It is closed by t.Cleanup.
func NewServer(t testing.TB) *Server {
	s := &Server{requests: make(chan RecordedRequest, 64)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	url := "http://" + r.Host + r.URL.RequestURI()

	s.requests <- RecordedRequest{
		Method: r.Method,
		URL:    url,
		Header: r.Header.Clone(),
		Body:   string(body),
	}

	for name, values := range r.Header {
		for _, v := range values {
			w.Header().Add("Request-"+name, v)
		}
	}

	code := http.StatusOK
	if c := r.Header.Get("Code"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			code = n
		}
	}
	w.WriteHeader(code)
	_, _ = io.WriteString(w, url)
}

// TakeRequest waits for the next request.
func (s *Server) TakeRequest(t testing.TB) RecordedRequest {
	t.Helper()
	select {
	case req := <-s.requests:
		return req
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for request")
		return RecordedRequest{}
	}
}

// AssertRequest takes the next request and checks its method, URL, the given
// headers and the body. A nil body asserts that the request had none.
func (s *Server) AssertRequest(t testing.TB, method, url string, headers map[string]string, body *string) {
	t.Helper()
	req := s.TakeRequest(t)

	assert.Equal(t, method, req.Method, "Request method")
	assert.Equal(t, url, req.URL, "Request url")
	for name, value := range headers {
		assert.Equal(t, value, req.Header.Get(name), "Request header, name = %s", name)
	}
	if body == nil {
		assert.Empty(t, req.Body, "Contains body, but assert body is nil")
	} else {
		assert.Equal(t, *body, req.Body, "Request body")
	}
}
