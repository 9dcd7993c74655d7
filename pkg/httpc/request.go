package httpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/litescript/oxviewer/pkg/json"
)

var (
	// ErrNoURL is returned by Execute when no URL was set.
	ErrNoURL = errors.New("httpc: request has no url")
	// ErrBodyTooLarge is returned by Execute when a response body exceeds
	// the client's maximum body size.
	ErrBodyTooLarge = errors.New("httpc: response body too large")
)

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json; charset=utf-8"
)

// Request is a single HTTP request under construction. It is not safe for
// concurrent use.
type Request struct {
	client      *Client
	method      string
	url         string
	header      http.Header
	body        []byte
	contentType string
}

// Get switches the request to GET and drops any body. GET is the default.
func (r *Request) Get() *Request {
	r.method = http.MethodGet
	r.body = nil
	r.contentType = ""
	return r
}

// PostForm switches the request to POST with a url-encoded form body.
func (r *Request) PostForm(form map[string]string) *Request {
	values := make(url.Values, len(form))
	for k, v := range form {
		values.Set(k, v)
	}
	r.method = http.MethodPost
	r.body = []byte(values.Encode())
	r.contentType = contentTypeForm
	return r
}

// PostJSON switches the request to POST with a JSON body.
func (r *Request) PostJSON(obj json.Object) *Request {
	r.method = http.MethodPost
	r.body = []byte(obj.String())
	r.contentType = contentTypeJSON
	return r
}

// URL sets the target URL.
func (r *Request) URL(rawURL string) *Request {
	r.url = rawURL
	return r
}

// Header sets a header, replacing all other values with the same name.
// Headers net/http manages itself, such as Host or Content-Length, may be
// ignored.
func (r *Request) Header(name, value string) *Request {
	r.header.Set(name, value)
	return r
}

// Execute sends the request and reads the whole response body. A non-2xx
// status is not an error.
func (r *Request) Execute(ctx context.Context) (*Response, error) {
	if r.url == "" {
		return nil, ErrNoURL
	}
	c := r.client

	cacheable := c.cache != nil && r.method == http.MethodGet
	if cacheable {
		if resp, ok := r.fromCache(ctx); ok {
			return resp, nil
		}
	}

	start := time.Now()
	httpResp, err := r.send(ctx)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("httpc: read body of %s: %w", r.url, err)
	}
	if int64(len(data)) > c.maxBodySize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, r.url, c.maxBodySize)
	}

	c.logger.Debug("HTTP request",
		zap.String("method", r.method),
		zap.String("url", r.url),
		zap.Int("code", httpResp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	resp := &Response{
		code:   httpResp.StatusCode,
		header: httpResp.Header,
		body:   data,
		url:    httpResp.Request.URL.String(),
	}

	if cacheable && resp.code == http.StatusOK {
		r.toCache(ctx, resp)
	}

	return resp, nil
}

// send waits for the rate limiter and performs the request. The caller
// closes the body.
func (r *Request) send(ctx context.Context) (*http.Response, error) {
	c := r.client

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("httpc: rate limit: %w", err)
		}
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("httpc: build request: %w", err)
	}
	for name, values := range r.header {
		req.Header[name] = append([]string(nil), values...)
	}
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpc: %s %s: %w", r.method, r.url, err)
	}
	return resp, nil
}

func (r *Request) cacheKey() string {
	return "httpc:" + r.url
}

func (r *Request) fromCache(ctx context.Context) (*Response, bool) {
	c := r.client
	data, ok, err := c.cache.Get(ctx, r.cacheKey())
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("url", r.url), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	resp, err := decodeResponse(data)
	if err != nil {
		c.logger.Warn("Discarding corrupt cache entry", zap.String("url", r.url), zap.Error(err))
		return nil, false
	}
	c.logger.Debug("HTTP cache hit", zap.String("url", r.url))
	return resp, true
}

func (r *Request) toCache(ctx context.Context, resp *Response) {
	c := r.client
	data, err := resp.encode()
	if err != nil {
		c.logger.Warn("Cache encode failed", zap.String("url", r.url), zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, r.cacheKey(), data, c.cacheTTL); err != nil {
		c.logger.Warn("Cache write failed", zap.String("url", r.url), zap.Error(err))
	}
}
