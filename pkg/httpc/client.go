// Package httpc is the HTTP client handed to source plugins. Requests are
// built fluently and executed with net/http; cookies live in a jar shared by
// every request of a client.
package httpc

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when a request doesn't set its own.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 32 << 20
	defaultCacheTTL    = 10 * time.Minute
)

// Cache stores raw GET responses. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client executes requests and owns the cookie jar.
type Client struct {
	http        *http.Client
	jar         http.CookieJar
	userAgent   string
	limiter     *rate.Limiter
	cache       Cache
	cacheTTL    time.Duration
	maxBodySize int64
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the overall timeout of a single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithUserAgent replaces DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithRateLimit limits the client to perSecond requests with the given
// burst. A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithCache caches successful GET responses for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithMaxBodySize caps the response body Execute accepts. A larger body is
// ErrBodyTooLarge and is not cached.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.maxBodySize = n
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// NewClient creates a client with its own cookie jar.
func NewClient(opts ...Option) *Client {
	// cookiejar.New only fails on a bad PublicSuffixList, which this isn't.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	c := &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
		jar:         jar,
		userAgent:   DefaultUserAgent,
		cacheTTL:    defaultCacheTTL,
		maxBodySize: defaultMaxBodySize,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequest creates a GET request with no URL.
func (c *Client) NewRequest() *Request {
	return &Request{
		client: c,
		method: http.MethodGet,
		header: make(http.Header),
	}
}

// AddCookie stores a cookie for domain and path, replacing one with the
// same name, domain and path.
func (c *Client) AddCookie(name, value, domain, path string) {
	c.jar.SetCookies(cookieURL(domain, path), []*http.Cookie{{
		Name:   name,
		Value:  value,
		Domain: domain,
		Path:   path,
	}})
}

// RemoveCookie drops the cookie with the given name, domain and path.
func (c *Client) RemoveCookie(name, domain, path string) {
	c.jar.SetCookies(cookieURL(domain, path), []*http.Cookie{{
		Name:   name,
		Domain: domain,
		Path:   path,
		MaxAge: -1,
	}})
}

// Cookies returns the cookies that would be sent to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

func cookieURL(domain, path string) *url.URL {
	if path == "" {
		path = "/"
	}
	return &url.URL{
		Scheme: "http",
		Host:   strings.TrimPrefix(domain, "."),
		Path:   path,
	}
}
