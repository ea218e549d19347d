package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/httputil"
	"github.com/easygithub/easygithub/pkg/observability"
)

// HeaderFunc returns headers computed per request, such as short-lived
// authorization tokens.
type HeaderFunc func(ctx context.Context) (map[string]string, error)

// Client provides shared HTTP functionality for API clients.
// It handles caching, retry logic, and common request headers.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	keyer     *cache.Keyer
	namespace string
	ttl       time.Duration
	headers   map[string]string
	dynamic   HeaderFunc
}

// NewClient creates a Client backed by c. Entries are keyed by
// [cache.Keyer.HTTPKey] under namespace and stored for ttl. Headers are
// applied to all requests made through this client. A nil cache disables
// caching.
func NewClient(c cache.Cache, namespace string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:      NewHTTPClient(),
		cache:     c,
		keyer:     cache.NewKeyer(),
		namespace: namespace,
		ttl:       ttl,
		headers:   headers,
	}
}

// SetKeyer replaces the keyer used for cache entries, typically with a
// scoped one so responses fetched with different credentials never mix.
func (c *Client) SetKeyer(k *cache.Keyer) {
	if k != nil {
		c.keyer = k
	}
}

type refreshKey struct{}

// WithRefresh returns a context under which Cached skips cache reads, so
// every response is fetched again and the cache is overwritten.
func WithRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

// IsRefresh reports whether ctx was created by [WithRefresh].
func IsRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// SetHeaderFunc installs a function whose headers are merged into every request
// after the static defaults.
func (c *Client) SetHeaderFunc(fn HeaderFunc) { c.dynamic = fn }

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true or ctx carries [WithRefresh], the cache read is skipped
// but the result is still stored. The fetch function should populate v; on
// success, v is stored in the cache.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.keyer.HTTPKey(c.namespace, key)
	hooks := observability.Cache()
	if !refresh && !IsRefresh(ctx) {
		data, ok, err := c.cache.Get(ctx, key)
		if err == nil && ok && json.Unmarshal(data, v) == nil {
			hooks.OnCacheHit(ctx, "http")
			return nil
		}
		hooks.OnCacheMiss(ctx, "http")
	}
	if err := httputil.RetryWithBackoff(ctx, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			hooks.OnCacheSet(ctx, "http", len(data))
		}
	}
	return nil
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.doRequest(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// GetText performs an HTTP GET request and returns the response body as a string.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	return string(data), err
}

// Post sends an HTTP POST with an optional JSON body and decodes the
// response into v when v is non-nil.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, in io.Reader, v any) error {
	body, err := c.doRequest(ctx, http.MethodPost, url, headers, in)
	if err != nil {
		return err
	}
	defer body.Close()
	if v == nil {
		return nil
	}
	return json.NewDecoder(body).Decode(v)
}

func (c *Client) doRequest(ctx context.Context, method, rawURL string, headers map[string]string, in io.Reader) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, in)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.dynamic != nil {
		extra, err := c.dynamic(ctx)
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			req.Header.Set(k, v)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	host, path := hostPath(rawURL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, method, host, path, err)
		return nil, &httputil.RetryableError{Err: fmt.Errorf("%w: %v", ErrNetwork, err)}
	}
	hooks.OnResponse(ctx, method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode, resp.Header); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int, h http.Header) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, code)
	case (code == http.StatusForbidden || code == http.StatusTooManyRequests) && h.Get("X-RateLimit-Remaining") == "0":
		return fmt.Errorf("%w: status %d", ErrRateLimited, code)
	case code >= 500:
		return &httputil.RetryableError{Err: fmt.Errorf("%w: status %d", ErrNetwork, code)}
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func hostPath(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", raw
	}
	return u.Host, u.Path
}
