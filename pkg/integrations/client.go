package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/matzehuels/stackaudit/pkg/cache"
	apperrors "github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/observability"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

// Client provides shared HTTP functionality for all API clients.
// It handles caching, retry logic, rate limiting and common request headers.
//
// All methods are safe for concurrent use.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	keyer     cache.Keyer
	namespace string
	ttl       time.Duration
	headers   map[string]string
	retry     *retry.Executor
	limiter   *rate.Limiter
	logger    *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRetry sets the executor used by [Client.Cached] and [Client.Retry].
func WithRetry(e *retry.Executor) Option {
	return func(c *Client) {
		if e != nil {
			c.retry = e
		}
	}
}

// WithRateLimit caps outgoing requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the logger for rate-limit and cache warnings.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithKeyer sets the cache keyer (e.g. a scoped keyer).
func WithKeyer(k cache.Keyer) Option {
	return func(c *Client) {
		if k != nil {
			c.keyer = k
		}
	}
}

// NewClient creates a Client with the given cache and default headers.
// Headers are applied to all requests made through this client.
// Pass nil for headers if no default headers are needed.
// The namespace separates this client's cache entries from other clients.
func NewClient(c cache.Cache, namespace string, ttl time.Duration, headers map[string]string, opts ...Option) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	client := &Client{
		http:      NewHTTPClient(),
		cache:     c,
		keyer:     cache.NewDefaultKeyer(),
		namespace: namespace,
		ttl:       ttl,
		headers:   headers,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.retry == nil {
		client.retry = retry.New(retry.DefaultPolicy(), client.logger)
	}
	return client
}

// Logger returns the client's logger.
func (c *Client) Logger() *log.Logger { return c.logger }

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; on success, v is stored in the cache.
// Fetch is retried for transient failures only.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func(context.Context) error) error {
	return c.CachedAt(ctx, c.keyer.HTTPKey(c.namespace, key), c.ttl, refresh, v, fetch)
}

// CachedAt is [Client.Cached] with a caller-built cache key and TTL, for
// entries that live under another [cache.Keyer] namespace.
func (c *Client) CachedAt(ctx context.Context, cacheKey string, ttl time.Duration, refresh bool, v any, fetch func(context.Context) error) error {
	if !refresh {
		if ok, err := cache.GetJSON(ctx, c.cache, cacheKey, v); ok {
			return nil
		} else if err != nil {
			c.logger.Debug("cache read failed", "key", cacheKey, "error", err)
		}
	}
	if err := c.retry.Do(ctx, c.namespace+" "+cacheKey, fetch); err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, c.cache, cacheKey, v, ttl); err != nil {
		c.logger.Debug("cache write failed", "key", cacheKey, "error", err)
	}
	return nil
}

// Keyer returns the keyer used to build cache keys.
func (c *Client) Keyer() cache.Keyer { return c.keyer }

// Cache returns the backing cache.
func (c *Client) Cache() cache.Cache { return c.cache }

// Retry runs fn through the client's retry executor without caching.
func (c *Client) Retry(ctx context.Context, op string, fn func(context.Context) error) error {
	return c.retry.Do(ctx, op, fn)
}

// Get performs an HTTP GET request and JSON-decodes the response into v.
// It uses the client's default headers. Retries happen in [Client.Cached].
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.doRequest(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	return decode(body, v)
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

// PostJSON sends in as a JSON body and decodes the JSON response into v.
func (c *Client) PostJSON(ctx context.Context, url string, in, v any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.doRequest(ctx, http.MethodPost, url, payload,
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	defer body.Close()
	return decode(body, v)
}

func decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte, headers map[string]string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, retry.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	hooks.OnResponse(ctx, method, host, path, resp.StatusCode, time.Since(start))

	if err := CheckResponse(resp); err != nil {
		resp.Body.Close()
		if IsRateLimited(err) {
			c.logger.Warn("rate limited", "host", host, "path", path,
				"remaining", resp.Header.Get("X-RateLimit-Remaining"),
				"reset", resp.Header.Get("X-RateLimit-Reset"))
		}
		return nil, err
	}
	return resp.Body, nil
}

// CheckResponse classifies a response. Rate limits are checked before the
// generic status mapping because GitHub reports them as 403.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests ||
		(resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0") {
		return rateLimitError(resp.Header)
	}
	return checkStatus(resp.StatusCode)
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, code)
	case code >= 500:
		return retry.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func rateLimitError(h http.Header) error {
	detail := &apperrors.RateLimitedError{}
	if s := h.Get("Retry-After"); s != "" {
		detail.RetryAfter, _ = strconv.Atoi(s)
	} else if s := h.Get("X-RateLimit-Reset"); s != "" {
		if reset, err := strconv.ParseInt(s, 10, 64); err == nil {
			detail.RetryAfter = max(int(time.Until(time.Unix(reset, 0)).Seconds()), 0)
		}
	}
	return fmt.Errorf("%w: %w", ErrRateLimited, detail)
}
