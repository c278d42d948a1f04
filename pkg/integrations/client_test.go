package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackaudit/pkg/cache"
	apperrors "github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

func fastRetry() *retry.Executor {
	return retry.New(retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2,
	}, nil)
}

func TestNewClient(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()

	headers := map[string]string{"Authorization": "Bearer token"}
	client := NewClient(c, "test", time.Hour, headers)

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.http == nil {
		t.Error("NewClient() http client is nil")
	}
	if client.cache != c {
		t.Error("NewClient() cache not set correctly")
	}
	if client.headers["Authorization"] != "Bearer token" {
		t.Error("NewClient() headers not set correctly")
	}
	if client.retry == nil {
		t.Error("NewClient() retry executor is nil")
	}
}

func TestNewClientNilCache(t *testing.T) {
	client := NewClient(nil, "test", time.Hour, nil)
	if client.cache == nil {
		t.Fatal("NewClient() should fall back to a null cache")
	}
	if client.headers != nil {
		t.Error("NewClient() should allow nil headers")
	}
}

func TestClientGet(t *testing.T) {
	type response struct {
		Message string `json:"message"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(response{Message: "hello"})
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil, WithHTTPClient(server.Client()))

	var resp response
	if err := client.Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Message != "hello" {
		t.Errorf("Get() message = %q, want %q", resp.Message, "hello")
	}
}

func TestClientGetWithHeadersOverridesDefaults(t *testing.T) {
	var custom, override, def string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		custom = r.Header.Get("X-Custom")
		override = r.Header.Get("X-Override")
		def = r.Header.Get("X-Default")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour,
		map[string]string{"X-Default": "default", "X-Override": "default"},
		WithHTTPClient(server.Client()))

	var resp map[string]string
	err := client.GetWithHeaders(context.Background(), server.URL,
		map[string]string{"X-Custom": "custom", "X-Override": "overridden"}, &resp)
	if err != nil {
		t.Fatalf("GetWithHeaders() error: %v", err)
	}
	if custom != "custom" {
		t.Errorf("custom header = %q, want %q", custom, "custom")
	}
	if override != "overridden" {
		t.Errorf("override header = %q, want %q", override, "overridden")
	}
	if def != "default" {
		t.Errorf("default header = %q, want %q", def, "default")
	}
}

func TestClientGetText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text response"))
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil, WithHTTPClient(server.Client()))

	text, err := client.GetText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetText() error: %v", err)
	}
	if text != "plain text response" {
		t.Errorf("GetText() = %q, want %q", text, "plain text response")
	}
}

func TestClientPostJSON(t *testing.T) {
	type query struct {
		Name string `json:"name"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var q query
		json.NewDecoder(r.Body).Decode(&q)
		json.NewEncoder(w).Encode(map[string]string{"echo": q.Name})
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil, WithHTTPClient(server.Client()))

	var resp map[string]string
	if err := client.PostJSON(context.Background(), server.URL, query{Name: "jinja2"}, &resp); err != nil {
		t.Fatalf("PostJSON() error: %v", err)
	}
	if resp["echo"] != "jinja2" {
		t.Errorf("echo = %q, want jinja2", resp["echo"])
	}
}

func TestClientGet404(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil, WithHTTPClient(server.Client()))

	var resp map[string]string
	err := client.Get(context.Background(), server.URL, &resp)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if retry.IsRetryable(err) {
		t.Error("404 should not be retryable")
	}
}

func TestClientGet500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil, WithHTTPClient(server.Client()))

	var resp map[string]string
	err := client.Get(context.Background(), server.URL, &resp)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Get() error = %v, want ErrNetwork", err)
	}
	if !retry.IsRetryable(err) {
		t.Errorf("Get() error should be retryable, got %T", err)
	}
}

func TestClientGetRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil, WithHTTPClient(server.Client()))

	var resp map[string]string
	err := client.Get(context.Background(), server.URL, &resp)
	if !IsRateLimited(err) {
		t.Fatalf("Get() error = %v, want ErrRateLimited", err)
	}
	var rl *apperrors.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("error should carry RateLimitedError, got %T", err)
	}
	if rl.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", rl.RetryAfter)
	}
	if retry.IsRetryable(err) {
		t.Error("rate limit should not be retryable")
	}
}

func TestClientCached(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()

	client := NewClient(c, "test", time.Hour, nil)

	type testData struct {
		Value string `json:"value"`
	}

	fetchCount := 0
	fetch := func(v *testData) func(context.Context) error {
		return func(context.Context) error {
			fetchCount++
			*v = testData{Value: "fetched"}
			return nil
		}
	}

	var first testData
	if err := client.Cached(context.Background(), "key", false, &first, fetch(&first)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	var second testData
	if err := client.Cached(context.Background(), "key", false, &second, fetch(&second)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}

	if fetchCount != 1 {
		t.Errorf("fetch count = %d, want 1", fetchCount)
	}
	if second.Value != "fetched" {
		t.Errorf("cached value = %q, want fetched", second.Value)
	}
}

func TestClientCachedRefresh(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()

	client := NewClient(c, "test", time.Hour, nil)

	fetchCount := 0
	var value string
	fetch := func(context.Context) error {
		fetchCount++
		value = "fetched"
		return nil
	}

	for range 2 {
		if err := client.Cached(context.Background(), "test-key", true, &value, fetch); err != nil {
			t.Fatalf("Cached() error: %v", err)
		}
	}
	if fetchCount != 2 {
		t.Errorf("fetch count = %d, want 2", fetchCount)
	}
}

func TestClientCachedRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil,
		WithHTTPClient(server.Client()), WithRetry(fastRetry()))

	var resp map[string]string
	err := client.Cached(context.Background(), "flaky", false, &resp, func(ctx context.Context) error {
		return client.Get(ctx, server.URL, &resp)
	})
	if err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClientCachedFetchError(t *testing.T) {
	client := NewClient(cache.NewMemoryCache(), "test", time.Hour, nil, WithRetry(fastRetry()))

	fetchCount := 0
	var value string
	err := client.Cached(context.Background(), "missing", false, &value, func(context.Context) error {
		fetchCount++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Cached() error = %v, want ErrNotFound", err)
	}
	if fetchCount != 1 {
		t.Errorf("non-retryable error fetched %d times, want 1", fetchCount)
	}
}

func TestClientRateLimiterHonoursContext(t *testing.T) {
	client := NewClient(nil, "test", time.Hour, nil, WithRateLimit(0.001, 1))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer server.Close()
	client.http = server.Client()

	var v map[string]any
	if err := client.Get(context.Background(), server.URL, &v); err != nil {
		t.Fatalf("first request should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := client.Get(ctx, server.URL, &v); err == nil {
		t.Error("second request should fail waiting for the limiter")
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantErr    bool
		wantType   error
		isRetryErr bool
	}{
		{name: "200 OK", code: 200},
		{name: "201 Created", code: 201},
		{name: "404 Not Found", code: 404, wantErr: true, wantType: ErrNotFound},
		{name: "429 Too Many Requests", code: 429, wantErr: true, wantType: ErrRateLimited},
		{name: "500 Internal Server Error", code: 500, wantErr: true, wantType: ErrNetwork, isRetryErr: true},
		{name: "502 Bad Gateway", code: 502, wantErr: true, isRetryErr: true},
		{name: "503 Service Unavailable", code: 503, wantErr: true, isRetryErr: true},
		{name: "400 Bad Request", code: 400, wantErr: true, wantType: ErrNetwork},
		{name: "403 Forbidden", code: 403, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStatus(tt.code)

			if !tt.wantErr {
				if err != nil {
					t.Errorf("checkStatus() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("checkStatus() should return error")
			}
			if tt.wantType != nil && !errors.Is(err, tt.wantType) {
				t.Errorf("checkStatus() error = %v, want %v", err, tt.wantType)
			}
			if got := retry.IsRetryable(err); got != tt.isRetryErr {
				t.Errorf("retryable = %v, want %v", got, tt.isRetryErr)
			}
		})
	}
}

func TestCheckResponseForbiddenQuota(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusForbidden, Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "0")
	resp.Header.Set("X-RateLimit-Reset", "0")
	if err := CheckResponse(resp); !IsRateLimited(err) {
		t.Errorf("exhausted quota = %v, want ErrRateLimited", err)
	}

	resp.Header.Set("X-RateLimit-Remaining", "12")
	if err := CheckResponse(resp); IsRateLimited(err) {
		t.Errorf("plain 403 should not be a rate limit, got %v", err)
	}
}

func TestNormalizePkgName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "Package", "package"},
		{"underscore to dash", "my_package", "my-package"},
		{"dot to dash", "zope.interface", "zope-interface"},
		{"trim spaces", "  package  ", "package"},
		{"combined", "  My_Package  ", "my-package"},
		{"empty", "", ""},
		{"already normalized", "my-package", "my-package"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePkgName(tt.input); got != tt.want {
				t.Errorf("NormalizePkgName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"https url", "https://github.com/user/repo", "https://github.com/user/repo"},
		{"with .git suffix", "https://github.com/user/repo.git", "https://github.com/user/repo"},
		{"trailing slash", "https://github.com/user/repo/", "https://github.com/user/repo"},
		{"git@ to https", "git@github.com:user/repo", "https://github.com/user/repo"},
		{"gitlab ssh", "git@gitlab.com:group/proj.git", "https://gitlab.com/group/proj"},
		{"git+ prefix", "git+https://github.com/user/repo", "https://github.com/user/repo"},
		{"combined", "git+git@github.com:user/repo.git", "https://github.com/user/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRepoURL(tt.input); got != tt.want {
				t.Errorf("NormalizeRepoURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewHTTPClientWithTimeout(t *testing.T) {
	if got := NewHTTPClient().Timeout; got != httpTimeout {
		t.Errorf("Timeout = %v, want %v", got, httpTimeout)
	}
	if got := NewHTTPClientWithTimeout(0).Timeout; got != httpTimeout {
		t.Errorf("zero timeout = %v, want default", got)
	}
	if got := NewHTTPClientWithTimeout(3 * time.Second).Timeout; got != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", got)
	}
}
