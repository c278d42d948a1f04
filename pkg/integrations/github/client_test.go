package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

func testClient(t *testing.T, serverURL, token string) *Client {
	t.Helper()
	fast := retry.New(retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}, nil)
	c, err := NewClient(cache.NewMemoryCache(), time.Hour, token, serverURL, integrations.WithRetry(fast))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClient_License(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/pallets/flask/license":
			w.Write([]byte(`{"name":"LICENSE.txt","license":{"key":"bsd-3-clause","name":"BSD 3-Clause \"New\" or \"Revised\" License","spdx_id":"BSD-3-Clause"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL, "secret")

	lic, err := c.License(context.Background(), "pallets", "flask", false)
	if err != nil {
		t.Fatalf("License failed: %v", err)
	}
	if lic.SPDXID != "BSD-3-Clause" {
		t.Errorf("SPDXID = %q, want BSD-3-Clause", lic.SPDXID)
	}
	if lic.Identifier() != "bsd-3-clause" {
		t.Errorf("Identifier = %q, want bsd-3-clause", lic.Identifier())
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", auth)
	}
}

func TestClient_LicenseNotFound(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	_, err := testClient(t, server.URL, "").License(context.Background(), "owner", "repo", false)
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if hits.Load() != 1 {
		t.Errorf("404 requested %d times, want 1", hits.Load())
	}
}

func TestClient_LicenseRateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"API rate limit exceeded for 127.0.0.1."}`))
	}))
	defer server.Close()

	_, err := testClient(t, server.URL, "").License(context.Background(), "owner", "repo", false)
	if !integrations.IsRateLimited(err) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if hits.Load() != 1 {
		t.Errorf("rate limited request sent %d times, want 1", hits.Load())
	}
}

func TestClient_LicenseServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"message":"bad gateway"}`))
			return
		}
		w.Write([]byte(`{"license":{"key":"mit","name":"MIT License","spdx_id":"MIT"}}`))
	}))
	defer server.Close()

	lic, err := testClient(t, server.URL, "").License(context.Background(), "owner", "repo", false)
	if err != nil {
		t.Fatalf("License failed: %v", err)
	}
	if lic.Key != "mit" {
		t.Errorf("Key = %q, want mit", lic.Key)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestClient_LicenseRejectsBadRef(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:1", "")
	if _, err := c.License(context.Background(), "../etc", "passwd", false); err == nil {
		t.Error("expected validation error")
	}
}

func TestLicenseIdentifier(t *testing.T) {
	tests := []struct {
		lic  License
		want string
	}{
		{License{Key: "mit", SPDXID: "MIT", Name: "MIT License"}, "mit"},
		{License{Key: "other", SPDXID: "NOASSERTION", Name: "Custom License"}, "Custom License"},
		{License{SPDXID: "Apache-2.0"}, "Apache-2.0"},
		{License{Key: "other", SPDXID: "NOASSERTION"}, ""},
		{License{}, ""},
	}
	for _, tt := range tests {
		if got := tt.lic.Identifier(); got != tt.want {
			t.Errorf("%+v.Identifier() = %q, want %q", tt.lic, got, tt.want)
		}
	}
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		urls      map[string]string
		home      string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{
			urls:      map[string]string{"Source": "https://github.com/foo/bar"},
			wantOwner: "foo",
			wantRepo:  "bar",
			wantOK:    true,
		},
		{
			urls:      map[string]string{"Code": "https://github.com/foo/bar.git"},
			wantOwner: "foo",
			wantRepo:  "bar",
			wantOK:    true,
		},
		{
			home:      "http://github.com/baz/qux",
			wantOwner: "baz",
			wantRepo:  "qux",
			wantOK:    true,
		},
		{
			urls:   map[string]string{"Homepage": "https://google.com"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		owner, repo, ok := ExtractURL(tt.urls, tt.home)
		if ok != tt.wantOK {
			t.Errorf("got ok=%v, want %v", ok, tt.wantOK)
		}
		if ok && (owner != tt.wantOwner || repo != tt.wantRepo) {
			t.Errorf("got %s/%s, want %s/%s", owner, repo, tt.wantOwner, tt.wantRepo)
		}
	}
}

func TestParseRepoURL(t *testing.T) {
	owner, repo, ok := ParseRepoURL("https://github.com/psf/requests/tree/main")
	if !ok || owner != "psf" || repo != "requests" {
		t.Errorf("ParseRepoURL = %q, %q, %v", owner, repo, ok)
	}
	if _, _, ok := ParseRepoURL("https://gitlab.com/a/b"); ok {
		t.Error("non-GitHub URL should not parse")
	}
}

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		ref     string
		wantErr bool
	}{
		{"psf/requests", false},
		{"pallets/flask.git", false},
		{"norepo", true},
		{"-bad/repo", true},
		{"owner/", true},
		{"owner/..", true},
		{"owner/re po", true},
	}
	for _, tt := range tests {
		_, _, err := ParseRepoRef(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRepoRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
		}
	}
}
