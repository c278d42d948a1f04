package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/integrations/github"
	"github.com/matzehuels/stackaudit/pkg/integrations/gitlab"
	"github.com/matzehuels/stackaudit/pkg/integrations/pypi"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

var pypiProjects = map[string]string{
	"/flask/2.3.3/json": `{
		"info": {
			"name": "Flask", "version": "2.3.3",
			"summary": "A simple framework",
			"license": "BSD-3-Clause",
			"classifiers": ["License :: OSI Approved :: BSD License"],
			"requires_dist": ["Werkzeug>=2.3.7", "asgiref>=3.2; extra == \"async\""],
			"project_urls": {"Source": "https://github.com/pallets/flask/"},
			"author": "Armin Ronacher"
		},
		"urls": [{"upload_time_iso_8601": "2023-08-21T19:52:33.000000Z"}]
	}`,
	"/flask/json": `{"info": {"name": "Flask", "version": "3.0.0"}, "urls": []}`,
	"/classy/1.0/json": `{
		"info": {
			"name": "classy", "version": "1.0",
			"classifiers": ["Programming Language :: Python", "License :: OSI Approved :: Apache Software License"]
		},
		"urls": []
	}`,
	"/mixed/1.0/json": `{
		"info": {
			"name": "mixed", "version": "1.0",
			"license": "MIT",
			"classifiers": ["License :: OSI Approved :: Apache Software License"]
		},
		"urls": []
	}`,
	"/hosted/1.0/json": `{
		"info": {
			"name": "hosted", "version": "1.0",
			"license": "",
			"home_page": "https://github.com/acme/hosted"
		},
		"urls": []
	}`,
	"/gitlabbed/1.0/json": `{
		"info": {
			"name": "gitlabbed", "version": "1.0",
			"project_urls": {"Repository": "https://gitlab.com/group/proj"}
		},
		"urls": []
	}`,
	"/custom/1.0/json": `{
		"info": {
			"name": "custom", "version": "1.0",
			"license": "Copyright Acme Corp\nAll rights reserved",
			"project_urls": {"Source": "https://github.com/acme/limited"}
		},
		"urls": []
	}`,
	"/texty/1.0/json": `{
		"info": {
			"name": "texty", "version": "1.0",
			"license": "MIT",
			"summary": "see https://github.com/acme/texty-long-name for docs",
			"description": "mirror at https://github.com/acme/texty"
		},
		"urls": []
	}`,
}

func newPyPI(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pypiProjects[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newGitHub(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/repos/acme/hosted/license":
			w.Write([]byte(`{"license":{"key":"mit","name":"MIT License","spdx_id":"MIT"}}`))
		case "/repos/acme/limited/license":
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"API rate limit exceeded"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newGitLab(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.EscapedPath() != "/api/v4/projects/group%2Fproj" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":1,"path_with_namespace":"group/proj","license":{"key":"apache-2.0","name":"Apache License 2.0"}}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func fastRetry() integrations.Option {
	return integrations.WithRetry(retry.New(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}, nil))
}

func testEnricher(t *testing.T, ghHits *atomic.Int32) *Enricher {
	t.Helper()
	if ghHits == nil {
		ghHits = new(atomic.Int32)
	}
	c := cache.NewMemoryCache()
	p := pypi.NewClient(c, time.Hour, newPyPI(t).URL, fastRetry())
	gh, err := github.NewClient(c, time.Hour, "", newGitHub(t, ghHits).URL, fastRetry())
	if err != nil {
		t.Fatal(err)
	}
	gl, err := gitlab.NewClient(c, time.Hour, "", newGitLab(t).URL, fastRetry())
	if err != nil {
		t.Fatal(err)
	}
	return NewEnricher(p, WithGitHub(gh), WithGitLab(gl))
}

func pkg(name, version string) graph.Package {
	return graph.Package{ID: graph.NewPackageID(name, version)}
}

func TestEnrich_LicenseCascade(t *testing.T) {
	tests := []struct {
		name       string
		pkg        graph.Package
		wantName   string
		wantType   string
		wantSource string
		recognized bool
	}{
		{"license field", pkg("flask", "2.3.3"), "BSD", "BSD-3-Clause", graph.LicenseSourceField, true},
		{"classifier", pkg("classy", "1.0"), "Apache", "Apache-2.0", graph.LicenseSourceClassifier, true},
		{"field beats conflicting classifier", pkg("mixed", "1.0"), "MIT", "MIT", graph.LicenseSourceField, true},
		{"github fallback", pkg("hosted", "1.0"), "mit", "MIT", graph.LicenseSourceGitHub, true},
		{"gitlab fallback", pkg("gitlabbed", "1.0"), "Apache", "Apache-2.0", graph.LicenseSourceGitLab, true},
		{"raw kept", pkg("custom", "1.0"), "Copyright Acme Corp", "", graph.LicenseSourceRaw, false},
	}

	e := testEnricher(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Enrich(context.Background(), tt.pkg)
			if err != nil {
				t.Fatalf("Enrich failed: %v", err)
			}
			if got.License == nil {
				t.Fatal("expected a license")
			}
			if got.License.Name != tt.wantName || got.License.Type != tt.wantType {
				t.Errorf("license = %q/%q, want %q/%q", got.License.Name, got.License.Type, tt.wantName, tt.wantType)
			}
			if got.License.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", got.License.Source, tt.wantSource)
			}
			if got.License.Recognized != tt.recognized {
				t.Errorf("recognized = %v, want %v", got.License.Recognized, tt.recognized)
			}
		})
	}
}

func TestEnrich_CopiesReleaseData(t *testing.T) {
	e := testEnricher(t, nil)
	in := pkg("flask", "2.3.3")
	in.Dependencies = []graph.DependencyInfo{{Name: "werkzeug", Version: "2.3.7"}}

	got, err := e.Enrich(context.Background(), in)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if got.ID != in.ID {
		t.Errorf("ID = %v, want %v", got.ID, in.ID)
	}
	if got.Summary != "A simple framework" || got.Author != "Armin Ronacher" {
		t.Errorf("summary/author = %q/%q", got.Summary, got.Author)
	}
	if got.UploadTime == nil || got.UploadTime.Year() != 2023 {
		t.Errorf("upload time = %v", got.UploadTime)
	}
	if len(got.RequiresDist) != 2 {
		t.Errorf("requires_dist = %v", got.RequiresDist)
	}
	if got.RepoURL != "https://github.com/pallets/flask/" {
		t.Errorf("repo URL = %q", got.RepoURL)
	}
	if len(got.Dependencies) != 1 {
		t.Errorf("dependencies should be preserved, got %v", got.Dependencies)
	}
	if in.Summary != "" || in.License != nil {
		t.Error("input package must not be mutated")
	}
}

func TestEnrich_SkipsRepositoryWhenRegistryRecognized(t *testing.T) {
	var hits atomic.Int32
	e := testEnricher(t, &hits)

	if _, err := e.Enrich(context.Background(), pkg("flask", "2.3.3")); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("github hits = %d, want 0", hits.Load())
	}
}

func TestEnrich_RateLimitedRepositoryIsNonFatal(t *testing.T) {
	var hits atomic.Int32
	e := testEnricher(t, &hits)

	got, err := e.Enrich(context.Background(), pkg("custom", "1.0"))
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("github hits = %d, want 1 (rate limits are not retried)", hits.Load())
	}
	if got.RepoLicense != "" {
		t.Errorf("repo license = %q, want empty", got.RepoLicense)
	}
}

func TestEnrich_RepositoryLicenseRecorded(t *testing.T) {
	e := testEnricher(t, nil)
	got, err := e.Enrich(context.Background(), pkg("hosted", "1.0"))
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if got.RepoLicense != "mit" {
		t.Errorf("repo license = %q, want mit", got.RepoLicense)
	}
	if got.RepoURL != "https://github.com/acme/hosted" {
		t.Errorf("repo URL = %q", got.RepoURL)
	}
}

func TestEnrich_MissingPackage(t *testing.T) {
	e := testEnricher(t, nil)
	in := pkg("ghost", "0.1")

	got, err := e.Enrich(context.Background(), in)
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if got.ID != in.ID || got.License != nil {
		t.Errorf("failed enrichment should return the input, got %+v", got)
	}
}

func TestEnrich_VersionFallback(t *testing.T) {
	e := testEnricher(t, nil)
	got, err := e.Enrich(context.Background(), pkg("flask", "9.9.9"))
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if got.ID.Version != "9.9.9" {
		t.Errorf("version = %q, the requested version must be kept", got.ID.Version)
	}
}

func TestEnricher_LatestVersion(t *testing.T) {
	e := testEnricher(t, nil)
	v, err := e.LatestVersion(context.Background(), "Flask")
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	if v != "3.0.0" {
		t.Errorf("latest = %q, want 3.0.0", v)
	}
}

func TestProjectURL(t *testing.T) {
	tests := []struct {
		name     string
		urls     map[string]string
		homepage string
		text     string
		want     string
	}{
		{"project url", map[string]string{"Docs": "https://docs.example.com", "Source": "https://github.com/a/b"}, "https://github.com/c/d", "", "https://github.com/a/b"},
		{"homepage", map[string]string{"Docs": "https://docs.example.com"}, "https://github.com/c/d", "", "https://github.com/c/d"},
		{"shortest text match", nil, "https://example.com", "see https://github.com/acme/texty-long-name and https://github.com/acme/texty", "https://github.com/acme/texty"},
		{"none", nil, "", "no links here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProjectURL(tt.urls, tt.homepage, tt.text); got != tt.want {
				t.Errorf("ProjectURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnrich_ProjectURLFromText(t *testing.T) {
	e := testEnricher(t, nil)
	got, err := e.Enrich(context.Background(), pkg("texty", "1.0"))
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if got.RepoURL != "https://github.com/acme/texty" {
		t.Errorf("repo URL = %q", got.RepoURL)
	}
}
