package python

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/stackaudit/pkg/approval"
	"github.com/matzehuels/stackaudit/pkg/cache"
	"github.com/matzehuels/stackaudit/pkg/clock"
	"github.com/matzehuels/stackaudit/pkg/deps"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/integrations"
	"github.com/matzehuels/stackaudit/pkg/integrations/pypi"
	"github.com/matzehuels/stackaudit/pkg/license"
	"github.com/matzehuels/stackaudit/pkg/retry"
	"github.com/matzehuels/stackaudit/pkg/vuln"
)

// fakeIndex maps project → version → requires_dist; latest names each
// project's current release.
type fakeIndex struct {
	releases map[string]map[string][]string
	latest   map[string]string
}

var index = fakeIndex{
	releases: map[string]map[string][]string{
		"app": {"1.0": {"lib-a>=1.0", "lib_b (<2)", "extra-only; extra == \"dev\"", "missing-dep"}},
		"lib-a": {
			"1.0":    {},
			"1.5":    {"lib-c"},
			"2.0rc1": {},
		},
		"lib-b": {"1.0": {}, "2.0": {}},
		"lib-c": {"1.0": {"app>=0.1"}},
	},
	latest: map[string]string{"app": "1.0", "lib-a": "1.5", "lib-b": "2.0", "lib-c": "1.0"},
}

func (f fakeIndex) info(name, version string) map[string]any {
	return map[string]any{
		"name":          name,
		"version":       version,
		"requires_dist": f.releases[name][version],
	}
}

func newIndexServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		name := parts[0]
		versions, ok := index.releases[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		switch len(parts) {
		case 2:
			releases := make(map[string][]map[string]any)
			for v := range versions {
				releases[v] = []map[string]any{{"upload_time": "2024-01-01T00:00:00"}}
			}
			body = map[string]any{"info": index.info(name, index.latest[name]), "releases": releases}
		case 3:
			if _, ok := versions[parts[1]]; !ok {
				http.NotFound(w, r)
				return
			}
			body = map[string]any{"info": index.info(name, parts[1])}
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func testBackend(t *testing.T, hits *atomic.Int32, opts ...Option) *PyPIBackend {
	t.Helper()
	fast := retry.New(retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}, nil)
	c := pypi.NewClient(cache.NewMemoryCache(), time.Hour, newIndexServer(t, hits).URL, integrations.WithRetry(fast))
	return NewPyPIBackend(c, opts...)
}

func mustSpec(t *testing.T, s string) deps.Spec {
	t.Helper()
	spec, err := deps.ParseSpec(s)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func render(n graph.RawNode) string {
	if len(n.Dependencies) == 0 {
		return n.Name + "@" + n.Version
	}
	parts := make([]string, len(n.Dependencies))
	for i, d := range n.Dependencies {
		parts[i] = render(d)
	}
	return fmt.Sprintf("%s@%s(%s)", n.Name, n.Version, strings.Join(parts, " "))
}

func TestPyPIBackend_Resolve(t *testing.T) {
	b := testBackend(t, nil)

	tree, err := b.Resolve(context.Background(), mustSpec(t, "app"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := "app@1.0(lib-a@1.5(lib-c@1.0(app@1.0)) lib-b@1.0)"
	if got := render(*tree); got != want {
		t.Errorf("tree = %s, want %s", got, want)
	}
}

func TestPyPIBackend_ResolvePinned(t *testing.T) {
	b := testBackend(t, nil)

	tree, err := b.Resolve(context.Background(), mustSpec(t, "lib-a==1.0"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := render(*tree); got != "lib-a@1.0" {
		t.Errorf("tree = %s, want lib-a@1.0", got)
	}
}

func TestPyPIBackend_UnknownPin(t *testing.T) {
	b := testBackend(t, nil)

	_, err := b.Resolve(context.Background(), mustSpec(t, "lib-a==9.9"))
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPyPIBackend_UnknownRoot(t *testing.T) {
	b := testBackend(t, nil)

	if _, err := b.Resolve(context.Background(), mustSpec(t, "nope")); !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPyPIBackend_MaxDepth(t *testing.T) {
	b := testBackend(t, nil, WithMaxDepth(1))

	tree, err := b.Resolve(context.Background(), mustSpec(t, "app"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got, want := render(*tree), "app@1.0(lib-a@1.5 lib-b@1.0)"; got != want {
		t.Errorf("tree = %s, want %s", got, want)
	}
}

func TestPyPIBackend_CancelledContext(t *testing.T) {
	b := testBackend(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Resolve(ctx, mustSpec(t, "app")); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestPyPIBackend_BuildsGraph(t *testing.T) {
	b := testBackend(t, nil)
	r := deps.NewResolver(b, deps.Options{Cache: cache.NewMemoryCache()})

	g, err := r.Resolve(context.Background(), []string{"app"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if g.Len() != 4 {
		t.Errorf("Len = %d, want 4", g.Len())
	}
	if got := g.Requirements(); got != "app==1.0\nlib-a==1.5\nlib-b==1.0\nlib-c==1.0\n" {
		t.Errorf("Requirements =\n%s", got)
	}
	app := graph.NewPackageID("app", "1.0")
	if got := g.Children(graph.NewPackageID("lib-c", "1.0")); !slices.Equal(got, []graph.PackageID{app}) {
		t.Errorf("lib-c children = %v, want the edge back to app", got)
	}
	if len(g.BackEdges()) != 1 {
		t.Errorf("back edges = %v, want 1", g.BackEdges())
	}
}

func TestPyPIBackend_CycleFromOtherRoot(t *testing.T) {
	b := testBackend(t, nil)

	// Rooted at lib-c, the cycle closes at lib-a -> lib-c instead.
	r := deps.NewResolver(b, deps.Options{Cache: cache.NewMemoryCache()})
	trees, err := r.Trees(context.Background(), []string{"app", "lib-c"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := render(trees[1]), "lib-c@1.0(app@1.0(lib-a@1.5(lib-c@1.0) lib-b@1.0))"; got != want {
		t.Errorf("tree = %s, want %s", got, want)
	}
}

func TestPyPIBackend_CyclePropagatesRejection(t *testing.T) {
	b := testBackend(t, nil)
	r := deps.NewResolver(b, deps.Options{Cache: cache.NewMemoryCache()})
	g, err := r.Resolve(context.Background(), []string{"app"})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	uploaded := now.AddDate(0, -1, 0)
	for _, id := range g.IDs() {
		g.Update(id, func(p *graph.Package) {
			p.License = &graph.License{Name: "MIT", Type: "MIT", Recognized: true}
			p.HomePage = "https://example.com/" + p.Name()
			p.UploadTime = &uploaded
		})
	}
	records := map[string][]vuln.Record{
		"app@1.0": {{ID: "GHSA-app", Severity: vuln.SeverityHigh, Package: "app", Version: "1.0"}},
	}
	approval.New(approval.DefaultPolicy(), license.NewValidator(), clock.Fixed(now)).Evaluate(g, records)

	libC, _ := g.Find(graph.NewPackageID("lib-c", "1.0"))
	if libC.Approval.Status != graph.StatusRejected || !slices.Contains(libC.Approval.Rejected, "app") {
		t.Errorf("lib-c = %s rejected deps %v, want rejected because of app", libC.Approval.Status, libC.Approval.Rejected)
	}
	libA, _ := g.Find(graph.NewPackageID("lib-a", "1.5"))
	if libA.Approval.Status != graph.StatusRejected {
		t.Errorf("lib-a = %s, want rejected", libA.Approval.Status)
	}
	libB, _ := g.Find(graph.NewPackageID("lib-b", "1.0"))
	if libB.Approval.Status != graph.StatusApproved {
		t.Errorf("lib-b = %s %q, want approved", libB.Approval.Status, libB.Approval.Reason)
	}
}
