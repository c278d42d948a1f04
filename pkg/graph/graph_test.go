package graph

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

func node(name, version string, deps ...RawNode) RawNode {
	return RawNode{Name: name, Version: version, Dependencies: deps}
}

func id(name, version string) PackageID { return PackageID{Name: name, Version: version} }

func diamond() []RawNode {
	d := node("d", "1.0")
	return []RawNode{
		node("a", "1.0",
			node("b", "1.0", d),
			node("c", "2.0", d),
		),
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name      string
		trees     []RawNode
		wantNodes int
		wantEdges int
		wantRoots []PackageID
	}{
		{"empty", nil, 0, 0, nil},
		{"single", []RawNode{node("requests", "2.31.0")}, 1, 0, []PackageID{id("requests", "2.31.0")}},
		{"diamond", diamond(), 4, 4, []PackageID{id("a", "1.0")}},
		{
			"cycle",
			[]RawNode{node("a", "1", node("b", "1", node("a", "1")))},
			2, 2, []PackageID{id("a", "1")},
		},
		{
			"shared roots keep input order",
			[]RawNode{node("z", "1", node("a", "1")), node("a", "1"), node("z", "1")},
			2, 1, []PackageID{id("z", "1"), id("a", "1")},
		},
		{
			"names normalized",
			[]RawNode{node("Typing_Extensions", "4.0"), node("typing-extensions", "4.0")},
			1, 0, []PackageID{id("typing-extensions", "4.0")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.trees)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if g.Len() != tt.wantNodes {
				t.Errorf("Len() = %d, want %d", g.Len(), tt.wantNodes)
			}
			if g.EdgeCount() != tt.wantEdges {
				t.Errorf("EdgeCount() = %d, want %d", g.EdgeCount(), tt.wantEdges)
			}
			if got := g.Roots(); len(got) != len(tt.wantRoots) || (len(got) > 0 && !slices.Equal(got, tt.wantRoots)) {
				t.Errorf("Roots() = %v, want %v", got, tt.wantRoots)
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name  string
		trees []RawNode
		want  error
	}{
		{"missing root name", []RawNode{node("", "1.0")}, ErrMissingName},
		{"missing root version", []RawNode{node("a", "")}, ErrMissingVersion},
		{"missing nested version", []RawNode{node("a", "1", node("b", " "))}, ErrMissingVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.trees)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildFirstExpansionWins(t *testing.T) {
	g, err := Build([]RawNode{
		node("a", "1", node("x", "1", node("y", "1"))),
		node("x", "1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Children(id("x", "1")); !slices.Equal(got, []PackageID{id("y", "1")}) {
		t.Errorf("Children(x) = %v, want [y@1]", got)
	}
}

func TestBuildDeclaredDependencies(t *testing.T) {
	g, _ := Build(diamond())
	a, ok := g.Find(id("a", "1.0"))
	if !ok {
		t.Fatal("a@1.0 not found")
	}
	want := []DependencyInfo{{Name: "b", Version: "1.0"}, {Name: "c", Version: "2.0"}}
	if !reflect.DeepEqual(a.Dependencies, want) {
		t.Errorf("Dependencies = %+v, want %+v", a.Dependencies, want)
	}
	if parents := g.Parents(id("d", "1.0")); len(parents) != 2 {
		t.Errorf("Parents(d) = %v, want 2 entries", parents)
	}
}

func TestPackagesSorted(t *testing.T) {
	g, _ := Build([]RawNode{node("zope", "1"), node("attrs", "2"), node("attrs", "10")})
	var got []string
	for _, p := range g.Packages() {
		got = append(got, p.ID.String())
	}
	want := []string{"attrs@10", "attrs@2", "zope@1"}
	if !slices.Equal(got, want) {
		t.Errorf("Packages() = %v, want %v", got, want)
	}
}

func TestReachable(t *testing.T) {
	tests := []struct {
		name  string
		trees []RawNode
		start PackageID
		want  []string
	}{
		{"diamond", diamond(), id("a", "1.0"), []string{"b@1.0", "c@2.0", "d@1.0"}},
		{"leaf", diamond(), id("d", "1.0"), nil},
		{"cycle excludes start", []RawNode{node("a", "1", node("b", "1", node("a", "1")))}, id("a", "1"), []string{"b@1"}},
		{"self loop", []RawNode{node("a", "1", node("a", "1"))}, id("a", "1"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := Build(tt.trees)
			var got []string
			for _, r := range g.Reachable(tt.start) {
				got = append(got, r.String())
			}
			slices.Sort(got)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Reachable(%s) = %v, want %v", tt.start, got, tt.want)
			}
		})
	}
}

func TestDependencyMap(t *testing.T) {
	g, _ := Build([]RawNode{
		node("a", "1", node("b", "1", node("a", "1"))),
		node("c", "1"),
	})
	got := g.DependencyMap()
	want := map[string][]string{
		"a": {"b==1"},
		"b": {"a==1"},
		"c": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DependencyMap() = %v, want %v", got, want)
	}
}

func TestRequirements(t *testing.T) {
	g, _ := Build(diamond())
	want := "a==1.0\nb==1.0\nc==2.0\nd==1.0\n"
	if got := g.Requirements(); got != want {
		t.Errorf("Requirements() = %q, want %q", got, want)
	}
}

func TestMergePackageData(t *testing.T) {
	g, _ := Build(diamond())
	g.Update(id("b", "1.0"), func(p *Package) { p.Approval.Status = StatusApproved })

	upload := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	n := g.MergePackageData([]Package{
		{ID: id("b", "1.0"), Summary: "bee", UploadTime: &upload},
		{ID: id("missing", "1.0"), Summary: "ignored"},
	})
	if n != 1 {
		t.Errorf("merged = %d, want 1", n)
	}
	b, _ := g.Find(id("b", "1.0"))
	if b.Summary != "bee" || b.UploadTime == nil || !b.UploadTime.Equal(upload) {
		t.Errorf("merged data not applied: %+v", b)
	}
	if len(b.Dependencies) != 1 || b.Approval.Status != StatusApproved {
		t.Errorf("edges or approval overwritten: deps=%v status=%q", b.Dependencies, b.Approval.Status)
	}
	if g.EdgeCount() != 4 {
		t.Errorf("EdgeCount() = %d, want 4", g.EdgeCount())
	}
}

func TestUpdate(t *testing.T) {
	g, _ := Build(diamond())
	ok := g.Update(id("c", "2.0"), func(p *Package) {
		p.ID = id("evil", "0")
		p.LatestVersion = "3.0"
	})
	if !ok {
		t.Fatal("Update returned false")
	}
	c, found := g.Find(id("c", "2.0"))
	if !found || c.LatestVersion != "3.0" || c.ID != id("c", "2.0") {
		t.Errorf("Find(c) = %+v, %v", c, found)
	}
	if g.Update(id("nope", "1"), func(*Package) {}) {
		t.Error("Update on unknown id returned true")
	}
}

func TestFindReturnsCopy(t *testing.T) {
	g, _ := Build(diamond())
	p, _ := g.Find(id("a", "1.0"))
	p.Summary = "changed"
	again, _ := g.Find(id("a", "1.0"))
	if again.Summary != "" {
		t.Error("Find should return a copy")
	}
}

func TestFindByName(t *testing.T) {
	g, _ := Build([]RawNode{node("Flask", "3.0"), node("flask", "2.0")})
	p, ok := g.FindByName("FLASK")
	if !ok || p.ID.Version != "2.0" {
		t.Errorf("FindByName = %v, %v", p.ID, ok)
	}
	if _, ok := g.FindByName("django"); ok {
		t.Error("FindByName(django) should miss")
	}
}

func TestFindByNameComparesPEP440(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{"numeric segments", []string{"10.0", "9.0"}, "9.0"},
		{"pre-release first", []string{"1.0", "1.0rc1"}, "1.0rc1"},
		{"unparsable falls back to string order", []string{"zeta", "alpha"}, "alpha"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var roots []RawNode
			for _, v := range tt.versions {
				roots = append(roots, node("pkg", v))
			}
			g, err := Build(roots)
			if err != nil {
				t.Fatal(err)
			}
			p, ok := g.FindByName("pkg")
			if !ok || p.ID.Version != tt.want {
				t.Errorf("FindByName = %v, %v; want version %s", p.ID, ok, tt.want)
			}
		})
	}
}

func TestBackEdges(t *testing.T) {
	acyclic, _ := Build(diamond())
	if got := acyclic.BackEdges(); len(got) != 0 {
		t.Errorf("BackEdges() on diamond = %v, want none", got)
	}

	cyclic, _ := Build([]RawNode{node("a", "1", node("b", "1", node("c", "1", node("a", "1"))))})
	got := cyclic.BackEdges()
	want := [][2]PackageID{{id("c", "1"), id("a", "1")}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BackEdges() = %v, want %v", got, want)
	}
}

func TestTree(t *testing.T) {
	g, _ := Build([]RawNode{node("a", "1", node("b", "1", node("a", "1")))})
	tree := g.Tree(id("a", "1"))
	if tree.Name != "a" || len(tree.Dependencies) != 1 {
		t.Fatalf("Tree = %+v", tree)
	}
	b := tree.Dependencies[0]
	if b.Name != "b" || len(b.Dependencies) != 1 || len(b.Dependencies[0].Dependencies) != 0 {
		t.Errorf("cycle not cut: %+v", b)
	}
}

func TestAddEdgeUnknown(t *testing.T) {
	g := New()
	if err := g.Add(Package{ID: id("a", "1")}); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(id("a", "1"), id("b", "1")); !errors.Is(err, ErrUnknownPackage) {
		t.Errorf("AddEdge error = %v, want ErrUnknownPackage", err)
	}
	if err := g.Add(Package{ID: id("a", "1")}); !errors.Is(err, ErrDuplicatePackage) {
		t.Errorf("Add duplicate error = %v, want ErrDuplicatePackage", err)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Requests":          "requests",
		"typing_extensions": "typing-extensions",
		"zope.interface":    "zope-interface",
		"  Foo__Bar ":       "foo-bar",
		"a-_.b":             "a-b",
	}
	for in, want := range tests {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		in   string
		want PackageID
		ok   bool
	}{
		{"requests==2.31.0", id("requests", "2.31.0"), true},
		{"Flask@3.0", id("flask", "3.0"), true},
		{" six == 1.16 ", id("six", "1.16"), true},
		{"requests", PackageID{}, false},
		{"==1.0", PackageID{}, false},
		{"a==", PackageID{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseRequirement(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseRequirement(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	g, _ := Build([]RawNode{node("a", "1", node("b", "1", node("a", "1"))), node("c", "1")})
	g.Update(id("c", "1"), func(p *Package) {
		p.License = &License{Name: "MIT", Type: "MIT", Source: LicenseSourceField, Recognized: true}
		p.Description = "not serialized"
	})

	var buf bytes.Buffer
	if err := WriteJSON(g, &buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	got, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	if got.Len() != g.Len() || got.EdgeCount() != g.EdgeCount() {
		t.Errorf("round trip: %d nodes %d edges, want %d %d", got.Len(), got.EdgeCount(), g.Len(), g.EdgeCount())
	}
	if !slices.Equal(got.Roots(), g.Roots()) {
		t.Errorf("Roots() = %v, want %v", got.Roots(), g.Roots())
	}
	c, _ := got.Find(id("c", "1"))
	if c.License == nil || c.License.Type != "MIT" {
		t.Errorf("license lost: %+v", c.License)
	}
	if c.Description != "" {
		t.Error("description should not be serialized")
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	g, _ := Build(diamond())
	if err := WriteFile(g, path); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Requirements() != g.Requirements() {
		t.Errorf("Requirements() = %q, want %q", got.Requirements(), g.Requirements())
	}
}

func TestReadJSONInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"malformed", `{"nodes": [`},
		{"dangling edge", `{"nodes":[{"id":{"name":"a","version":"1"}}],"edges":[{"from":{"name":"a","version":"1"},"to":{"name":"b","version":"1"}}]}`},
		{"unknown root", `{"roots":[{"name":"x","version":"1"}],"nodes":[]}`},
		{"empty version", `{"nodes":[{"id":{"name":"a","version":""}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadJSON(strings.NewReader(tt.json)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
