package graph

import (
	"cmp"
	"errors"
	"slices"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

var (
	// ErrMissingName is returned by [Build] for a tree node without a name.
	ErrMissingName = errors.New("package name must not be empty")

	// ErrMissingVersion is returned by [Build] for a tree node without a version.
	ErrMissingVersion = errors.New("package version must not be empty")

	// ErrUnknownPackage is returned by [Graph.AddEdge] when an endpoint is
	// not in the graph.
	ErrUnknownPackage = errors.New("unknown package")

	// ErrDuplicatePackage is returned by [Graph.Add] when the ID is taken.
	ErrDuplicatePackage = errors.New("duplicate package")
)

// Graph is an arena of packages keyed by [PackageID] with adjacency lists.
// No two vertices share an ID; cycles are allowed and every traversal is
// cycle-safe.
//
// The zero value is not usable - use [New] or [Build].
// Graph is not safe for concurrent mutation.
type Graph struct {
	nodes    map[PackageID]*Package
	outgoing map[PackageID][]PackageID
	incoming map[PackageID][]PackageID
	roots    []PackageID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[PackageID]*Package),
		outgoing: make(map[PackageID][]PackageID),
		incoming: make(map[PackageID][]PackageID),
	}
}

// Add inserts a package. The stored value is a copy.
func (g *Graph) Add(p Package) error {
	if p.ID.Name == "" {
		return ErrMissingName
	}
	if p.ID.Version == "" {
		return ErrMissingVersion
	}
	if _, exists := g.nodes[p.ID]; exists {
		return ErrDuplicatePackage
	}
	g.nodes[p.ID] = &p
	return nil
}

// AddEdge records that from depends on to. Duplicate edges are ignored.
func (g *Graph) AddEdge(from, to PackageID) error {
	if _, ok := g.nodes[from]; !ok {
		return ErrUnknownPackage
	}
	if _, ok := g.nodes[to]; !ok {
		return ErrUnknownPackage
	}
	if slices.Contains(g.outgoing[from], to) {
		return nil
	}
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
	return nil
}

// AddRoot marks id as a requested package. Roots keep insertion order.
func (g *Graph) AddRoot(id PackageID) {
	if _, ok := g.nodes[id]; ok && !slices.Contains(g.roots, id) {
		g.roots = append(g.roots, id)
	}
}

// Len returns the number of distinct packages.
func (g *Graph) Len() int { return len(g.nodes) }

// Roots returns the requested packages in input order.
func (g *Graph) Roots() []PackageID { return slices.Clone(g.roots) }

// Find returns a copy of the package with the given ID.
func (g *Graph) Find(id PackageID) (Package, bool) {
	p, ok := g.nodes[id]
	if !ok {
		return Package{}, false
	}
	return *p, true
}

// FindByName returns the lowest version of the package with the given
// normalized name. Versions compare under PEP 440; unparsable versions
// fall back to string order.
func (g *Graph) FindByName(name string) (Package, bool) {
	name = NormalizeName(name)
	var best *Package
	for id, p := range g.nodes {
		if id.Name == name && (best == nil || versionLess(id.Version, best.ID.Version)) {
			best = p
		}
	}
	if best == nil {
		return Package{}, false
	}
	return *best, true
}

func versionLess(a, b string) bool {
	if va, err := pep440.Parse(a); err == nil {
		if vb, err := pep440.Parse(b); err == nil {
			return va.LessThan(vb)
		}
	}
	return a < b
}

// Children returns the direct dependencies of id in declaration order.
func (g *Graph) Children(id PackageID) []PackageID { return slices.Clone(g.outgoing[id]) }

// Parents returns the packages that depend directly on id.
func (g *Graph) Parents(id PackageID) []PackageID { return slices.Clone(g.incoming[id]) }

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, c := range g.outgoing {
		n += len(c)
	}
	return n
}

// Packages returns copies of every package sorted by name, then version.
func (g *Graph) Packages() []Package {
	out := make([]Package, 0, len(g.nodes))
	for _, p := range g.nodes {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Package) int { return CompareIDs(a.ID, b.ID) })
	return out
}

// IDs returns every package ID in [Graph.Packages] order.
func (g *Graph) IDs() []PackageID {
	ids := make([]PackageID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareIDs)
	return ids
}

// CompareIDs orders IDs by name, then version.
func CompareIDs(a, b PackageID) int {
	return cmp.Or(strings.Compare(a.Name, b.Name), strings.Compare(a.Version, b.Version))
}

// Update applies fn to the stored package in place. It reports whether
// the package exists. fn must not change the ID.
func (g *Graph) Update(id PackageID, fn func(*Package)) bool {
	p, ok := g.nodes[id]
	if !ok {
		return false
	}
	fn(p)
	p.ID = id
	return true
}

// MergePackageData splices enriched data into the arena. Edges, declared
// dependencies and approval stay untouched. Packages not in the graph are
// ignored; the number merged is returned.
func (g *Graph) MergePackageData(pkgs []Package) int {
	merged := 0
	for _, in := range pkgs {
		p, ok := g.nodes[in.ID]
		if !ok {
			continue
		}
		deps, approval := p.Dependencies, p.Approval
		*p = in
		p.Dependencies, p.Approval = deps, approval
		merged++
	}
	return merged
}

// Reachable returns every package reachable from id, excluding id itself,
// in depth-first preorder.
func (g *Graph) Reachable(id PackageID) []PackageID {
	visited := map[PackageID]bool{id: true}
	var out []PackageID
	var walk func(PackageID)
	walk = func(cur PackageID) {
		for _, child := range g.outgoing[cur] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			walk(child)
		}
	}
	walk(id)
	return out
}

// DependencyMap maps each package name to its direct dependencies rendered
// as "name==version". It walks once from all roots; a name seen twice keeps
// its first expansion.
func (g *Graph) DependencyMap() map[string][]string {
	out := make(map[string][]string, len(g.nodes))
	var walk func(PackageID)
	walk = func(id PackageID) {
		if _, seen := out[id.Name]; seen {
			return
		}
		children := g.outgoing[id]
		reqs := make([]string, len(children))
		for i, c := range children {
			reqs[i] = c.Requirement()
		}
		out[id.Name] = reqs
		for _, c := range children {
			walk(c)
		}
	}
	for _, r := range g.roots {
		walk(r)
	}
	return out
}

// Requirements renders every package as a "name==version" line in
// [Graph.Packages] order.
func (g *Graph) Requirements() string {
	var b strings.Builder
	for _, id := range g.IDs() {
		b.WriteString(id.Requirement())
		b.WriteByte('\n')
	}
	return b.String()
}

// BackEdges returns the edges that close a dependency cycle, found by a
// depth-first search with white/gray/black colouring from the roots and
// then from any unvisited package.
func (g *Graph) BackEdges() [][2]PackageID {
	const (
		white = iota
		gray
		black
	)

	color := make(map[PackageID]int, len(g.nodes))
	var back [][2]PackageID

	var dfs func(PackageID)
	dfs = func(id PackageID) {
		color[id] = gray
		for _, child := range g.outgoing[id] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				back = append(back, [2]PackageID{id, child})
			}
		}
		color[id] = black
	}

	for _, r := range g.roots {
		if color[r] == white {
			dfs(r)
		}
	}
	for _, id := range g.IDs() {
		if color[id] == white {
			dfs(id)
		}
	}
	return back
}
