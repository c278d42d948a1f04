package graph

import "fmt"

// RawNode is one node of a resolver's nested dependency tree. The same
// (name, version) may appear many times in a tree.
type RawNode struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Dependencies []RawNode `json:"dependencies"`
}

// ID returns the normalized package ID of the node.
func (n RawNode) ID() PackageID { return NewPackageID(n.Name, n.Version) }

// Build flattens resolver trees into a deduplicated graph. Each distinct
// (name, version) is expanded once; later occurrences only add an edge.
// Children are taken from the first expansion and roots keep input order.
//
// A node with an empty name or version fails the whole build with
// [ErrMissingName] or [ErrMissingVersion].
func Build(trees []RawNode) (*Graph, error) {
	g := New()
	b := builder{g: g, expanded: make(map[PackageID]bool)}
	for i := range trees {
		id, err := b.visit(&trees[i], fmt.Sprintf("tree[%d]", i))
		if err != nil {
			return nil, err
		}
		g.AddRoot(id)
	}
	return g, nil
}

type builder struct {
	g        *Graph
	expanded map[PackageID]bool
}

func (b *builder) visit(n *RawNode, path string) (PackageID, error) {
	id := n.ID()
	if id.Name == "" {
		return PackageID{}, fmt.Errorf("%s: %w", path, ErrMissingName)
	}
	if id.Version == "" {
		return PackageID{}, fmt.Errorf("%s (%s): %w", path, id.Name, ErrMissingVersion)
	}
	if b.expanded[id] {
		return id, nil
	}
	b.expanded[id] = true
	if err := b.g.Add(Package{ID: id}); err != nil {
		return PackageID{}, fmt.Errorf("%s: %w", id, err)
	}

	deps := make([]DependencyInfo, 0, len(n.Dependencies))
	for i := range n.Dependencies {
		child, err := b.visit(&n.Dependencies[i], path+"/"+id.Name)
		if err != nil {
			return PackageID{}, err
		}
		if err := b.g.AddEdge(id, child); err != nil {
			return PackageID{}, fmt.Errorf("%s -> %s: %w", id, child, err)
		}
		if !containsDep(deps, child) {
			deps = append(deps, DependencyInfo{Name: child.Name, Version: child.Version})
		}
	}
	b.g.nodes[id].Dependencies = deps
	return id, nil
}

func containsDep(deps []DependencyInfo, id PackageID) bool {
	for _, d := range deps {
		if d.ID() == id {
			return true
		}
	}
	return false
}

// Tree rebuilds the nested tree rooted at id. A package already on the
// current path is emitted without children so the result is finite.
func (g *Graph) Tree(id PackageID) RawNode {
	onPath := make(map[PackageID]bool)
	var walk func(PackageID) RawNode
	walk = func(cur PackageID) RawNode {
		n := RawNode{Name: cur.Name, Version: cur.Version, Dependencies: []RawNode{}}
		if onPath[cur] {
			return n
		}
		onPath[cur] = true
		for _, c := range g.outgoing[cur] {
			n.Dependencies = append(n.Dependencies, walk(c))
		}
		delete(onPath, cur)
		return n
	}
	return walk(id)
}
