// Package graph holds the deduplicated dependency graph of an analysis run.
//
// A [Graph] is an arena: every distinct (name, version) pair owns exactly
// one [Package] slot keyed by [PackageID], with edges stored as adjacency
// lists of IDs. Cycles in the input are preserved and every traversal
// ([Graph.Reachable], [Graph.DependencyMap], [Graph.BackEdges]) carries a
// visited set.
//
// # Building
//
// Resolvers produce nested [RawNode] trees in which shared subtrees repeat.
// [Build] flattens them in one pass, expanding each ID once:
//
//	g, err := graph.Build(trees)
//	for _, p := range g.Packages() {
//	    fmt.Println(p.ID.Requirement())
//	}
//
// Later stages write into the arena through [Graph.MergePackageData]
// (metadata) and [Graph.Update] (license flags, approval).
//
// # Serialization
//
// Graphs use a node-link JSON format with explicit roots:
//
//	graph.WriteFile(g, "deps.json")
//	g, _ := graph.ReadFile("deps.json")
package graph
