package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Document is the node-link JSON form of a [Graph].
//
//	{
//	  "roots": [{"name": "flask", "version": "3.0.0"}],
//	  "nodes": [{"id": {"name": "flask", "version": "3.0.0"}, ...}],
//	  "edges": [{"from": {...}, "to": {...}}]
//	}
type Document struct {
	Roots []PackageID `json:"roots"`
	Nodes []Package   `json:"nodes"`
	Edges []Edge      `json:"edges"`
}

// Edge is a dependency edge in a [Document].
type Edge struct {
	From PackageID `json:"from"`
	To   PackageID `json:"to"`
}

// ToDocument converts g into its serializable form. Nodes are sorted by
// ID for deterministic output; edges follow node order then declaration
// order.
func (g *Graph) ToDocument() Document {
	doc := Document{
		Roots: g.Roots(),
		Nodes: g.Packages(),
		Edges: make([]Edge, 0, g.EdgeCount()),
	}
	if doc.Roots == nil {
		doc.Roots = []PackageID{}
	}
	for _, p := range doc.Nodes {
		for _, c := range g.outgoing[p.ID] {
			doc.Edges = append(doc.Edges, Edge{From: p.ID, To: c})
		}
	}
	return doc
}

// FromDocument rebuilds a graph, validating that every edge and root
// refers to a declared node.
func FromDocument(doc Document) (*Graph, error) {
	g := New()
	for _, p := range doc.Nodes {
		if err := g.Add(p); err != nil {
			return nil, fmt.Errorf("node %s: %w", p.ID, err)
		}
	}
	for _, e := range doc.Edges {
		if err := g.AddEdge(e.From, e.To); err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	for _, r := range doc.Roots {
		if _, ok := g.nodes[r]; !ok {
			return nil, fmt.Errorf("root %s: %w", r, ErrUnknownPackage)
		}
		g.AddRoot(r)
	}
	return g, nil
}

// Marshal converts a graph to indented JSON bytes.
func Marshal(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSON(g, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes g as node-link JSON.
func WriteJSON(g *Graph, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g.ToDocument()); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ReadJSON decodes node-link JSON into a graph.
func ReadJSON(r io.Reader) (*Graph, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return FromDocument(doc)
}

// WriteFile writes g to path as JSON.
func WriteFile(g *Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteJSON(g, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads a graph written by [WriteFile].
func ReadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSON(f)
}
