package report

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/graph"
)

// Node fill colours by approval status.
var statusColors = map[graph.Status]string{
	graph.StatusApproved: "#c8e6c9",
	graph.StatusRejected: "#ffcdd2",
	graph.StatusPending:  "#eeeeee",
}

// GraphSink renders the dependency map as DOT or SVG.
type GraphSink struct {
	Path   string
	Format Format // FormatDOT or FormatSVG; empty derives from Path
}

// NewGraphSink creates a GraphSink writing to path.
func NewGraphSink(path string, format Format) *GraphSink {
	if format == "" {
		format = FormatFromPath(path)
	}
	if format != FormatSVG {
		format = FormatDOT
	}
	return &GraphSink{Path: path, Format: format}
}

// Save implements Sink.
func (s *GraphSink) Save(ctx context.Context, r *AnalysisResult) (string, error) {
	dot := ToDOT(r)
	data := []byte(dot)
	if s.Format == FormatSVG {
		svg, err := RenderSVG(ctx, dot)
		if err != nil {
			return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "render dependency graph")
		}
		data = svg
	}
	if err := writeFileAtomic(s.Path, data); err != nil {
		return "", errors.Wrap(errors.ErrCodePersistenceFailed, err, "write dependency graph %s", s.Path)
	}
	return s.Path, nil
}

// ToDOT converts the dependency map of r to Graphviz DOT. Nodes are
// labelled name==version and filled by approval status; rejected
// packages get their reason as tooltip.
func ToDOT(r *AnalysisResult) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	byName := make(map[string]PackageReport, len(r.Packages))
	for _, p := range r.Packages {
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p
		}
	}

	names := make(map[string]bool)
	for from, children := range r.DependencyMap {
		names[from] = true
		for _, c := range children {
			names[childName(c)] = true
		}
	}
	for _, p := range r.Packages {
		names[p.Name] = true
	}

	for _, name := range slices.Sorted(maps.Keys(names)) {
		fmt.Fprintf(&buf, "  %q [%s];\n", name, strings.Join(nodeAttrs(name, byName), ", "))
	}

	buf.WriteString("\n")
	for _, from := range slices.Sorted(maps.Keys(r.DependencyMap)) {
		for _, c := range r.DependencyMap[from] {
			fmt.Fprintf(&buf, "  %q -> %q;\n", from, childName(c))
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func childName(requirement string) string {
	if id, ok := graph.ParseRequirement(requirement); ok {
		return id.Name
	}
	return requirement
}

func nodeAttrs(name string, byName map[string]PackageReport) []string {
	p, ok := byName[name]
	if !ok {
		return []string{fmt.Sprintf("label=%q", name), "fillcolor=\"" + statusColors[graph.StatusPending] + "\""}
	}
	attrs := []string{
		fmt.Sprintf("label=%q", p.Name+"=="+p.Version),
		fmt.Sprintf("fillcolor=%q", statusColors[p.Status]),
	}
	if p.Reason != "" {
		attrs = append(attrs, fmt.Sprintf("tooltip=%q", p.Reason))
	}
	if p.Status == graph.StatusRejected {
		attrs = append(attrs, "color=\"#c62828\"", "penwidth=2")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
