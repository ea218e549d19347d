package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/easygithub/easygithub/pkg/diagram"
)

// Options configures component map rendering.
type Options struct {
	// Linker turns repository paths into node URLs. Nil leaves nodes unlinked.
	Linker diagram.Linker

	// IsDir reports whether a mapped path is a directory. When nil, paths
	// without a file extension are treated as directories.
	IsDir func(p string) bool

	// Detailed adds the component count to the repository label and the
	// full path to file labels.
	Detailed bool
}

func (o Options) isDir(p string) bool {
	if o.IsDir != nil {
		return o.IsDir(p)
	}
	return path.Ext(p) == ""
}

// ToDOT converts a component mapping to Graphviz DOT. The repository is the
// root node, each distinct component hangs off it, and each component points
// at the paths implementing it. Directories are drawn as folders, files as
// notes.
func ToDOT(repo string, components []diagram.Component, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [color=\"#666666\"];\n")
	buf.WriteString("  ranksep=0.8;\n")
	buf.WriteString("  nodesep=0.25;\n")
	buf.WriteString("\n")

	rootLabel := repo
	if opts.Detailed {
		rootLabel = fmt.Sprintf("%s\n%d components", repo, countNames(components))
	}
	rootAttrs := []string{fmt.Sprintf("label=%q", rootLabel), "shape=box3d", "fillcolor=\"#dbeafe\""}
	if opts.Linker != nil {
		rootAttrs = append(rootAttrs, fmt.Sprintf("URL=%q", opts.Linker.Link("")))
	}
	fmt.Fprintf(&buf, "  %q [%s];\n", rootID, strings.Join(rootAttrs, ", "))

	seenComp := make(map[string]bool)
	seenPath := make(map[string]bool)
	seenEdge := make(map[string]bool)
	var edges []string

	for _, c := range components {
		cid := "component:" + c.Name
		if !seenComp[cid] {
			seenComp[cid] = true
			fmt.Fprintf(&buf, "  %q [label=%q, fillcolor=\"#fef3c7\"];\n", cid, c.Name)
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", rootID, cid))
		}

		pid := "path:" + c.Path
		if !seenPath[pid] {
			seenPath[pid] = true
			fmt.Fprintf(&buf, "  %q [%s];\n", pid, strings.Join(pathAttrs(c.Path, opts), ", "))
		}

		if e := cid + "\x00" + pid; !seenEdge[e] {
			seenEdge[e] = true
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", cid, pid))
		}
	}

	buf.WriteString("\n")
	for _, e := range edges {
		buf.WriteString(e)
	}
	buf.WriteString("}\n")
	return buf.String()
}

const rootID = "repo"

func pathAttrs(p string, opts Options) []string {
	label := path.Base(p)
	if opts.Detailed {
		label = p
	}
	attrs := []string{fmt.Sprintf("label=%q", label), fmt.Sprintf("tooltip=%q", p)}
	if opts.isDir(p) {
		attrs = append(attrs, "shape=folder", "style=filled", "fillcolor=\"#dcfce7\"")
	} else {
		attrs = append(attrs, "shape=note", "style=filled", "fillcolor=\"#f3f4f6\"")
	}
	if opts.Linker != nil {
		attrs = append(attrs, fmt.Sprintf("URL=%q", opts.Linker.Link(p)), "target=\"_blank\"")
	}
	return attrs
}

func countNames(components []diagram.Component) int {
	names := make(map[string]bool, len(components))
	for _, c := range components {
		names[c.Name] = true
	}
	return len(names)
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

// normalizeViewBox rewrites the root element so the SVG scales from a
// zero origin with explicit width and height.
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

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
