// Package nodelink renders a component mapping as a Graphviz node-link graph.
//
// The mapping produced by the diagram stages pairs architecture components
// with repository paths. [ToDOT] lays that out as repository → component →
// path, with clickable nodes, and [RenderSVG] renders it in-process:
//
//	dot := nodelink.ToDOT("owner/repo", components, nodelink.Options{Linker: linker})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Rendering uses [github.com/goccy/go-graphviz], so no Graphviz install is
// required.
package nodelink
