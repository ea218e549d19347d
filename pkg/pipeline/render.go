package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/render/nodelink"
)

// Render generates output artifacts in the requested formats. The result's
// Mermaid code must already be post-processed.
func Render(ctx context.Context, res *Result, linker diagram.RepoLinker, formats []string) (map[string][]byte, error) {
	artifacts := make(map[string][]byte, len(formats))

	for _, format := range formats {
		var data []byte
		var err error

		switch format {
		case FormatMermaid:
			data = []byte(res.Mermaid + "\n")
		case FormatSVG:
			dot := nodelink.ToDOT(res.Repo.String(), res.Components, nodelink.Options{
				Linker: linker,
				IsDir:  linker.Tree.HasDir,
			})
			data, err = nodelink.RenderSVG(ctx, dot)
		case FormatJSON:
			data, err = json.MarshalIndent(res, "", "  ")
		case FormatMarkdown:
			data = []byte(Markdown(res, linker))
		default:
			return nil, fmt.Errorf("unsupported format: %s", format)
		}

		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}

	return artifacts, nil
}

// Markdown writes a report with the explanation, the linked component list
// and the diagram in a mermaid fence.
func Markdown(res *Result, linker diagram.Linker) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", res.Repo)
	if res.Info != nil && res.Info.Description != "" {
		fmt.Fprintf(&b, "> %s\n\n", res.Info.Description)
	}

	b.WriteString("## Architecture\n\n")
	b.WriteString(strings.TrimSpace(res.Explanation))
	b.WriteString("\n\n")

	if len(res.Components) > 0 {
		b.WriteString("## Components\n\n")
		for _, c := range res.Components {
			if linker != nil {
				fmt.Fprintf(&b, "- **%s**: [`%s`](%s)\n", c.Name, c.Path, linker.Link(c.Path))
			} else {
				fmt.Fprintf(&b, "- **%s**: `%s`\n", c.Name, c.Path)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Diagram\n\n```mermaid\n")
	b.WriteString(strings.TrimSpace(res.Mermaid))
	b.WriteString("\n```\n")
	return b.String()
}
