package diagram

import (
	"regexp"
	"strings"

	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations/github"
)

var (
	fenceLine = regexp.MustCompile("(?m)^[ \t]*```[a-zA-Z]*[ \t]*$\n?")
	initDecl  = regexp.MustCompile(`(?s)%%\{\s*init\b.*?\}%%[ \t]*\n?`)
	clickLine = regexp.MustCompile(`(?m)^(\s*click\s+[^\s"]+\s+(?:href\s+)?)"([^"]*)"`)
)

// diagramKeywords are the first tokens a Mermaid document may start with.
var diagramKeywords = []string{
	"flowchart", "graph", "sequenceDiagram", "classDiagram",
	"stateDiagram", "erDiagram", "C4Context", "architecture-beta",
}

// Linker turns a repository-relative path from a click event into a URL.
type Linker interface {
	Link(path string) string
}

// LinkerFunc adapts a function to [Linker].
type LinkerFunc func(path string) string

func (f LinkerFunc) Link(path string) string { return f(path) }

// RepoLinker links paths to the GitHub web UI of one branch. Directories
// known to the tree and the empty root path get tree URLs; everything else
// gets a blob URL.
type RepoLinker struct {
	Ref    github.RepoRef
	Branch string
	Tree   *github.Tree
}

func (l RepoLinker) Link(path string) string {
	if path == "" {
		return github.TreeURL(l.Ref, l.Branch, "")
	}
	if l.Tree.HasDir(path) && !l.Tree.HasFile(path) {
		return github.TreeURL(l.Ref, l.Branch, path)
	}
	return github.BlobURL(l.Ref, l.Branch, path)
}

// Clean removes code fences and init directives from model output.
func Clean(code string) string {
	code = fenceLine.ReplaceAllString(code, "")
	code = initDecl.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

// PostProcess cleans code and rewrites every click event path through l.
// Targets that are already absolute URLs are left alone. A nil linker only
// cleans.
func PostProcess(code string, l Linker) string {
	code = Clean(code)
	if l == nil {
		return code
	}
	return clickLine.ReplaceAllStringFunc(code, func(m string) string {
		sub := clickLine.FindStringSubmatch(m)
		target := strings.TrimSpace(sub[2])
		if target == "" || isURL(target) {
			return m
		}
		p := CleanPath(target)
		if errors.ValidateRepoPath(p) != nil {
			return m
		}
		return sub[1] + `"` + l.Link(p) + `"`
	})
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ClickTargets returns the targets of all click events in code, in order.
func ClickTargets(code string) []string {
	var out []string
	for _, m := range clickLine.FindAllStringSubmatch(code, -1) {
		out = append(out, m[2])
	}
	return out
}

// Validate checks that code starts with a Mermaid diagram declaration.
// Blank lines and %% comments before it are ignored.
func Validate(code string) error {
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%%") {
			continue
		}
		for _, kw := range diagramKeywords {
			if strings.HasPrefix(line, kw) {
				return nil
			}
		}
		return errors.New(errors.ErrCodeLLM, "generated diagram does not start with a Mermaid declaration: %q", truncate(line, 60))
	}
	return errors.New(errors.ErrCodeLLMEmptyResponse, "generated diagram is empty")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
