package diagram

import (
	"regexp"
	"strings"

	"github.com/easygithub/easygithub/pkg/errors"
)

// Component is one entry of the interactivity mapping: a named part of the
// architecture and the repository path that implements it.
type Component struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// listItem matches "1. ...", "1) ...", "- ..." and "* ..." lines.
var listItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)

// bracketed matches "[name]: paths", where the name may itself hold colons.
var bracketed = regexp.MustCompile(`^\[(.+?)\]\s*:(.*)$`)

// ParseMapping extracts components from a mapping block. Each numbered or
// bulleted line holds a name and its paths, such as "[API Server]: server/api"
// or "- API Server: server/api". A bracketed name may itself contain colons.
//
// A line listing several comma-separated paths yields one component per path.
// Lines without a colon or without a path are skipped, as are paths that
// fail [errors.ValidateRepoPath] such as "../x".
func ParseMapping(text string) []Component {
	var out []Component
	for _, line := range strings.Split(ExtractTag(text, "component_mapping"), "\n") {
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, paths, ok := splitEntry(m[1])
		if !ok {
			continue
		}
		name = cleanName(name)
		if name == "" {
			continue
		}
		for _, p := range strings.Split(paths, ",") {
			if p = CleanPath(p); p != "" && errors.ValidateRepoPath(p) == nil {
				out = append(out, Component{Name: name, Path: p})
			}
		}
	}
	return out
}

// splitEntry separates the component name from its paths. A bracketed name
// ends at the first "]:", otherwise at the first colon.
func splitEntry(entry string) (name, paths string, ok bool) {
	entry = strings.TrimSpace(entry)
	if m := bracketed.FindStringSubmatch(entry); m != nil {
		return m[1], m[2], true
	}
	return strings.Cut(entry, ":")
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*`\"' ")
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.TrimSpace(s)
}

// CleanPath normalizes a model-written repository path: surrounding quotes and
// backticks, a leading "./" or "/" and a trailing "/" are removed.
func CleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, "`\"'*")
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	return strings.TrimRight(p, "/")
}
