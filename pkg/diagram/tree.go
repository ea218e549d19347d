package diagram

import (
	"fmt"
	"strings"
)

// Input limits applied before prompting.
const (
	DefaultMaxTreeLines   = 3000
	DefaultMaxReadmeChars = 12000
)

// TruncateTree keeps the first maxLines lines of a newline-separated file
// listing and appends a "... (N more files)" line for the rest.
// maxLines <= 0 uses [DefaultMaxTreeLines].
func TruncateTree(tree string, maxLines int) string {
	if maxLines <= 0 {
		maxLines = DefaultMaxTreeLines
	}
	lines := strings.Split(strings.TrimRight(tree, "\n"), "\n")
	if len(lines) <= maxLines {
		return tree
	}
	kept := strings.Join(lines[:maxLines], "\n")
	return fmt.Sprintf("%s\n... (%d more files)", kept, len(lines)-maxLines)
}
