package github

import (
	"sort"
	"strings"
)

// FileNode is one entry of a hierarchical file tree.
type FileNode struct {
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	IsDir    bool        `json:"is_dir"`
	Language string      `json:"language,omitempty"`
	Children []*FileNode `json:"children,omitempty"`
}

// BuildFileTree assembles a tree from flat slash-separated file paths.
// Hidden files and directories are skipped. Directories sort before files,
// then by name. maxDepth <= 0 means unlimited; directories at the depth limit
// are kept but lose their children.
func BuildFileTree(paths []string, maxDepth int) *FileNode {
	root := &FileNode{Path: "", Name: "", IsDir: true}
	dirs := map[string]*FileNode{"": root}

	for _, p := range paths {
		parts := strings.Split(strings.Trim(p, "/"), "/")
		if hidden(parts) {
			continue
		}
		parent := root
		for i, name := range parts {
			full := strings.Join(parts[:i+1], "/")
			last := i == len(parts)-1
			if !last {
				dir, ok := dirs[full]
				if !ok {
					dir = &FileNode{Path: full, Name: name, IsDir: true}
					dirs[full] = dir
					parent.Children = append(parent.Children, dir)
				}
				parent = dir
				continue
			}
			if _, ok := dirs[full]; ok {
				continue
			}
			parent.Children = append(parent.Children, &FileNode{
				Path:     full,
				Name:     name,
				Language: DetectLanguage(name),
			})
		}
	}

	sortTree(root)
	if maxDepth > 0 {
		prune(root, maxDepth, 0)
	}
	return root
}

func hidden(parts []string) bool {
	for _, s := range parts {
		if s == "" || strings.HasPrefix(s, ".") {
			return true
		}
	}
	return false
}

func sortTree(n *FileNode) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		if c.IsDir {
			sortTree(c)
		}
	}
}

func prune(n *FileNode, maxDepth, depth int) {
	if depth >= maxDepth {
		n.Children = nil
		return
	}
	for _, c := range n.Children {
		if c.IsDir {
			prune(c, maxDepth, depth+1)
		}
	}
}

// Walk visits n and its descendants depth-first, passing the depth of each node.
func (n *FileNode) Walk(fn func(node *FileNode, depth int)) {
	n.walk(fn, 0)
}

func (n *FileNode) walk(fn func(*FileNode, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// CountFiles returns the number of file nodes below n.
func (n *FileNode) CountFiles() int {
	count := 0
	n.Walk(func(node *FileNode, _ int) {
		if !node.IsDir {
			count++
		}
	})
	return count
}
