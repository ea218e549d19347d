package github

import "testing"

func TestShouldInclude(t *testing.T) {
	tests := map[string]bool{
		"src/main.go":                true,
		"README.md":                  true,
		"web/node_modules/react.js":  false,
		"vendor/github.com/x/y.go":   false,
		"static/app.min.js":          false,
		"assets/Logo.PNG":            false,
		"pkg/__pycache__/a.cpython":  false,
		"yarn.lock":                  false,
		".vscode/settings.json":      false,
		"docs/diagram.svg":           false,
		"internal/server/handler.go": true,
	}
	for path, want := range tests {
		if got := ShouldInclude(path); got != want {
			t.Errorf("ShouldInclude(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"a.py":       "Python",
		"b.TSX":      "React",
		"c/d.go":     "Go",
		"e.yaml":     "YAML",
		"Makefile":   "Unknown",
		"f.unknown1": "Unknown",
	}
	for path, want := range tests {
		if got := DetectLanguage(path); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestBuildFileTree(t *testing.T) {
	paths := []string{
		"README.md",
		"src/main.go",
		"src/util/strings.go",
		".github/workflows/ci.yml",
		"src/.env",
		"docs/index.md",
	}
	root := BuildFileTree(paths, 0)

	var names []string
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	if got, want := len(names), 3; got != want {
		t.Fatalf("root children = %v", names)
	}
	if names[0] != "docs" || names[1] != "src" || names[2] != "README.md" {
		t.Errorf("order = %v, want [docs src README.md]", names)
	}

	src := root.Children[1]
	if len(src.Children) != 2 || !src.Children[0].IsDir || src.Children[1].Language != "Go" {
		t.Errorf("src children = %+v", src.Children)
	}
	if got := root.CountFiles(); got != 4 {
		t.Errorf("CountFiles = %d, want 4", got)
	}
}

func TestBuildFileTreeDepth(t *testing.T) {
	root := BuildFileTree([]string{"a/b/c/d.go", "a/x.go", "top.go"}, 2)

	a := root.Children[0]
	if a.Name != "a" {
		t.Fatalf("first child = %q", a.Name)
	}
	b := a.Children[0]
	if !b.IsDir || b.Name != "b" {
		t.Fatalf("b = %+v", b)
	}
	if len(b.Children) != 0 {
		t.Errorf("directory at depth limit kept %d children", len(b.Children))
	}

	maxDepth := 0
	root.Walk(func(_ *FileNode, d int) { maxDepth = max(maxDepth, d) })
	if maxDepth != 2 {
		t.Errorf("max depth = %d, want 2", maxDepth)
	}
}
