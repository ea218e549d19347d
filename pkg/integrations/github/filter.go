package github

import "strings"

// excludedPatterns are matched as case-insensitive substrings of the path.
// "*.log" is kept literal and only matches paths containing that text.
var excludedPatterns = []string{
	// dependencies
	"node_modules/", "vendor/", "venv/",
	// compiled
	".min.", ".pyc", ".pyo", ".pyd", ".so", ".dll", ".class",
	// assets
	".jpg", ".jpeg", ".png", ".gif", ".ico", ".svg", ".ttf", ".woff", ".webp",
	// caches
	"__pycache__/", ".cache/", ".tmp/",
	// lock files and logs
	"yarn.lock", "poetry.lock", "*.log",
	// editor config
	".vscode/", ".idea/",
}

// ShouldInclude reports whether path belongs in the file tree sent to the model.
func ShouldInclude(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range excludedPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}
