package github

import (
	"path"
	"strings"
)

var languages = map[string]string{
	".py":   "Python",
	".js":   "JavaScript",
	".ts":   "TypeScript",
	".jsx":  "React",
	".tsx":  "React",
	".java": "Java",
	".c":    "C",
	".cpp":  "C++",
	".go":   "Go",
	".rs":   "Rust",
	".rb":   "Ruby",
	".php":  "PHP",
	".html": "HTML",
	".css":  "CSS",
	".md":   "Markdown",
	".json": "JSON",
	".yml":  "YAML",
	".yaml": "YAML",
}

// DetectLanguage returns the language for a file path by extension, or
// "Unknown".
func DetectLanguage(p string) string {
	if lang, ok := languages[strings.ToLower(path.Ext(p))]; ok {
		return lang
	}
	return "Unknown"
}
