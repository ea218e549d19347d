package diagram

import "strings"

// ExtractTag returns the trimmed text between the first <tag> and the first
// </tag> that follows it. Model output without both tags is returned as is.
func ExtractTag(text, tag string) string {
	openTag, closeTag := "<"+tag+">", "</"+tag+">"
	start := strings.Index(text, openTag)
	if start < 0 {
		return text
	}
	start += len(openTag)
	end := strings.Index(text[start:], closeTag)
	if end < 0 {
		return text
	}
	return strings.TrimSpace(text[start : start+end])
}
