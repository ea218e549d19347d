package diagram

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// maxCodeLines bounds the code blocks CondenseReadme keeps.
const maxCodeLines = 20

// CondenseReadme strips a README down to the prose the model needs. Images,
// badges, raw HTML and long code blocks are dropped; headings, paragraphs,
// lists, quotes and short code blocks are kept. The result, truncation marker
// included, is cut to maxChars bytes on a line boundary. maxChars <= 0 uses [DefaultMaxReadmeChars].
func CondenseReadme(md string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxReadmeChars
	}
	src := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if b := condenseBlock(n, src, ""); b != "" {
			blocks = append(blocks, b)
		}
	}
	return truncateChars(strings.Join(blocks, "\n\n"), maxChars)
}

func condenseBlock(n ast.Node, src []byte, indent string) string {
	switch n := n.(type) {
	case *ast.Heading:
		if t := inlineText(n, src); t != "" {
			return strings.Repeat("#", n.Level) + " " + t
		}
	case *ast.Paragraph, *ast.TextBlock:
		return indent + inlineText(n, src)
	case *ast.List:
		return condenseList(n, src, indent)
	case *ast.Blockquote:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if b := condenseBlock(c, src, ""); b != "" {
				parts = append(parts, "> "+b)
			}
		}
		return strings.Join(parts, "\n")
	case *ast.FencedCodeBlock:
		if n.Lines().Len() > maxCodeLines {
			return ""
		}
		return "```" + string(n.Language(src)) + "\n" + codeLines(n, src) + "```"
	case *ast.CodeBlock:
		if n.Lines().Len() > maxCodeLines {
			return ""
		}
		return "```\n" + codeLines(n, src) + "```"
	}
	// HTML blocks, thematic breaks and anything unknown are dropped.
	return ""
}

func condenseList(l *ast.List, src []byte, indent string) string {
	var lines []string
	i := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "- "
		if l.IsOrdered() {
			marker = strconv.Itoa(i) + ". "
			i++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				if s := condenseList(sub, src, indent+"  "); s != "" {
					lines = append(lines, s)
				}
				continue
			}
			t := condenseBlock(c, src, "")
			if t == "" {
				continue
			}
			if first {
				lines = append(lines, indent+marker+t)
				first = false
			} else {
				lines = append(lines, indent+"  "+t)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// inlineText flattens the inline children of n. Images and raw HTML are
// skipped, so a badge (a link wrapping an image) contributes nothing.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Image, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			b.Write(c.URL(src))
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			b.WriteByte('`')
			for t := c.FirstChild(); t != nil; t = t.NextSibling() {
				if seg, ok := t.(*ast.Text); ok {
					b.Write(seg.Segment.Value(src))
				}
			}
			b.WriteByte('`')
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func codeLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

const truncatedMarker = "\n\n... (README truncated)"

// truncateChars cuts s to at most limit bytes including the truncation
// marker, preferring the last newline and never splitting a UTF-8 sequence.
func truncateChars(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	marker := truncatedMarker
	if limit <= len(marker) {
		marker = ""
	}
	cut := limit - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	body := s[:cut]
	if i := strings.LastIndexByte(body, '\n'); i > 0 {
		body = body[:i]
	}
	return strings.TrimRight(body, "\n") + marker
}
