package nodelink

import (
	"context"
	"strings"
	"testing"

	"github.com/easygithub/easygithub/pkg/diagram"
)

var testComponents = []diagram.Component{
	{Name: "API", Path: "server/api"},
	{Name: "API", Path: "server/routes.go"},
	{Name: "Store", Path: "server/api"},
	{Name: "API", Path: "server/api"},
}

func TestToDOT_Basic(t *testing.T) {
	dot := ToDOT("o/r", testComponents, Options{})

	for _, want := range []string{
		"digraph G",
		`"repo" [label="o/r"`,
		`"component:API" [label="API"`,
		`"path:server/api" [label="api"`,
		`"repo" -> "component:API";`,
		`"component:API" -> "path:server/routes.go";`,
		`"component:Store" -> "path:server/api";`,
		"shape=folder",
		"shape=note",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q in:\n%s", want, dot)
		}
	}
	if n := strings.Count(dot, `"component:API" -> "path:server/api";`); n != 1 {
		t.Errorf("duplicate edge written %d times", n)
	}
	if n := strings.Count(dot, `"path:server/api" [`); n != 1 {
		t.Errorf("path node written %d times", n)
	}
	if strings.Contains(dot, "URL=") {
		t.Error("ToDOT() without linker should not emit URLs")
	}
}

func TestToDOT_Links(t *testing.T) {
	linker := diagram.LinkerFunc(func(p string) string { return "https://x/" + p })
	dot := ToDOT("o/r", testComponents, Options{
		Linker:   linker,
		IsDir:    func(p string) bool { return p == "server/api" },
		Detailed: true,
	})

	for _, want := range []string{
		`URL="https://x/server/api"`,
		`URL="https://x/"`,
		`label="server/routes.go"`,
		`label="o/r\n2 components"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q in:\n%s", want, dot)
		}
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 100.50 200.00"><g/></svg>`)
	got := string(normalizeViewBox(in))
	if !strings.Contains(got, `viewBox="0 0 100.50 200.00" width="100" height="200"`) {
		t.Errorf("normalizeViewBox() = %s", got)
	}
	if unchanged := normalizeViewBox([]byte("<svg><g/></svg>")); string(unchanged) != "<svg><g/></svg>" {
		t.Errorf("svg without viewBox changed: %s", unchanged)
	}
}

func TestRenderSVG(t *testing.T) {
	dot := ToDOT("o/r", testComponents, Options{})
	svg, err := RenderSVG(context.Background(), dot)
	if err != nil {
		t.Fatalf("RenderSVG() error = %v", err)
	}
	if !strings.Contains(string(svg), "<svg") {
		t.Error("RenderSVG() output is not SVG")
	}
}
