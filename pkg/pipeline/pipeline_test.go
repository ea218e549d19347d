package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/llm"
)

const (
	explainOut = "<explanation>A CLI that calls a core library.</explanation>"
	mapOut     = "<component_mapping>\n1. [CLI]: cmd/tool\n2. [Core]: core/lib.go\n</component_mapping>"
	mermaidOut = "```mermaid\nflowchart TD\n  CLI --> Core\n  click CLI \"cmd/tool\"\n  click Core \"core/lib.go\"\n```"
)

type fakeGitHub struct {
	mu     sync.Mutex
	calls  int
	readme string
	err    error
}

func (f *fakeGitHub) Context(ctx context.Context, ref github.RepoRef, branch string) (*github.RepoContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if branch == "" {
		branch = "main"
	}
	return &github.RepoContext{
		Ref:  ref,
		Info: &github.RepoInfo{Name: ref.Repo, Description: "A tool", DefaultBranch: "main"},
		Tree: &github.Tree{
			Branch: branch,
			Paths:  []string{"cmd/tool/main.go", "core/lib.go"},
			Dirs:   map[string]bool{"cmd": true, "cmd/tool": true, "core": true},
		},
		Readme: f.readme,
	}, nil
}

// modelAgent overrides the model name reported to the runner.
type modelAgent struct {
	*diagram.Agent
	model string
}

func (m modelAgent) Model() string { return m.model }

func quiet() *log.Logger { return log.New(io.Discard) }

func newRunner(gh ContextFetcher, p llm.Provider, c cache.Cache) *Runner {
	return NewRunner(gh, diagram.NewAgent(p, diagram.WithLogger(quiet())), c, nil, quiet())
}

func newCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewMemoryCache(0)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"mermaid", false},
		{"svg", false},
		{"json", false},
		{"md", false},
		{"png", true},
		{"SVG", true}, // case-sensitive
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestParseFormats(t *testing.T) {
	got := ParseFormats(" mermaid, SVG,,mermaid,md ")
	want := []string{"mermaid", "svg", "md"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ParseFormats() = %v, want %v", got, want)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{RepoURL: "https://github.com/Owner/Repo.git"}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatalf("ValidateAndSetDefaults() error = %v", err)
	}
	if opts.Ref() != (github.RepoRef{Owner: "Owner", Repo: "Repo"}) {
		t.Errorf("Ref() = %v", opts.Ref())
	}
	if len(opts.Formats) != 1 || opts.Formats[0] != FormatMermaid {
		t.Errorf("Formats = %v, want [mermaid]", opts.Formats)
	}
	if opts.MaxTreeLines != diagram.DefaultMaxTreeLines {
		t.Errorf("MaxTreeLines = %d", opts.MaxTreeLines)
	}
	if opts.MaxReadmeChars != diagram.DefaultMaxReadmeChars {
		t.Errorf("MaxReadmeChars = %d", opts.MaxReadmeChars)
	}
	if opts.Logger == nil {
		t.Error("Logger should default to a discard logger")
	}
}

func TestOptionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		code errors.Code
	}{
		{"bad url", Options{RepoURL: "https://gitlab.com/a/b"}, errors.ErrCodeInvalidRepoURL},
		{"empty url", Options{}, errors.ErrCodeInvalidRepoURL},
		{"bad format", Options{RepoURL: "a/b", Formats: []string{"png"}}, errors.ErrCodeInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.ValidateAndSetDefaults()
			if !errors.Is(err, tt.code) {
				t.Errorf("ValidateAndSetDefaults() error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	gh := &fakeGitHub{readme: "# Tool\n\n![badge](b.svg)\n\nDoes things."}
	p := llm.NewScripted(explainOut, mapOut, mermaidOut)
	r := newRunner(gh, p, newCache(t))

	var events []Event
	res, err := r.Execute(context.Background(), Options{
		RepoURL:  "owner/repo",
		Formats:  []string{FormatMermaid, FormatJSON, FormatMarkdown},
		Observer: func(e Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if res.Branch != "main" {
		t.Errorf("Branch = %q, want main", res.Branch)
	}
	if res.Explanation != "A CLI that calls a core library." {
		t.Errorf("Explanation = %q", res.Explanation)
	}
	if len(res.Components) != 2 || res.Stats.Components != 2 {
		t.Errorf("Components = %+v", res.Components)
	}
	for _, want := range []string{
		`click CLI "https://github.com/owner/repo/tree/main/cmd/tool"`,
		`click Core "https://github.com/owner/repo/blob/main/core/lib.go"`,
	} {
		if !strings.Contains(res.Mermaid, want) {
			t.Errorf("Mermaid missing %q:\n%s", want, res.Mermaid)
		}
	}
	if strings.Contains(res.Mermaid, "```") {
		t.Errorf("Mermaid still fenced:\n%s", res.Mermaid)
	}
	if res.CacheInfo != (CacheInfo{}) {
		t.Errorf("CacheInfo = %+v, want all misses", res.CacheInfo)
	}
	if res.Stats.TreeFiles != 2 {
		t.Errorf("TreeFiles = %d", res.Stats.TreeFiles)
	}

	if got := string(res.Artifacts[FormatMermaid]); got != res.Mermaid+"\n" {
		t.Errorf("mermaid artifact = %q", got)
	}
	var decoded Result
	if err := json.Unmarshal(res.Artifacts[FormatJSON], &decoded); err != nil {
		t.Fatalf("json artifact: %v", err)
	}
	if decoded.Mermaid != res.Mermaid || decoded.Repo.Repo != "repo" {
		t.Errorf("json artifact = %+v", decoded)
	}
	md := string(res.Artifacts[FormatMarkdown])
	if !strings.Contains(md, "```mermaid\nflowchart TD") || !strings.Contains(md, "> A tool") {
		t.Errorf("md artifact:\n%s", md)
	}

	readmeSent := p.Requests()[0].User
	if strings.Contains(readmeSent, "badge") || !strings.Contains(readmeSent, "Does things.") {
		t.Errorf("README not condensed before prompting:\n%s", readmeSent)
	}

	var stages []string
	for _, e := range events {
		stages = append(stages, e.Stage+":"+e.Status)
	}
	want := "context:started context:done explain:started explain:done map:started map:done " +
		"mermaid:started mermaid:done render:started render:done"
	if got := strings.Join(stages, " "); got != want {
		t.Errorf("events = %s\nwant     %s", got, want)
	}
}

func TestExecuteCached(t *testing.T) {
	c := newCache(t)
	gh := &fakeGitHub{}
	ctx := context.Background()

	if _, err := newRunner(gh, llm.NewScripted(explainOut, mapOut, mermaidOut), c).
		Execute(ctx, Options{RepoURL: "owner/repo"}); err != nil {
		t.Fatal(err)
	}

	empty := llm.NewScripted()
	res, err := newRunner(gh, empty, c).Execute(ctx, Options{RepoURL: "owner/repo"})
	if err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	want := CacheInfo{ContextHit: true, ExplainHit: true, MapHit: true, DiagramHit: true}
	if res.CacheInfo != want {
		t.Errorf("CacheInfo = %+v, want %+v", res.CacheInfo, want)
	}
	if n := len(empty.Requests()); n != 0 {
		t.Errorf("model called %d times on a fully cached run", n)
	}
	if gh.calls != 1 {
		t.Errorf("GitHub called %d times, want 1", gh.calls)
	}
	if !strings.Contains(res.Mermaid, "https://github.com/owner/repo/tree/main/cmd/tool") {
		t.Errorf("cached run lost link rewriting:\n%s", res.Mermaid)
	}
}

func TestExecuteRefresh(t *testing.T) {
	c := newCache(t)
	gh := &fakeGitHub{}
	ctx := context.Background()

	if _, err := newRunner(gh, llm.NewScripted(explainOut, mapOut, mermaidOut), c).
		Execute(ctx, Options{RepoURL: "owner/repo"}); err != nil {
		t.Fatal(err)
	}

	newer := "<explanation>Rewritten.</explanation>"
	p := llm.NewScripted(newer, mapOut, mermaidOut)
	res, err := newRunner(gh, p, c).Execute(ctx, Options{RepoURL: "owner/repo", Refresh: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheInfo != (CacheInfo{}) {
		t.Errorf("refresh run reported cache hits: %+v", res.CacheInfo)
	}
	if len(p.Requests()) != 3 {
		t.Errorf("requests = %d, want 3", len(p.Requests()))
	}

	// The refreshed explanation was written back.
	res, err = newRunner(gh, llm.NewScripted(), c).Execute(ctx, Options{RepoURL: "owner/repo"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Explanation != "Rewritten." {
		t.Errorf("Explanation = %q, want refreshed value", res.Explanation)
	}
}

func TestExecuteFailedStageNotCached(t *testing.T) {
	c := newCache(t)
	gh := &fakeGitHub{}
	ctx := context.Background()

	p := llm.NewScripted(explainOut).PushError(errors.New(errors.ErrCodeLLM, "boom"))
	var failed []Event
	_, err := newRunner(gh, p, c).Execute(ctx, Options{
		RepoURL: "owner/repo",
		Observer: func(e Event) {
			if e.Status == StatusFailed {
				failed = append(failed, e)
			}
		},
	})
	if !errors.Is(err, errors.ErrCodeLLM) {
		t.Fatalf("Execute() error = %v, want LLM_ERROR", err)
	}
	if len(failed) != 1 || failed[0].Stage != diagram.StageMap {
		t.Errorf("failed events = %+v", failed)
	}

	p = llm.NewScripted(mapOut, mermaidOut)
	res, err := newRunner(gh, p, c).Execute(ctx, Options{RepoURL: "owner/repo"})
	if err != nil {
		t.Fatalf("retry Execute() error = %v", err)
	}
	if !res.CacheInfo.ExplainHit || res.CacheInfo.MapHit {
		t.Errorf("CacheInfo = %+v, want explain hit and map miss", res.CacheInfo)
	}
}

func TestExecuteModelInKey(t *testing.T) {
	c := newCache(t)
	gh := &fakeGitHub{}
	ctx := context.Background()

	run := func(model string, p *llm.Scripted) *Result {
		t.Helper()
		agent := modelAgent{Agent: diagram.NewAgent(p, diagram.WithLogger(quiet())), model: model}
		res, err := NewRunner(gh, agent, c, nil, quiet()).Execute(ctx, Options{RepoURL: "owner/repo"})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	run("a", llm.NewScripted(explainOut, mapOut, mermaidOut))
	res := run("b", llm.NewScripted(explainOut, mapOut, mermaidOut))
	if res.CacheInfo.ExplainHit || res.CacheInfo.MapHit || res.CacheInfo.DiagramHit {
		t.Errorf("model b reused model a output: %+v", res.CacheInfo)
	}
	if !res.CacheInfo.ContextHit {
		t.Error("repository context should be shared across models")
	}
}

func TestExecuteContextError(t *testing.T) {
	gh := &fakeGitHub{err: errors.New(errors.ErrCodeRepoNotFound, "Repository not found.")}
	_, err := newRunner(gh, llm.NewScripted(), nil).Execute(context.Background(), Options{RepoURL: "owner/repo"})
	if !errors.Is(err, errors.ErrCodeRepoNotFound) {
		t.Errorf("Execute() error = %v, want REPO_NOT_FOUND", err)
	}
}

func TestMarkdownWithoutLinker(t *testing.T) {
	res := &Result{
		Repo:        github.RepoRef{Owner: "o", Repo: "r"},
		Explanation: "Explained.",
		Components:  []diagram.Component{{Name: "Core", Path: "core"}},
		Mermaid:     "graph TD",
		Stats:       Stats{RenderTime: time.Millisecond},
	}
	got := Markdown(res, nil)
	want := "# o/r\n\n## Architecture\n\nExplained.\n\n## Components\n\n- **Core**: `core`\n\n## Diagram\n\n```mermaid\ngraph TD\n```\n"
	if got != want {
		t.Errorf("Markdown() = %q, want %q", got, want)
	}
}
