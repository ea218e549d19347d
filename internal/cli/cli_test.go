package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/config"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/pipeline"
	"github.com/easygithub/easygithub/pkg/session"
	"github.com/easygithub/easygithub/pkg/storage"
)

// fakeGitHub serves acme/widgets with a small tree and an inline README.
func fakeGitHub(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var auth atomic.Value
	auth.Store("")

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"name":             "widgets",
			"full_name":        "acme/widgets",
			"description":      "Widget factory",
			"default_branch":   "main",
			"language":         "Go",
			"stargazers_count": 7,
		})
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tree": []map[string]string{
				{"path": "cmd", "type": "tree"},
				{"path": "cmd/widgets", "type": "tree"},
				{"path": "cmd/widgets/main.go", "type": "blob"},
				{"path": "README.md", "type": "blob"},
				{"path": "go.mod", "type": "blob"},
			},
			"truncated": false,
		})
	})
	mux.HandleFunc("/repos/acme/widgets/readme", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"name":    "README.md",
			"content": base64.StdEncoding.EncodeToString([]byte("# Widgets\n\nMakes widgets.\n")),
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &auth
}

// testCLI returns a CLI with an in-memory configuration pointing at apiURL.
func testCLI(t *testing.T, apiURL string) *CLI {
	t.Helper()
	cfg := config.Default()
	cfg.GitHub.APIURL = apiURL
	cfg.Cache = cache.Config{Backend: cache.BackendFile, Dir: filepath.Join(t.TempDir(), "cache")}
	cfg.Storage = storage.Config{Backend: storage.BackendMemory}

	c := New(io.Discard, log.InfoLevel)
	c.cfg = cfg
	c.sessionDir = t.TempDir()
	return c
}

func execute(t *testing.T, c *CLI, args ...string) (string, error) {
	t.Helper()
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := New(io.Discard, log.InfoLevel).RootCommand()
	want := []string{"generate", "info", "serve", "cache", "github", "config", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestGenerateDryRun(t *testing.T) {
	srv, _ := fakeGitHub(t)
	c := testCLI(t, srv.URL)
	out := t.TempDir()

	_, err := execute(t, c, "generate", "acme/widgets", "--dry-run", "-o", out, "-f", "mermaid,json,md")
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	mermaid, err := os.ReadFile(filepath.Join(out, "acme-widgets.mmd"))
	if err != nil {
		t.Fatalf("mermaid file missing: %v", err)
	}
	if !strings.Contains(string(mermaid), `click readme "https://github.com/acme/widgets/blob/main/README.md"`) {
		t.Errorf("click path not rewritten:\n%s", mermaid)
	}

	var res pipeline.Result
	data, err := os.ReadFile(filepath.Join(out, "acme-widgets.json"))
	if err != nil {
		t.Fatalf("json file missing: %v", err)
	}
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if res.Branch != "main" {
		t.Errorf("Branch = %q, want main", res.Branch)
	}
	if res.Stats.TreeFiles != 3 {
		t.Errorf("TreeFiles = %d, want 3", res.Stats.TreeFiles)
	}
	if len(res.Components) != 1 || res.Components[0].Path != "README.md" {
		t.Errorf("Components = %+v", res.Components)
	}

	md, err := os.ReadFile(filepath.Join(out, "acme-widgets.md"))
	if err != nil {
		t.Fatalf("markdown file missing: %v", err)
	}
	if !strings.HasPrefix(string(md), "# acme/widgets") {
		t.Errorf("markdown should start with the repository title:\n%s", md)
	}
}

func TestGenerateUsesSessionToken(t *testing.T) {
	srv, auth := fakeGitHub(t)
	c := testCLI(t, srv.URL)

	store, err := session.NewCLIStore(c.sessionDir)
	if err != nil {
		t.Fatal(err)
	}
	sess, _ := session.New("gho_session", &github.User{Login: "octo"}, time.Hour)
	if err := store.SaveSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, c, "generate", "acme/widgets", "--dry-run", "-o", t.TempDir()); err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if got := auth.Load().(string); !strings.Contains(got, "gho_session") {
		t.Errorf("Authorization = %q, want the session token", got)
	}
}

func TestRunnerKeysScopedToSession(t *testing.T) {
	c := testCLI(t, "http://127.0.0.1:0")
	ctx := context.Background()

	anon, _, err := c.newRunner(ctx, c.cfg, runnerOptions{dryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	defer anon.Close()

	store, _ := session.NewCLIStore(c.sessionDir)
	sess, _ := session.New("gho_session", &github.User{Login: "octo"}, time.Hour)
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	authed, gh, err := c.newRunner(ctx, c.cfg, runnerOptions{dryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	defer authed.Close()

	anonKey := anon.Keyer.ContextKey("acme", "widgets", "main")
	authedKey := authed.Keyer.ContextKey("acme", "widgets", "main")
	if anonKey == authedKey {
		t.Errorf("authenticated runner shares key %q with anonymous runner", anonKey)
	}
	if scope := gh.CacheScope(); scope == "" || !strings.HasPrefix(authedKey, scope) {
		t.Errorf("key %q not scoped by %q", authedKey, scope)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	c := testCLI(t, "http://127.0.0.1:0")

	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"generate", "acme/widgets", "--dry-run", "-f", "pdf"}},
		{"bad url", []string{"generate", "not a repo", "--dry-run"}},
		{"missing arg", []string{"generate"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, c, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	res := &pipeline.Result{
		Repo: github.RepoRef{Owner: "acme", Repo: "widgets"},
		Artifacts: map[string][]byte{
			pipeline.FormatMermaid: []byte("flowchart TD\n"),
			pipeline.FormatSVG:     []byte("<svg/>"),
		},
	}

	paths, err := writeArtifacts(dir, res, []string{pipeline.FormatSVG, pipeline.FormatJSON, pipeline.FormatMermaid})
	if err != nil {
		t.Fatalf("writeArtifacts() error: %v", err)
	}
	want := []string{filepath.Join(dir, "acme-widgets.svg"), filepath.Join(dir, "acme-widgets.mmd")}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if data, _ := os.ReadFile(want[0]); string(data) != "<svg/>" {
		t.Errorf("svg content = %q", data)
	}
}

func TestStageMessage(t *testing.T) {
	tests := map[string]string{
		"context": "Fetching repository...",
		"explain": "Explaining architecture...",
		"map":     "Mapping components to paths...",
		"mermaid": "Drawing diagram...",
		"render":  "Rendering...",
		"other":   "Working...",
	}
	for stage, want := range tests {
		if got := stageMessage(stage); got != want {
			t.Errorf("stageMessage(%q) = %q, want %q", stage, got, want)
		}
	}
}

func TestInfo(t *testing.T) {
	srv, _ := fakeGitHub(t)
	c := testCLI(t, srv.URL)

	if _, err := execute(t, c, "info", "acme/widgets", "--depth", "1"); err != nil {
		t.Fatalf("info error: %v", err)
	}
}

func TestRenderFileTree(t *testing.T) {
	root := github.BuildFileTree([]string{"cmd/widgets/main.go", "README.md"}, 1)
	out := renderFileTree("acme/widgets", root)

	for _, want := range []string{"acme/widgets", "cmd/…", "README.md"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "main.go") {
		t.Errorf("depth limit should hide main.go:\n%s", out)
	}

	if got, want := treeSummary(root.CountFiles(), 2), "showing 1 of 2 files (raise --depth to see more)"; got != want {
		t.Errorf("treeSummary = %q, want %q", got, want)
	}
	full := github.BuildFileTree([]string{"cmd/widgets/main.go", "README.md"}, 0)
	if got := treeSummary(full.CountFiles(), 2); got != "" {
		t.Errorf("complete tree summary = %q, want empty", got)
	}
}

func TestCachePath(t *testing.T) {
	c := testCLI(t, "")
	out, err := execute(t, c, "cache", "path")
	if err != nil {
		t.Fatalf("cache path error: %v", err)
	}
	if strings.TrimSpace(out) != c.cfg.Cache.Dir {
		t.Errorf("cache path = %q, want %q", out, c.cfg.Cache.Dir)
	}

	c.cfg.Cache.Backend = cache.BackendRedis
	if _, err := execute(t, c, "cache", "path"); err == nil {
		t.Error("cache path should fail for redis")
	}
}

func TestCacheClear(t *testing.T) {
	c := testCLI(t, "")
	fc, err := cache.NewFileCache(c.cfg.Cache.Dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = fc.Set(ctx, "a", []byte(`"x"`), time.Hour)
	_ = fc.Set(ctx, "b", []byte(`"y"`), time.Hour)

	if _, err := execute(t, c, "cache", "clear"); err != nil {
		t.Fatalf("cache clear error: %v", err)
	}
	if _, ok, _ := fc.Get(ctx, "a"); ok {
		t.Error("entry should be removed by cache clear")
	}
}

func TestConfigShow(t *testing.T) {
	c := testCLI(t, "")
	c.cfg.LLM.APIKey = "sk-secret"
	c.cfg.GitHub.PAT = "ghp_secret"

	out, err := execute(t, c, "config", "show")
	if err != nil {
		t.Fatalf("config show error: %v", err)
	}
	if strings.Contains(out, "sk-secret") || strings.Contains(out, "ghp_secret") {
		t.Errorf("secrets should be masked:\n%s", out)
	}
	if !strings.Contains(out, "deepseek") {
		t.Errorf("output should contain the provider:\n%s", out)
	}

	out, err = execute(t, c, "config", "show", "--format", "yaml")
	if err != nil {
		t.Fatalf("config show yaml error: %v", err)
	}
	if !strings.Contains(out, "provider: deepseek") {
		t.Errorf("yaml output missing provider:\n%s", out)
	}
}

func TestConfigPath(t *testing.T) {
	c := testCLI(t, "")
	out, err := execute(t, c, "config", "path")
	if err != nil {
		t.Fatalf("config path error: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != len(config.SearchPaths()) {
		t.Errorf("config path printed %d lines, want %d", len(lines), len(config.SearchPaths()))
	}

	out, _ = execute(t, c, "--config", "/tmp/custom.toml", "config", "path")
	if strings.TrimSpace(out) != "/tmp/custom.toml" {
		t.Errorf("explicit config path = %q", out)
	}
}

func TestGitHubLogoutAndWhoami(t *testing.T) {
	c := testCLI(t, "")
	if _, err := execute(t, c, "github", "whoami"); err != session.ErrNotLoggedIn {
		t.Errorf("whoami error = %v, want ErrNotLoggedIn", err)
	}
	if _, err := execute(t, c, "github", "logout"); err != nil {
		t.Errorf("logout without session error: %v", err)
	}
}

func TestGitHubReposRequiresLogin(t *testing.T) {
	c := testCLI(t, "")
	if _, err := execute(t, c, "github", "repos"); err != session.ErrNotLoggedIn {
		t.Errorf("repos error = %v, want ErrNotLoggedIn", err)
	}
}

func TestCompletion(t *testing.T) {
	c := testCLI(t, "")
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		if _, err := execute(t, c, "completion", shell); err != nil {
			t.Errorf("completion %s error: %v", shell, err)
		}
	}
	if _, err := execute(t, c, "completion", "tcsh"); err == nil {
		t.Error("completion tcsh should fail")
	}
}

func TestOpenBrowserRejectsSchemes(t *testing.T) {
	if err := openBrowser("file:///etc/passwd"); err == nil {
		t.Error("openBrowser should reject file URLs")
	}
}
