package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/diagram"
	"github.com/easygithub/easygithub/pkg/integrations/github"
	"github.com/easygithub/easygithub/pkg/llm"
)

// upstream serves a minimal GitHub API for owner/repo whose main tree can be
// changed between runs.
type upstream struct {
	mu    sync.Mutex
	paths []string
}

func (u *upstream) setPaths(paths ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.paths = paths
}

func (u *upstream) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":           "repo",
			"full_name":      "owner/repo",
			"default_branch": "main",
		})
	})
	mux.HandleFunc("/repos/owner/repo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		var items []map[string]string
		for _, p := range u.paths {
			items = append(items, map[string]string{"path": p, "type": "blob"})
		}
		json.NewEncoder(w).Encode(map[string]any{"tree": items})
	})
	mux.HandleFunc("/repos/owner/repo/readme", http.NotFound)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteRefreshRefetchesUpstream(t *testing.T) {
	up := &upstream{}
	up.setPaths("main.go")
	srv := up.server(t)

	shared := newCache(t)
	gh := github.NewClient(github.Credentials{}, shared, time.Hour,
		github.WithBaseURL(srv.URL), github.WithLogger(quiet()))
	run := func(refresh bool) *Result {
		t.Helper()
		p := llm.NewScripted(explainOut, mapOut, mermaidOut)
		r := NewRunner(gh, diagram.NewAgent(p, diagram.WithLogger(quiet())), shared, nil, quiet())
		res, err := r.Execute(context.Background(), Options{RepoURL: "owner/repo", Refresh: refresh})
		if err != nil {
			t.Fatalf("Execute(refresh=%v): %v", refresh, err)
		}
		return res
	}

	if res := run(false); res.Stats.TreeFiles != 1 {
		t.Fatalf("first run TreeFiles = %d, want 1", res.Stats.TreeFiles)
	}

	up.setPaths("main.go", "lib.go")
	if res := run(false); res.Stats.TreeFiles != 1 || !res.CacheInfo.ContextHit {
		t.Fatalf("cached run TreeFiles = %d, ContextHit = %v", res.Stats.TreeFiles, res.CacheInfo.ContextHit)
	}

	res := run(true)
	if res.CacheInfo.ContextHit {
		t.Error("refresh should not read the context cache")
	}
	if res.Stats.TreeFiles != 2 {
		t.Errorf("refresh served a stale tree: TreeFiles = %d, want 2", res.Stats.TreeFiles)
	}

	// The refreshed context replaces the cached one.
	if res := run(false); res.Stats.TreeFiles != 2 {
		t.Errorf("after refresh TreeFiles = %d, want 2", res.Stats.TreeFiles)
	}
}

func TestRunnerCloseReleasesAgent(t *testing.T) {
	r := NewRunner(&fakeGitHub{}, diagram.NewAgent(llm.NewScripted(), diagram.WithLogger(quiet())), cache.NewNullCache(), nil, quiet())
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
