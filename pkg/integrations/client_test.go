package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/httputil"
)

func TestNewClient(t *testing.T) {
	c, _ := cache.NewFileCache(t.TempDir())
	defer c.Close()

	headers := map[string]string{"Authorization": "Bearer token"}
	client := NewClient(c, "test", time.Hour, headers)

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.http == nil {
		t.Error("NewClient() http client is nil")
	}
	if client.cache != c {
		t.Error("NewClient() cache not set correctly")
	}
	if client.headers["Authorization"] != "Bearer token" {
		t.Error("NewClient() headers not set correctly")
	}
}

func TestNewClientNilCache(t *testing.T) {
	client := NewClient(nil, "test", time.Hour, nil)
	if client.cache == nil {
		t.Fatal("NewClient() should fall back to a null cache")
	}
	if client.headers != nil {
		t.Error("NewClient() should allow nil headers")
	}
}

func TestClientGet(t *testing.T) {
	type response struct {
		Message string `json:"message"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(response{Message: "hello"})
	}))
	defer server.Close()

	client := NewClient(cache.NewNullCache(), "test", time.Hour, nil)
	client.SetHTTPClient(server.Client())

	var resp response
	if err := client.Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Message != "hello" {
		t.Errorf("Get() message = %q, want %q", resp.Message, "hello")
	}
}

func TestClientGetWithHeadersOverridesDefaults(t *testing.T) {
	var got, dyn string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Override")
		dyn = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, map[string]string{"X-Override": "default"})
	client.SetHTTPClient(server.Client())
	client.SetHeaderFunc(func(context.Context) (map[string]string, error) {
		return map[string]string{"Authorization": "Bearer dyn"}, nil
	})

	var resp map[string]string
	err := client.GetWithHeaders(context.Background(), server.URL, map[string]string{"X-Override": "overridden"}, &resp)
	if err != nil {
		t.Fatalf("GetWithHeaders() error: %v", err)
	}
	if got != "overridden" {
		t.Errorf("header = %q, want %q", got, "overridden")
	}
	if dyn != "Bearer dyn" {
		t.Errorf("dynamic header = %q, want %q", dyn, "Bearer dyn")
	}
}

func TestClientHeaderFuncError(t *testing.T) {
	client := NewClient(nil, "", time.Hour, nil)
	want := errors.New("no token")
	client.SetHeaderFunc(func(context.Context) (map[string]string, error) { return nil, want })

	var v any
	if err := client.Get(context.Background(), "http://127.0.0.1:1", &v); !errors.Is(err, want) {
		t.Errorf("Get() error = %v, want %v", err, want)
	}
}

func TestClientGetText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text response"))
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil)
	client.SetHTTPClient(server.Client())

	text, err := client.GetText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetText() error: %v", err)
	}
	if text != "plain text response" {
		t.Errorf("GetText() = %q, want %q", text, "plain text response")
	}
}

func TestClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"token": "t"})
	}))
	defer server.Close()

	client := NewClient(nil, "", time.Hour, nil)
	client.SetHTTPClient(server.Client())

	var out struct {
		Token string `json:"token"`
	}
	if err := client.Post(context.Background(), server.URL, nil, strings.NewReader("{}"), &out); err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if out.Token != "t" {
		t.Errorf("token = %q, want t", out.Token)
	}
}

func TestClientGet404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil)
	client.SetHTTPClient(server.Client())

	var resp map[string]string
	if err := client.Get(context.Background(), server.URL, &resp); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestClientGet500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(nil, "test", time.Hour, nil)
	client.SetHTTPClient(server.Client())

	var resp map[string]string
	err := client.Get(context.Background(), server.URL, &resp)
	if err == nil {
		t.Fatal("Get() should return error for 500")
	}
	if !httputil.IsRetryable(err) {
		t.Errorf("Get() error should be retryable, got %T", err)
	}
}

func TestClientCached(t *testing.T) {
	c, _ := cache.NewMemoryCache(16)
	client := NewClient(c, "test", time.Hour, nil)

	type testData struct {
		Value string `json:"value"`
	}

	fetchCount := 0
	fetch := func(v *testData) func() error {
		return func() error {
			fetchCount++
			v.Value = "fetched"
			return nil
		}
	}

	var first testData
	if err := client.Cached(context.Background(), "key", false, &first, fetch(&first)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	var second testData
	if err := client.Cached(context.Background(), "key", false, &second, fetch(&second)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if fetchCount != 1 {
		t.Errorf("fetch count = %d, want 1", fetchCount)
	}
	if second.Value != "fetched" {
		t.Errorf("cached value = %q, want fetched", second.Value)
	}
	if _, ok, _ := c.Get(context.Background(), "http:test:key"); !ok {
		t.Error("entry should be stored under the namespaced HTTP key")
	}
}

func TestClientCachedScopedKeyer(t *testing.T) {
	c, _ := cache.NewMemoryCache(16)
	alice := NewClient(c, "test", time.Hour, nil)
	alice.SetKeyer(cache.NewKeyer().Scoped("alice:"))
	bob := NewClient(c, "test", time.Hour, nil)
	bob.SetKeyer(cache.NewKeyer().Scoped("bob:"))

	ctx := context.Background()
	var a string
	if err := alice.Cached(ctx, "repo", false, &a, func() error { a = "private"; return nil }); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}

	fetched := false
	var b string
	if err := bob.Cached(ctx, "repo", false, &b, func() error { fetched = true; b = "public"; return nil }); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if !fetched || b != "public" {
		t.Errorf("second scope got %q (fetched=%v), want its own fetch", b, fetched)
	}
	if _, ok, _ := c.Get(ctx, "alice:http:test:repo"); !ok {
		t.Error("scoped entry missing")
	}
}

func TestClientCachedRefreshContext(t *testing.T) {
	c, _ := cache.NewMemoryCache(16)
	client := NewClient(c, "test", time.Hour, nil)

	fetchCount := 0
	var value string
	fetch := func() error {
		fetchCount++
		value = "v" + string(rune('0'+fetchCount))
		return nil
	}

	ctx := context.Background()
	if err := client.Cached(ctx, "k", false, &value, fetch); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if IsRefresh(ctx) {
		t.Error("plain context should not be a refresh context")
	}

	rctx := WithRefresh(ctx)
	if err := client.Cached(rctx, "k", false, &value, fetch); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if fetchCount != 2 || value != "v2" {
		t.Fatalf("refresh context: fetches = %d, value = %q, want 2 and v2", fetchCount, value)
	}

	var cached string
	if err := client.Cached(ctx, "k", false, &cached, fetch); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if fetchCount != 2 || cached != "v2" {
		t.Errorf("after refresh: fetches = %d, value = %q, want refreshed entry v2", fetchCount, cached)
	}
}

func TestClientCachedRefresh(t *testing.T) {
	c, _ := cache.NewMemoryCache(16)
	client := NewClient(c, "test", time.Hour, nil)

	fetchCount := 0
	var value string
	fetch := func() error {
		fetchCount++
		value = "fetched"
		return nil
	}

	for range 2 {
		if err := client.Cached(context.Background(), "k", true, &value, fetch); err != nil {
			t.Fatalf("Cached() error: %v", err)
		}
	}
	if fetchCount != 2 {
		t.Errorf("fetch count = %d, want 2", fetchCount)
	}
}

func TestClientCachedFetchError(t *testing.T) {
	c, _ := cache.NewMemoryCache(16)
	client := NewClient(c, "test", time.Hour, nil)

	var value string
	fetchCount := 0
	fetch := func() error {
		fetchCount++
		return ErrNotFound
	}

	if err := client.Cached(context.Background(), "missing", false, &value, fetch); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cached() error = %v, want ErrNotFound", err)
	}
	if fetchCount != 1 {
		t.Errorf("non-retryable fetch called %d times, want 1", fetchCount)
	}
	if c.Len() != 0 {
		t.Error("failed fetch must not be cached")
	}
}

func TestCheckStatus(t *testing.T) {
	limited := http.Header{}
	limited.Set("X-RateLimit-Remaining", "0")

	tests := []struct {
		name       string
		code       int
		header     http.Header
		wantErr    bool
		wantType   error
		isRetryErr bool
	}{
		{name: "200 OK", code: 200},
		{name: "201 Created", code: 201},
		{name: "404 Not Found", code: 404, wantErr: true, wantType: ErrNotFound},
		{name: "401 Unauthorized", code: 401, wantErr: true, wantType: ErrUnauthorized},
		{name: "403 rate limited", code: 403, header: limited, wantErr: true, wantType: ErrRateLimited},
		{name: "403 Forbidden", code: 403, wantErr: true, wantType: ErrNetwork},
		{name: "500 Internal Server Error", code: 500, wantErr: true, isRetryErr: true},
		{name: "503 Service Unavailable", code: 503, wantErr: true, isRetryErr: true},
		{name: "400 Bad Request", code: 400, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.header
			if h == nil {
				h = http.Header{}
			}
			err := checkStatus(tt.code, h)

			if !tt.wantErr {
				if err != nil {
					t.Errorf("checkStatus() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("checkStatus() should return error")
			}
			if tt.wantType != nil && !errors.Is(err, tt.wantType) {
				t.Errorf("checkStatus() error = %v, want %v", err, tt.wantType)
			}
			if tt.isRetryErr != httputil.IsRetryable(err) {
				t.Errorf("checkStatus() retryable = %v, want %v", !tt.isRetryErr, tt.isRetryErr)
			}
		})
	}
}

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"https url", "https://github.com/user/repo", "https://github.com/user/repo"},
		{"with .git suffix", "https://github.com/user/repo.git", "https://github.com/user/repo"},
		{"trailing slash", "https://github.com/user/repo/", "https://github.com/user/repo"},
		{"git@ to https", "git@github.com:user/repo", "https://github.com/user/repo"},
		{"git:// to https", "git://github.com/user/repo", "https://github.com/user/repo"},
		{"ssh to https", "ssh://git@github.com/user/repo.git", "https://github.com/user/repo"},
		{"git+ prefix", "git+https://github.com/user/repo", "https://github.com/user/repo"},
		{"with spaces", "  https://github.com/user/repo  ", "https://github.com/user/repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRepoURL(tt.input); got != tt.want {
				t.Errorf("NormalizeRepoURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPathEscape(t *testing.T) {
	if got := PathEscape("docs/my file.md"); got != "docs/my%20file.md" {
		t.Errorf("PathEscape() = %q", got)
	}
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient()
	if client.Timeout != httpTimeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, httpTimeout)
	}
}
