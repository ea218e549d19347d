package github

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/easygithub/easygithub/pkg/buildinfo"
	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations"
)

const apiURL = "https://api.github.com"

// fallbackBranches are tried in order when the default branch tree is unavailable.
var fallbackBranches = []string{"main", "master"}

// Client fetches repository context from the GitHub REST API.
type Client struct {
	*integrations.Client
	auth    *Authenticator
	baseURL string
	logger  *log.Logger
}

type options struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL points the client at a different API root, used by tests and
// GitHub Enterprise.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client used for API and App token requests.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.http = h }
}

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewClient creates a GitHub API client. Responses are cached in ch for ttl;
// pass a nil cache to disable caching.
func NewClient(creds Credentials, ch cache.Cache, ttl time.Duration, opts ...Option) *Client {
	o := options{baseURL: apiURL, logger: log.Default()}
	for _, fn := range opts {
		fn(&o)
	}

	c := &Client{
		Client:  integrations.NewClient(ch, "github", ttl, map[string]string{"User-Agent": buildinfo.UserAgent()}),
		auth:    NewAuthenticator(creds, o.logger),
		baseURL: o.baseURL,
		logger:  o.logger,
	}
	c.auth.baseURL = o.baseURL
	c.SetKeyer(cache.NewKeyer().Scoped(c.auth.Scope()))
	if o.http != nil {
		c.SetHTTPClient(o.http)
		c.auth.http.SetHTTPClient(o.http)
	}
	c.SetHeaderFunc(c.auth.Headers)
	return c
}

// AuthMode reports how the client authenticates.
func (c *Client) AuthMode() AuthMode { return c.auth.Mode() }

// CacheScope returns the key prefix that separates cached results by
// credentials. See [Authenticator.Scope].
func (c *Client) CacheScope() string { return c.auth.Scope() }

// RepoInfo fetches repository metadata.
func (c *Client) RepoInfo(ctx context.Context, ref RepoRef) (*RepoInfo, error) {
	var data apiRepoResponse
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, ref.Owner, ref.Repo)
	key := "repo:" + strings.ToLower(ref.String())
	err := c.Cached(ctx, key, false, &data, func() error {
		return c.Get(ctx, url, &data)
	})
	if err != nil {
		return nil, apiError(err, "fetch repository %s", ref)
	}
	return data.info(), nil
}

// RepoExists returns nil when the repository is reachable with the current
// credentials.
func (c *Client) RepoExists(ctx context.Context, ref RepoRef) error {
	_, err := c.RepoInfo(ctx, ref)
	return err
}

// DefaultBranch returns the repository's default branch, or "" when the
// repository lookup fails.
func (c *Client) DefaultBranch(ctx context.Context, ref RepoRef) string {
	info, err := c.RepoInfo(ctx, ref)
	if err != nil {
		return ""
	}
	return info.DefaultBranch
}

// FileTree fetches the recursive tree, trying the default branch and then the
// common branch names. Excluded paths are filtered out.
func (c *Client) FileTree(ctx context.Context, ref RepoRef) (*Tree, error) {
	return c.FileTreeAt(ctx, ref, "")
}

// FileTreeAt is FileTree with an explicit branch tried first.
func (c *Client) FileTreeAt(ctx context.Context, ref RepoRef, branch string) (*Tree, error) {
	var candidates []string
	if branch != "" {
		candidates = append(candidates, branch)
	} else if def := c.DefaultBranch(ctx, ref); def != "" {
		candidates = append(candidates, def)
	}
	for _, b := range fallbackBranches {
		if !slices.Contains(candidates, b) {
			candidates = append(candidates, b)
		}
	}

	var lastErr error
	for _, b := range candidates {
		tree, err := c.fetchTree(ctx, ref, b)
		if err == nil {
			if tree.Truncated {
				c.logger.Warn("file tree truncated by GitHub", "repo", ref.String(), "branch", b)
			}
			return tree, nil
		}
		if stderrors.Is(err, integrations.ErrRateLimited) {
			return nil, apiError(err, "fetch file tree for %s", ref)
		}
		lastErr = err
	}
	return nil, errors.Wrap(errors.ErrCodeTreeUnavailable, lastErr,
		"Could not fetch repository file tree. Repository might not exist, be empty or private.")
}

func (c *Client) fetchTree(ctx context.Context, ref RepoRef, branch string) (*Tree, error) {
	var data apiTreeResponse
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", c.baseURL, ref.Owner, ref.Repo, integrations.PathEscape(branch))
	key := fmt.Sprintf("tree:%s@%s", strings.ToLower(ref.String()), branch)
	err := c.Cached(ctx, key, false, &data, func() error {
		return c.Get(ctx, url, &data)
	})
	if err != nil {
		return nil, err
	}
	if data.Tree == nil {
		return nil, fmt.Errorf("%w: empty tree for %s@%s", integrations.ErrNotFound, ref, branch)
	}

	tree := &Tree{Branch: branch, Dirs: map[string]bool{}, Truncated: data.Truncated}
	for _, item := range data.Tree {
		if !ShouldInclude(item.Path) {
			continue
		}
		switch item.Type {
		case "blob":
			tree.Paths = append(tree.Paths, item.Path)
		case "tree":
			tree.Dirs[item.Path] = true
		}
	}
	return tree, nil
}

// Readme returns the README text. The repository is checked first so a
// missing repository and a missing README are reported distinctly.
func (c *Client) Readme(ctx context.Context, ref RepoRef) (string, error) {
	if err := c.RepoExists(ctx, ref); err != nil {
		return "", err
	}

	var data apiReadmeResponse
	url := fmt.Sprintf("%s/repos/%s/%s/readme", c.baseURL, ref.Owner, ref.Repo)
	if err := c.Get(ctx, url, &data); err != nil {
		if stderrors.Is(err, integrations.ErrNotFound) {
			return "", errors.New(errors.ErrCodeReadmeNotFound, "No README found for the specified repository.")
		}
		return "", apiError(err, "fetch README for %s", ref)
	}

	if data.DownloadURL != "" {
		text, err := c.GetText(ctx, data.DownloadURL)
		if err == nil {
			return text, nil
		}
		c.logger.Debug("README download failed, using inline content", "repo", ref.String(), "err", err)
	}
	if data.Content == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(data.Content, "\n", ""))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeNetwork, err, "decode README content")
	}
	return string(raw), nil
}

// Context fetches metadata, file tree and README. A missing README is not
// fatal and yields an empty string.
func (c *Client) Context(ctx context.Context, ref RepoRef, branch string) (*RepoContext, error) {
	info, err := c.RepoInfo(ctx, ref)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = info.DefaultBranch
	}
	tree, err := c.FileTreeAt(ctx, ref, branch)
	if err != nil {
		return nil, err
	}
	readme, err := c.Readme(ctx, ref)
	if err != nil {
		if !errors.Is(err, errors.ErrCodeReadmeNotFound) {
			return nil, err
		}
		c.logger.Warn("repository has no README", "repo", ref.String())
		readme = ""
	}
	return &RepoContext{Ref: ref, Info: info, Tree: tree, Readme: readme}, nil
}

// FetchUser retrieves the authenticated user's info.
func (c *Client) FetchUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.Get(ctx, c.baseURL+"/user", &user); err != nil {
		return nil, apiError(err, "fetch user")
	}
	return &user, nil
}

// maxRepoPages bounds FetchUserRepos pagination.
const maxRepoPages = 10

// FetchUserRepos retrieves the authenticated user's repositories, most
// recently updated first. Private repos are included when the token has the
// repo scope.
func (c *Client) FetchUserRepos(ctx context.Context) ([]Repo, error) {
	var all []Repo
	for page := 1; page <= maxRepoPages; page++ {
		var repos []Repo
		url := fmt.Sprintf("%s/user/repos?sort=updated&per_page=100&page=%d", c.baseURL, page)
		if err := c.Get(ctx, url, &repos); err != nil {
			return nil, apiError(err, "fetch repositories")
		}
		if len(repos) == 0 {
			break
		}
		all = append(all, repos...)
	}
	return all, nil
}

// apiError maps integration sentinel errors to coded errors.
func apiError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case stderrors.Is(err, integrations.ErrNotFound):
		return errors.Wrap(errors.ErrCodeRepoNotFound, err, "Repository not found.")
	case stderrors.Is(err, integrations.ErrRateLimited):
		return errors.Wrap(errors.ErrCodeRateLimited, err, "GitHub API rate limit exceeded; configure a token to raise it")
	case stderrors.Is(err, integrations.ErrUnauthorized):
		return errors.Wrap(errors.ErrCodeUnauthorized, err, "%s", msg)
	case errors.GetCode(err) != "":
		return err
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.Wrap(errors.ErrCodeTimeout, err, "%s", msg)
	default:
		return errors.Wrap(errors.ErrCodeNetwork, err, "%s", msg)
	}
}
