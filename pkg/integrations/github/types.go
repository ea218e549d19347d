package github

import (
	"strings"
	"time"
)

// RepoRef identifies a repository by owner and name.
type RepoRef struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// String returns "owner/repo".
func (r RepoRef) String() string { return r.Owner + "/" + r.Repo }

// IsZero reports whether r is unset.
func (r RepoRef) IsZero() bool { return r.Owner == "" && r.Repo == "" }

// Owner is the account that owns a repository.
type Owner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// RepoInfo contains repository metadata.
type RepoInfo struct {
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	Description   string     `json:"description"`
	Language      string     `json:"language"`
	DefaultBranch string     `json:"default_branch"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	OpenIssues    int        `json:"open_issues"`
	License       string     `json:"license,omitempty"`
	Topics        []string   `json:"topics,omitempty"`
	Archived      bool       `json:"archived"`
	Private       bool       `json:"private"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	Owner         Owner      `json:"owner"`
}

// TreeEntry represents a file or directory in the repository tree.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // "blob" or "tree"
	Size int    `json:"size,omitempty"`
}

// Tree is the filtered file listing of one branch.
type Tree struct {
	Branch    string          `json:"branch"`
	Paths     []string        `json:"paths"`
	Dirs      map[string]bool `json:"dirs"`
	Truncated bool            `json:"truncated,omitempty"`
}

// String joins the file paths with newlines, the form fed to the model.
func (t *Tree) String() string {
	if t == nil {
		return ""
	}
	return strings.Join(t.Paths, "\n")
}

// HasFile reports whether p is a file in the tree.
func (t *Tree) HasFile(p string) bool {
	if t == nil {
		return false
	}
	for _, q := range t.Paths {
		if q == p {
			return true
		}
	}
	return false
}

// HasDir reports whether p is a directory in the tree.
func (t *Tree) HasDir(p string) bool {
	return t != nil && t.Dirs[strings.TrimSuffix(p, "/")]
}

// RepoContext bundles everything the diagram stages need about a repository.
type RepoContext struct {
	Ref    RepoRef   `json:"ref"`
	Info   *RepoInfo `json:"info,omitempty"`
	Tree   *Tree     `json:"tree"`
	Readme string    `json:"readme"`
}

// User represents a GitHub user.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

// Repo is a summary entry from the authenticated user's repository list.
type Repo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	Language      string `json:"language"`
	Stars         int    `json:"stargazers_count"`
	UpdatedAt     string `json:"updated_at"`
}

// OAuthConfig holds OAuth configuration.
type OAuthConfig struct {
	ClientID string
	// BaseURL overrides https://github.com, used by tests.
	BaseURL string
}

// OAuthToken represents an OAuth access token response.
type OAuthToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// apiRepoResponse is the internal GitHub API response structure.
type apiRepoResponse struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	FullName      string     `json:"full_name"`
	Description   string     `json:"description"`
	Private       bool       `json:"private"`
	DefaultBranch string     `json:"default_branch"`
	Language      string     `json:"language"`
	Stars         int        `json:"stargazers_count"`
	Forks         int        `json:"forks_count"`
	OpenIssues    int        `json:"open_issues_count"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	License       *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	Topics   []string `json:"topics"`
	Archived bool     `json:"archived"`
	Owner    Owner    `json:"owner"`
}

func (r *apiRepoResponse) info() *RepoInfo {
	info := &RepoInfo{
		Name:          r.Name,
		FullName:      r.FullName,
		Description:   r.Description,
		Language:      r.Language,
		DefaultBranch: r.DefaultBranch,
		Stars:         r.Stars,
		Forks:         r.Forks,
		OpenIssues:    r.OpenIssues,
		Topics:        r.Topics,
		Archived:      r.Archived,
		Private:       r.Private,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		Owner:         r.Owner,
	}
	if r.License != nil {
		info.License = r.License.SPDXID
	}
	return info
}

type apiTreeResponse struct {
	SHA  string `json:"sha"`
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int    `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

type apiReadmeResponse struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

type apiInstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
