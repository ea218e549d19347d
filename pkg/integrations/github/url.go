package github

import (
	"net/url"
	"strings"

	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations"
)

const webURL = "https://github.com"

// ParseRepoURL extracts the repository reference from s. Accepted forms:
//
//	git@github.com:owner/repo(.git)
//	https://github.com/owner/repo[/tree/main/...]
//	github.com/owner/repo
//	owner/repo
func ParseRepoURL(s string) (RepoRef, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return RepoRef{}, errors.New(errors.ErrCodeInvalidRepoURL, "repository URL is required")
	}

	var segments []string
	switch norm := integrations.NormalizeRepoURL(raw); {
	case strings.Contains(norm, "://"):
		u, err := url.Parse(norm)
		if err != nil {
			return RepoRef{}, errors.Wrap(errors.ErrCodeInvalidRepoURL, err, "invalid repository URL: %s", raw)
		}
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		if host != "github.com" {
			return RepoRef{}, errors.New(errors.ErrCodeInvalidRepoURL, "not a GitHub URL: %s", raw)
		}
		segments = splitPath(u.Path)
	case strings.HasPrefix(strings.ToLower(norm), "github.com/"):
		segments = splitPath(norm[len("github.com/"):])
	default:
		segments = splitPath(norm)
		if len(segments) != 2 {
			return RepoRef{}, errors.New(errors.ErrCodeInvalidRepoURL, "expected owner/repo or a GitHub URL: %s", raw)
		}
	}

	if len(segments) < 2 {
		return RepoRef{}, errors.New(errors.ErrCodeInvalidRepoURL, "URL must include owner and repository: %s", raw)
	}
	ref := RepoRef{Owner: segments[0], Repo: strings.TrimSuffix(segments[1], ".git")}
	if err := ValidateRepoRef(ref.Owner, ref.Repo); err != nil {
		return RepoRef{}, errors.Wrap(errors.ErrCodeInvalidRepoURL, err, "invalid repository %s", ref)
	}
	return ref, nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RepoURL returns the web URL of the repository.
func RepoURL(ref RepoRef) string {
	return webURL + "/" + ref.Owner + "/" + ref.Repo
}

// BlobURL returns the web URL of a file on branch.
func BlobURL(ref RepoRef, branch, path string) string {
	return RepoURL(ref) + "/blob/" + branch + "/" + integrations.PathEscape(cleanPath(path))
}

// TreeURL returns the web URL of a directory on branch.
func TreeURL(ref RepoRef, branch, path string) string {
	p := cleanPath(path)
	if p == "" {
		return RepoURL(ref) + "/tree/" + branch
	}
	return RepoURL(ref) + "/tree/" + branch + "/" + integrations.PathEscape(p)
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	return strings.Trim(p, "/")
}
