package github

import (
	"testing"

	"github.com/easygithub/easygithub/pkg/errors"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		in      string
		want    RepoRef
		wantErr bool
	}{
		{in: "https://github.com/pallets/flask", want: RepoRef{"pallets", "flask"}},
		{in: "https://github.com/pallets/flask.git", want: RepoRef{"pallets", "flask"}},
		{in: "https://github.com/pallets/flask/tree/main/src", want: RepoRef{"pallets", "flask"}},
		{in: "https://www.github.com/pallets/flask/", want: RepoRef{"pallets", "flask"}},
		{in: "http://github.com/a/b", want: RepoRef{"a", "b"}},
		{in: "git@github.com:ahmedkhaleel2004/gitdiagram.git", want: RepoRef{"ahmedkhaleel2004", "gitdiagram"}},
		{in: "github.com/a/b", want: RepoRef{"a", "b"}},
		{in: "  owner/repo  ", want: RepoRef{"owner", "repo"}},
		{in: "", wantErr: true},
		{in: "https://github.com/onlyowner", wantErr: true},
		{in: "https://gitlab.com/a/b", wantErr: true},
		{in: "owner/repo/extra", wantErr: true},
		{in: "-bad/repo", wantErr: true},
		{in: "owner/re po", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepoURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrCodeInvalidRepoURL) {
					t.Fatalf("ParseRepoURL(%q) err = %v, want INVALID_REPO_URL", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepoURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRepoURL(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLinkURLs(t *testing.T) {
	ref := RepoRef{"o", "r"}
	if got := BlobURL(ref, "main", "./src/app.go"); got != "https://github.com/o/r/blob/main/src/app.go" {
		t.Errorf("BlobURL = %q", got)
	}
	if got := TreeURL(ref, "dev", "src/"); got != "https://github.com/o/r/tree/dev/src" {
		t.Errorf("TreeURL = %q", got)
	}
	if got := TreeURL(ref, "dev", ""); got != "https://github.com/o/r/tree/dev" {
		t.Errorf("TreeURL root = %q", got)
	}
	if got := ref.String(); got != "o/r" {
		t.Errorf("String = %q", got)
	}
}
