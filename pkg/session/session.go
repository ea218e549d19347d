// Package session persists the GitHub login of the CLI.
//
// `easygithub github login` runs the OAuth device flow and saves the token as
// a [Session]. Later commands use the stored token as a personal access token
// when no PAT is configured.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/easygithub/easygithub/pkg/integrations/github"
)

// ErrNotLoggedIn is returned by [CLIStore.Require] when no valid session
// exists.
var ErrNotLoggedIn = errors.New("not logged in (run 'easygithub github login' first)")

// DefaultTTL is how long a CLI login stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// Session stores one authenticated login.
type Session struct {
	ID          string       `json:"id"`
	AccessToken string       `json:"access_token"`
	User        *github.User `json:"user"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Login returns the GitHub login name, or "" when unknown.
func (s *Session) Login() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.Login
}

// Store is implemented by session backends.
type Store interface {
	// Get returns nil, nil when the session does not exist or has expired.
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	// Cleanup removes expired sessions.
	Cleanup(ctx context.Context) error
}

// GenerateID creates a random session ID.
func GenerateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// New creates a session for token and user that expires after ttl.
func New(accessToken string, user *github.User, ttl time.Duration) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:          id,
		AccessToken: accessToken,
		User:        user,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}, nil
}
