package github

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/easygithub/easygithub/pkg/cache"
	"github.com/easygithub/easygithub/pkg/errors"
	"github.com/easygithub/easygithub/pkg/integrations"
)

// AuthMode describes how requests are authenticated.
type AuthMode string

const (
	AuthNone AuthMode = "none"
	AuthPAT  AuthMode = "pat"
	AuthApp  AuthMode = "app"
)

const (
	acceptHeader  = "application/vnd.github+json"
	apiVersion    = "2022-11-28"
	appJWTTTL     = 10 * time.Minute
	appTokenTTL   = time.Hour
	tokenLeeway   = time.Minute
	unauthWarning = "no GitHub credentials provided; using unauthenticated requests limited to 60 requests/hour"
)

// Credentials holds every supported way to authenticate. A personal access
// token wins over GitHub App credentials, which require all three App fields.
type Credentials struct {
	PAT               string `json:"-"`
	AppClientID       string `json:"-"`
	AppPrivateKey     string `json:"-"`
	AppInstallationID string `json:"-"`
}

// Mode returns the authentication mode the credentials select.
func (c Credentials) Mode() AuthMode {
	switch {
	case c.PAT != "":
		return AuthPAT
	case c.AppClientID != "" && c.AppPrivateKey != "" && c.AppInstallationID != "":
		return AuthApp
	default:
		return AuthNone
	}
}

// Authenticator produces request headers for the selected mode.
type Authenticator struct {
	creds   Credentials
	mode    AuthMode
	baseURL string
	http    *integrations.Client
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAuthenticator selects the authentication mode for creds. When no
// credentials are present it logs a warning about the anonymous rate limit.
func NewAuthenticator(creds Credentials, logger *log.Logger) *Authenticator {
	a := &Authenticator{
		creds:   creds,
		mode:    creds.Mode(),
		baseURL: apiURL,
		http:    integrations.NewClient(nil, "", 0, nil),
		now:     time.Now,
	}
	if a.mode == AuthNone && logger != nil {
		logger.Warn(unauthWarning)
	}
	return a
}

// Mode returns the active authentication mode.
func (a *Authenticator) Mode() AuthMode { return a.mode }

// Scope returns a cache key prefix identifying the credentials, so results
// that may include private repositories are only served back to the same
// identity. Anonymous access has an empty scope. Tokens are hashed, never
// stored in keys.
func (a *Authenticator) Scope() string {
	switch a.mode {
	case AuthPAT:
		return "pat:" + cache.HashString(a.creds.PAT)[:16] + ":"
	case AuthApp:
		return "app:" + a.creds.AppClientID + ":" + a.creds.AppInstallationID + ":"
	default:
		return ""
	}
}

// Headers returns the headers for one API request.
func (a *Authenticator) Headers(ctx context.Context) (map[string]string, error) {
	switch a.mode {
	case AuthPAT:
		return map[string]string{
			"Authorization": "token " + a.creds.PAT,
			"Accept":        acceptHeader,
		}, nil
	case AuthApp:
		token, err := a.installationToken(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"Authorization":        "Bearer " + token,
			"Accept":               acceptHeader,
			"X-GitHub-Api-Version": apiVersion,
		}, nil
	default:
		return map[string]string{"Accept": acceptHeader}, nil
	}
}

// installationToken returns the cached installation token, exchanging a fresh
// App JWT when it is missing or about to expire.
func (a *Authenticator) installationToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.token != "" && now.Add(tokenLeeway).Before(a.expiresAt) {
		return a.token, nil
	}

	signed, err := a.appJWT(now)
	if err != nil {
		return "", err
	}

	var resp apiInstallationToken
	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", a.baseURL, a.creds.AppInstallationID)
	headers := map[string]string{
		"Authorization": "Bearer " + signed,
		"Accept":        acceptHeader,
	}
	if err := a.http.Post(ctx, url, headers, bytes.NewReader(nil), &resp); err != nil {
		return "", errors.Wrap(errors.ErrCodeUnauthorized, err, "exchange GitHub App installation token")
	}
	if resp.Token == "" {
		return "", errors.New(errors.ErrCodeUnauthorized, "GitHub App installation token response was empty")
	}

	a.token = resp.Token
	a.expiresAt = now.Add(appTokenTTL)
	if !resp.ExpiresAt.IsZero() && resp.ExpiresAt.Before(a.expiresAt) {
		a.expiresAt = resp.ExpiresAt
	}
	return a.token, nil
}

// appJWT signs the RS256 JWT GitHub Apps use to request installation tokens.
func (a *Authenticator) appJWT(now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(a.creds.AppPrivateKey)))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUnauthorized, err, "parse GitHub App private key")
	}
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTTTL)),
		Issuer:    a.creds.AppClientID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUnauthorized, err, "sign GitHub App JWT")
	}
	return signed, nil
}

// normalizePEM restores newlines in keys stored as a single env-var line.
func normalizePEM(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), `\n`, "\n")
}
