// Package artifact stores rendered files such as SVG component maps and
// returns a URL for each.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/easygithub/easygithub/pkg/errors"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New(errors.ErrCodeNotFound, "artifact not found")

// Store saves and loads artifacts by key. Keys are slash-separated relative
// paths such as "owner/repo/3f2a.svg".
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Backend names accepted by [Open].
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendNone  = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string `toml:"backend" yaml:"backend" json:"backend" validate:"omitempty,oneof=local s3 none"`
	Dir       string `toml:"dir" yaml:"dir" json:"dir,omitempty" validate:"required_if=Backend local"`
	BaseURL   string `toml:"base_url" yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	Endpoint  string `toml:"endpoint" yaml:"endpoint" json:"endpoint,omitempty" validate:"required_if=Backend s3"`
	Region    string `toml:"region" yaml:"region" json:"region,omitempty"`
	AccessKey string `toml:"access_key" yaml:"access_key" json:"-" validate:"required_if=Backend s3"`
	SecretKey string `toml:"secret_key" yaml:"secret_key" json:"-" validate:"required_if=Backend s3"`
	Bucket    string `toml:"bucket" yaml:"bucket" json:"bucket,omitempty" validate:"required_if=Backend s3"`
	UseSSL    bool   `toml:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
}

// Open constructs the backend named by cfg.Backend. An empty name or "none"
// returns a nil Store, meaning artifacts are not persisted.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendLocal:
		return wrap(NewLocalStore(cfg.Dir, cfg.BaseURL))
	case BackendS3:
		return wrap(NewS3Store(S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		}))
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}

func wrap[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Key builds the artifact key for a file of one repository.
func Key(owner, repo, name string) string {
	return path.Join(strings.ToLower(owner), strings.ToLower(repo), name)
}

func checkKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if err := errors.ValidateRepoPath(key); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid artifact key %q", key)
	}
	return key, nil
}
