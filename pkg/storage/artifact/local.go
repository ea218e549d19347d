package artifact

import (
	"context"
	stderrors "errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/easygithub/easygithub/pkg/errors"
)

// LocalStore writes artifacts below a directory. URLs are baseURL + key when
// a base URL is configured, file:// URLs otherwise.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "artifact directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create artifact directory")
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := checkKey(key)
	if err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeStorage, err, "create artifact directory")
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeStorage, err, "write artifact %s", key)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", errors.Wrap(errors.ErrCodeStorage, err, "write artifact %s", key)
	}
	return s.url(key, p), nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := checkKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "read artifact %s", key)
	}
	return data, nil
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) url(key, p string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

var _ Store = (*LocalStore)(nil)
