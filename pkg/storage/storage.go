// Package storage persists generated diagrams.
//
// A [Diagram] is keyed by repository and branch: saving a second diagram for
// the same owner/repo/branch replaces the content but keeps the ID, share
// slug and creation time. Backends:
//
//   - memory: bounded in-process store (tests, single-run CLI)
//   - sqlite: local database file (CLI default for --save)
//   - postgres: shared database for the API server, with an LRU read cache
//   - mongo: document store alternative for the API server
//
// Rendered files (SVG) go to the separate [artifact] subpackage.
//
// [artifact]: github.com/easygithub/easygithub/pkg/storage/artifact
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/easygithub/easygithub/pkg/errors"
)

// ErrNotFound is returned when no diagram matches a lookup.
var ErrNotFound = errors.New(errors.ErrCodeNotFound, "diagram not found")

// Diagram is one stored pipeline result.
type Diagram struct {
	ID          string    `json:"id" bson:"_id"`
	Slug        string    `json:"slug" bson:"slug"`
	Owner       string    `json:"owner" bson:"owner"`
	Repo        string    `json:"repo" bson:"repo"`
	Branch      string    `json:"branch" bson:"branch"`
	Model       string    `json:"model" bson:"model"`
	Explanation string    `json:"explanation" bson:"explanation"`
	Mapping     string    `json:"mapping" bson:"mapping"`
	Mermaid     string    `json:"mermaid" bson:"mermaid"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// FullName returns "owner/repo".
func (d *Diagram) FullName() string {
	return d.Owner + "/" + d.Repo
}

// Store persists diagrams.
type Store interface {
	// Save inserts d or, when a diagram for the same owner/repo/branch
	// exists, replaces its content. On return d carries the stored ID, slug
	// and timestamps.
	Save(ctx context.Context, d *Diagram) error
	Get(ctx context.Context, id string) (*Diagram, error)
	GetBySlug(ctx context.Context, slug string) (*Diagram, error)
	// Latest returns the most recently updated diagram of a repository on
	// any branch.
	Latest(ctx context.Context, owner, repo string) (*Diagram, error)
	// List returns up to limit diagrams, most recently updated first.
	List(ctx context.Context, limit int) ([]*Diagram, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Limits for [Store.List].
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampLimit maps a requested list size into [1, MaxListLimit], using
// DefaultListLimit for non-positive values.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	default:
		return n
	}
}

const slugAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewSlug returns a short random share slug.
func NewSlug() string {
	return gonanoid.MustGenerate(slugAlphabet, 10)
}

// prepare validates d, normalizes the repository key and fills in a fresh
// ID, slug and timestamps. Backends overwrite ID, slug and CreatedAt with
// the stored values when the save turns out to be an update.
func prepare(d *Diagram, now time.Time) error {
	if d == nil {
		return errors.New(errors.ErrCodeInvalidInput, "diagram is nil")
	}
	d.Owner = strings.ToLower(strings.TrimSpace(d.Owner))
	d.Repo = strings.ToLower(strings.TrimSpace(d.Repo))
	d.Branch = strings.TrimSpace(d.Branch)
	if d.Owner == "" || d.Repo == "" {
		return errors.New(errors.ErrCodeInvalidInput, "diagram owner and repo are required")
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Slug == "" {
		d.Slug = NewSlug()
	}
	now = now.UTC().Truncate(time.Millisecond)
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	return nil
}

func repoKey(owner, repo, branch string) string {
	return lower(owner) + "/" + lower(repo) + "@" + branch
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func storageError(err error, format string, args ...any) error {
	return errors.Wrap(errors.ErrCodeStorage, err, format, args...)
}

// Backend names accepted by [Open].
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendNone     = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string `toml:"backend" yaml:"backend" json:"backend" validate:"omitempty,oneof=memory sqlite postgres mongo none"`
	Path          string `toml:"path" yaml:"path" json:"path,omitempty" validate:"required_if=Backend sqlite"`
	DatabaseURL   string `toml:"database_url" yaml:"database_url" json:"-" validate:"required_if=Backend postgres"`
	MongoURI      string `toml:"mongo_uri" yaml:"mongo_uri" json:"-" validate:"required_if=Backend mongo"`
	MongoDatabase string `toml:"mongo_database" yaml:"mongo_database" json:"mongo_database,omitempty"`
	CacheSize     int    `toml:"cache_size" yaml:"cache_size" json:"cache_size,omitempty" validate:"gte=0"`
}

// Open constructs the backend named by cfg.Backend. The "none" backend and
// an empty name return a nil Store, meaning persistence is disabled.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return wrap(NewMemoryStore(cfg.CacheSize))
	case BackendSQLite:
		return wrap(OpenSQLite(ctx, cfg.Path))
	case BackendPostgres:
		return wrap(OpenPostgres(ctx, cfg.DatabaseURL, cfg.CacheSize))
	case BackendMongo:
		return wrap(OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// wrap converts a concrete constructor result into the interface without
// producing a non-nil interface around a nil pointer.
func wrap[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
