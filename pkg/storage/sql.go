package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"regexp"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Timestamps are stored as Unix milliseconds so both dialects scan them the
// same way.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS diagrams (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL UNIQUE,
  owner TEXT NOT NULL,
  repo TEXT NOT NULL,
  branch TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  explanation TEXT NOT NULL DEFAULT '',
  mapping TEXT NOT NULL DEFAULT '',
  mermaid TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  UNIQUE (owner, repo, branch)
);
CREATE INDEX IF NOT EXISTS idx_diagrams_repo ON diagrams (owner, repo);
CREATE INDEX IF NOT EXISTS idx_diagrams_updated_at ON diagrams (updated_at);
`

const diagramColumns = `id, slug, owner, repo, branch, model, explanation, mapping, mermaid, created_at, updated_at`

// SQLStore implements [Store] on database/sql. The same queries serve
// SQLite and PostgreSQL; placeholders are written as $N and rebound to ? for
// SQLite.
type SQLStore struct {
	db       *sql.DB
	dialect  string
	now      func() time.Time
	cache    *lru.Cache[string, Diagram]
	initOnce sync.Once
	initErr  error
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, storageError(err, "open sqlite %s", path)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, BackendSQLite, 0)
}

// OpenPostgres connects to PostgreSQL through the pgx database/sql driver.
// Reads by ID are served from an LRU of cacheSize entries (1024 when zero).
func OpenPostgres(ctx context.Context, dsn string, cacheSize int) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, storageError(err, "open postgres")
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return newSQLStore(ctx, db, BackendPostgres, cacheSize)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect string, cacheSize int) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageError(err, "connect %s", dialect)
	}
	s := &SQLStore{db: db, dialect: dialect, now: time.Now}
	if cacheSize > 0 {
		c, err := lru.New[string, Diagram](cacheSize)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.cache = c
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.initOnce.Do(func() {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			s.initErr = storageError(err, "create schema")
		}
	})
	return s.initErr
}

var placeholder = regexp.MustCompile(`\$\d+`)

// q rebinds $N placeholders for the current dialect. Queries must use each
// placeholder once and in order.
func (s *SQLStore) q(query string) string {
	if s.dialect == BackendSQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

func (s *SQLStore) Save(ctx context.Context, d *Diagram) error {
	if err := prepare(d, s.now()); err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx, s.q(`
INSERT INTO diagrams (`+diagramColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (owner, repo, branch)
DO UPDATE SET model=excluded.model,
  explanation=excluded.explanation,
  mapping=excluded.mapping,
  mermaid=excluded.mermaid,
  updated_at=excluded.updated_at
RETURNING id, slug, created_at`),
		d.ID, d.Slug, d.Owner, d.Repo, d.Branch, d.Model,
		d.Explanation, d.Mapping, d.Mermaid,
		d.CreatedAt.UnixMilli(), d.UpdatedAt.UnixMilli())

	var created int64
	if err := row.Scan(&d.ID, &d.Slug, &created); err != nil {
		return storageError(err, "save diagram %s", d.FullName())
	}
	d.CreatedAt = time.UnixMilli(created).UTC()
	if s.cache != nil {
		s.cache.Add(d.ID, *d)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Diagram, error) {
	if s.cache != nil {
		if d, ok := s.cache.Get(id); ok {
			return &d, nil
		}
	}
	d, err := s.one(ctx, `SELECT `+diagramColumns+` FROM diagrams WHERE id = $1`, id)
	if err == nil && s.cache != nil {
		s.cache.Add(d.ID, *d)
	}
	return d, err
}

func (s *SQLStore) GetBySlug(ctx context.Context, slug string) (*Diagram, error) {
	return s.one(ctx, `SELECT `+diagramColumns+` FROM diagrams WHERE slug = $1`, slug)
}

func (s *SQLStore) Latest(ctx context.Context, owner, repo string) (*Diagram, error) {
	return s.one(ctx, `SELECT `+diagramColumns+` FROM diagrams
WHERE owner = $1 AND repo = $2 ORDER BY updated_at DESC LIMIT 1`, lower(owner), lower(repo))
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Diagram, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+diagramColumns+` FROM diagrams
ORDER BY updated_at DESC LIMIT $1`), ClampLimit(limit))
	if err != nil {
		return nil, storageError(err, "list diagrams")
	}
	defer rows.Close()

	out := make([]*Diagram, 0, 16)
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, storageError(err, "scan diagram")
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(err, "list diagrams")
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM diagrams WHERE id = $1`), id)
	if err != nil {
		return storageError(err, "delete diagram %s", id)
	}
	if s.cache != nil {
		s.cache.Remove(id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) one(ctx context.Context, query string, args ...any) (*Diagram, error) {
	d, err := scanDiagram(s.db.QueryRowContext(ctx, s.q(query), args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageError(err, "load diagram")
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiagram(row rowScanner) (*Diagram, error) {
	var (
		d                Diagram
		created, updated int64
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Owner, &d.Repo, &d.Branch, &d.Model,
		&d.Explanation, &d.Mapping, &d.Mermaid, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = time.UnixMilli(created).UTC()
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return &d, nil
}

var _ Store = (*SQLStore)(nil)
