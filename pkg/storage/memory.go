package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize bounds the memory store when no size is configured.
const DefaultMemorySize = 1000

// MemoryStore keeps diagrams in a bounded LRU. Evicting a diagram also drops
// it from the slug and repository indexes.
type MemoryStore struct {
	mu     sync.Mutex
	byID   *lru.Cache[string, Diagram]
	bySlug map[string]string
	byRepo map[string]string
	now    func() time.Time
}

// NewMemoryStore creates a store holding at most size diagrams.
// A size of zero or less uses [DefaultMemorySize].
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	s := &MemoryStore{
		bySlug: make(map[string]string),
		byRepo: make(map[string]string),
		now:    time.Now,
	}
	// The eviction callback runs inside Add/Remove, which are only called
	// with s.mu held.
	c, err := lru.NewWithEvict(size, func(id string, d Diagram) {
		delete(s.bySlug, d.Slug)
		if s.byRepo[repoKey(d.Owner, d.Repo, d.Branch)] == id {
			delete(s.byRepo, repoKey(d.Owner, d.Repo, d.Branch))
		}
	})
	if err != nil {
		return nil, err
	}
	s.byID = c
	return s, nil
}

func (s *MemoryStore) Save(ctx context.Context, d *Diagram) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repoKey(d.Owner, d.Repo, strings.TrimSpace(d.Branch))
	if id, ok := s.byRepo[key]; ok {
		if prev, ok := s.byID.Peek(id); ok {
			d.ID, d.Slug, d.CreatedAt = prev.ID, prev.Slug, prev.CreatedAt
		}
	}
	if err := prepare(d, s.now()); err != nil {
		return err
	}
	s.byID.Add(d.ID, *d)
	s.bySlug[d.Slug] = d.ID
	s.byRepo[repoKey(d.Owner, d.Repo, d.Branch)] = d.ID
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

func (s *MemoryStore) get(id string) (*Diagram, error) {
	d, ok := s.byID.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) GetBySlug(ctx context.Context, slug string) (*Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return s.get(id)
}

func (s *MemoryStore) Latest(ctx context.Context, owner, repo string) (*Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *Diagram
	for _, d := range s.byID.Values() {
		if d.Owner != lower(owner) || d.Repo != lower(repo) {
			continue
		}
		if latest == nil || d.UpdatedAt.After(latest.UpdatedAt) {
			latest = &d
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.byID.Values()
	out := make([]*Diagram, 0, len(all))
	for i := range all {
		out = append(out, &all[i])
	}
	slices.SortStableFunc(out, func(a, b *Diagram) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if limit = ClampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.byID.Remove(id) {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of stored diagrams.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID.Len()
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
