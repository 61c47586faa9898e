// Package blobstore stores full status documents as JSON files under a
// two-level sharded directory layout, with an in-memory LRU in front of the
// read path.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"tagmirror/internal/domain"
)

// Store implements domain.ContentStore on the local filesystem.
type Store struct {
	root  string
	cache *lru.Cache[string, []byte]
}

// New creates a Store rooted at dir (created if missing) with an LRU holding
// up to cacheSize documents.
func New(dir string, cacheSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}
	return &Store{root: dir, cache: cache}, nil
}

// shardDir returns the directory for a status ID. Snowflake-style IDs grow
// with time, so grouping by the digits above the trailing 18 and the
// trailing 14 buckets files into directories of bounded fan-out that fill
// roughly chronologically. Short IDs fall back to a fixed "0" shard.
func (s *Store) shardDir(id string) string {
	dir1 := "0"
	if len(id) > 18 {
		dir1 = id[:len(id)-18]
	}
	dir2 := "0"
	if len(id) > 14 {
		dir2 = id[:len(id)-14]
	}
	return filepath.Join(s.root, dir1, dir2)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.shardDir(id), id+".json")
}

// Put writes the status's raw document, overwriting any previous version.
func (s *Store) Put(ctx context.Context, status *domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := s.shardDir(status.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create shard dir %s: %w", dir, err)
	}

	path := s.path(status.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, status.Raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	s.cache.Add(status.ID, status.Raw)
	return nil
}

// Get loads a status document by ID. Returns domain.ErrStatusNotFound when
// no document is stored under that ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if raw, ok := s.cache.Get(id); ok {
		return domain.DecodeStatus(raw)
	}

	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("status %s: %w", id, domain.ErrStatusNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read status %s: %w", id, err)
	}

	s.cache.Add(id, raw)
	return domain.DecodeStatus(raw)
}

// Walk calls fn for every stored status document. Used to rebuild the index
// from disk.
func (s *Store) Walk(ctx context.Context, fn func(*domain.Status) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		status, err := domain.DecodeStatus(raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return fn(status)
	})
}
