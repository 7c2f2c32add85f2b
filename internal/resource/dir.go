package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DirResource writes one file per row into a directory named after the resource.
// The query must return a key column, used as the file name, and a text column
// holding the file content.
type DirResource struct {
	name  Name
	query string
}

var _ Resource = (*DirResource)(nil)

// NewDirResource creates a DirResource named name
func NewDirResource(name Name, query string) *DirResource {
	return &DirResource{name: name, query: query}
}

// Name returns the resource name
func (r *DirResource) Name() Name {
	return r.name
}

// Fetch writes <dir>/<name>/<key> for every row, emitting each path after it
// is in place, then removes files the query no longer produces.
func (r *DirResource) Fetch(ctx context.Context, q Querier, dir string, sink Sink) (int, error) {
	rows, err := q.Query(ctx, r.query)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", r.name, err)
	}

	target := filepath.Join(dir, string(r.name))
	written := make(map[string]struct{})

	var key, body string
	_, err = pgx.ForEachRow(rows, []any{&key, &body}, func() error {
		if err := validateKey(key); err != nil {
			return err
		}
		if _, dup := written[key]; dup {
			return fmt.Errorf("duplicate key %q", key)
		}

		path := filepath.Join(target, key)
		if err := writeFileAtomic(path, []byte(body)); err != nil {
			return err
		}
		written[key] = struct{}{}
		sink.Emit(path)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to export %s: %w", r.name, err)
	}

	if err := removeStale(target, written); err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", r.name, err)
	}

	return len(written), nil
}

// validateKey rejects keys that would escape the resource directory
func validateKey(key string) error {
	if key == "" {
		return errors.New("empty key")
	}
	if strings.ContainsAny(key, `/\`) || !filepath.IsLocal(key) || isTempFile(key) {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

// removeStale deletes regular files in dir that are not in keep
func removeStale(dir string, keep map[string]struct{}) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || isTempFile(name) {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		slog.Debug("Removed stale file", "dir", dir, "file", name)
	}
	return nil
}
