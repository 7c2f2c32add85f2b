package resource

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5"
)

// ListResource writes every row of its query into one JSON array file.
// The query must return a single text column holding one JSON document per row.
type ListResource struct {
	name  Name
	query string
}

var _ Resource = (*ListResource)(nil)

// NewListResource creates a ListResource named name
func NewListResource(name Name, query string) *ListResource {
	return &ListResource{name: name, query: query}
}

// Name returns the resource name
func (r *ListResource) Name() Name {
	return r.name
}

// Fetch writes <dir>/<name> and emits its path.
// The file contains one array element per line.
func (r *ListResource) Fetch(ctx context.Context, q Querier, dir string, sink Sink) (int, error) {
	rows, err := q.Query(ctx, r.query)
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", r.name, err)
	}

	var (
		buf   bytes.Buffer
		row   string
		count int
	)
	buf.WriteByte('[')
	_, err = pgx.ForEachRow(rows, []any{&row}, func() error {
		if count > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
		buf.WriteString(row)
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read %s rows: %w", r.name, err)
	}
	buf.WriteString("\n]\n")

	path := filepath.Join(dir, string(r.name))
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return 0, err
	}
	sink.Emit(path)

	return count, nil
}
