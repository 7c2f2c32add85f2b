package resource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows replays fixed string rows through the pgx.Rows interface
type fakeRows struct {
	rows   [][]string
	pos    int
	err    error
	closed bool
}

var _ pgx.Rows = (*fakeRows)(nil)

func (r *fakeRows) Close() { r.closed = true }

func (r *fakeRows) Err() error { return r.err }

func (*fakeRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

func (*fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("expected %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		s, ok := d.(*string)
		if !ok {
			return errors.New("unsupported scan destination")
		}
		*s = row[i]
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	row := r.rows[r.pos-1]
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	return values, nil
}

func (*fakeRows) RawValues() [][]byte { return nil }

func (*fakeRows) Conn() *pgx.Conn { return nil }

// querierFunc adapts a function to the Querier interface
type querierFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

func (f querierFunc) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f(ctx, sql, args...)
}

// rowsQuerier returns a Querier answering every query with rows
func rowsQuerier(rows ...[]string) Querier {
	return querierFunc(func(context.Context, string, ...any) (pgx.Rows, error) {
		return &fakeRows{rows: rows}, nil
	})
}

// pathRecorder collects emitted paths
type pathRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (p *pathRecorder) Emit(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
}
