package resource

import (
	"context"

	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -destination=mocks/mock_resource.go -package=mocks -source=resource.go

// Name identifies an exportable view. Names are case-sensitive and double as
// the change-notification payload.
type Name string

// Querier is the subset of a database connection resources need
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Sink receives the path of every artifact a fetch writes
type Sink interface {
	// Emit hands over ownership of path; it must not block
	Emit(path string)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(path string)

// Emit calls f(path)
func (f SinkFunc) Emit(path string) {
	f(path)
}

// Resource materializes one view into files
type Resource interface {
	// Name returns the registered name of the resource
	Name() Name

	// Fetch writes the current state of the view beneath dir, emits the path of
	// each written file to sink and returns the number of items materialized.
	// It fully supersedes the output of any previous Fetch.
	Fetch(ctx context.Context, q Querier, dir string, sink Sink) (int, error)
}

// Registry is a read-only mapping from resource name to Resource
type Registry interface {
	// Names returns every registered name in definition order
	Names() []Name

	// Lookup returns the resource registered under name, if any
	Lookup(name Name) (Resource, bool)
}
