// Package database provides the schema fixture used by integration tests.
// It creates the tables and views backing the built-in resources, together
// with triggers that send change notifications on the tms channel.
package database

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
)

//go:embed fixtures/views.up.sql
var viewsUp string

//go:embed fixtures/views.down.sql
var viewsDown string

// ApplyFixture creates the fixture schema
func ApplyFixture(ctx context.Context, db *pgx.Conn) error {
	_, err := db.Exec(ctx, viewsUp)
	return err
}

// DropFixture removes the fixture schema
func DropFixture(ctx context.Context, db *pgx.Conn) error {
	_, err := db.Exec(ctx, viewsDown)
	return err
}
