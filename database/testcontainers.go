package database

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type nopLogger struct{}

func (*nopLogger) Printf(_ string, _ ...any) {}

var _ tclog.Logger = (*nopLogger)(nil)

var (
	dbName = "tms"
	dbUser = "tms"
	dbPass = "testpass"
)

// SetupTestDB creates a Postgres container using testcontainers and applies the
// fixture schema. It returns an admin connection and the connection string
// for opening further sessions.
func SetupTestDB(t *testing.T) (*pgx.Conn, string, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()

	// Start Postgres container
	postgresContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPass),
		postgres.BasicWaitStrategies(),
		tc.WithLogger(&nopLogger{}),
	)
	require.NoError(t, err)

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)

	// Apply the fixture, verify it can be removed, then reapply it
	require.NoError(t, ApplyFixture(ctx, db))
	require.NoError(t, DropFixture(ctx, db))
	require.NoError(t, ApplyFixture(ctx, db))

	cleanupFunc := func() {
		//nolint:gosec
		_ = db.Close(ctx)
		tc.CleanupContainer(t, postgresContainer)
	}

	return db, connStr, cleanupFunc
}
