package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureSendsNotifications(t *testing.T) {
	t.Parallel()

	db, connStr, cleanupFunc := SetupTestDB(t)
	t.Cleanup(cleanupFunc)

	ctx := context.Background()

	listener, err := pgx.Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close(ctx) })

	_, err = listener.Exec(ctx, "LISTEN tms")
	require.NoError(t, err)

	_, err = db.Exec(ctx,
		`INSERT INTO incident (name, event_date, description) VALUES ('I1', now(), 'CRASH')`)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := listener.WaitForNotification(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, "tms", n.Channel)
	assert.Equal(t, "incident", n.Payload)
}

func TestFixtureViews(t *testing.T) {
	t.Parallel()

	db, _, cleanupFunc := SetupTestDB(t)
	t.Cleanup(cleanupFunc)

	ctx := context.Background()
	for _, view := range []string{
		"camera_view", "detector_view", "dms_view", "dms_message_view",
		"incident_view", "sign_config_view", "font_view", "graphic_view",
	} {
		var count int
		require.NoError(t, db.QueryRow(ctx, "SELECT count(*) FROM "+view).Scan(&count), view)
		assert.Zero(t, count, view)
	}
}
