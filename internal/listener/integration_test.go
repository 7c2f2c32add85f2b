package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/view-exporter/database"
	"github.com/stacklok/view-exporter/internal/db"
	"github.com/stacklok/view-exporter/internal/dispatch"
	"github.com/stacklok/view-exporter/internal/resource"
)

func TestListenerWithPostgres(t *testing.T) {
	t.Parallel()

	admin, connStr, cleanupFunc := database.SetupTestDB(t)
	t.Cleanup(cleanupFunc)

	ctx := context.Background()
	_, err := admin.Exec(ctx, `INSERT INTO incident (name, event_date, description)
		VALUES ('I1', '2024-01-15 12:00:00+00', 'CRASH')`)
	require.NoError(t, err)

	session, err := db.Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close(context.Background()) })

	reg, err := resource.NewRegistry(resource.Defaults()...)
	require.NoError(t, err)

	outDir := t.TempDir()
	queue := dispatch.NewQueue()
	observer := newRecordingObserver()
	l := New(session, reg, queue, WithOutputDir(outDir), WithObserver(observer))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- l.Run(runCtx)
	}()

	require.Eventually(t, observer.bootstrapped, 30*time.Second, 50*time.Millisecond)

	// Timestamps are rendered in the session time zone
	data, err := os.ReadFile(filepath.Join(outDir, "incident"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"I1"`)
	assert.Contains(t, string(data), `"event_date":"2024-01-15T06:00:00-06:00"`)

	// Empty views still produce a valid list file
	data, err = os.ReadFile(filepath.Join(outDir, "camera_pub"))
	require.NoError(t, err)
	assert.Equal(t, "[\n]\n", string(data))

	bootstrapPaths := queue.Drain()
	assert.Contains(t, bootstrapPaths, filepath.Join(outDir, "incident"))

	// A burst of changes to the same resource coalesces into a single fetch
	for _, stmt := range []string{
		`INSERT INTO incident (name, event_date, description) VALUES ('I2', now(), 'STALL')`,
		`UPDATE incident SET confirmed = true WHERE name = 'I2'`,
		`INSERT INTO font (name, f_number, height, width, line_spacing, char_spacing)
			VALUES ('_07_line', 1, 7, 0, 2, 1), ('_09_full', 2, 9, 0, 3, 1)`,
	} {
		_, err := admin.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return observer.completedCount("incident") >= 2 && observer.completedCount("font") >= 2
	}, 10*time.Second, 50*time.Millisecond)

	data, err = os.ReadFile(filepath.Join(outDir, "incident"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"I2"`)
	assert.FileExists(t, filepath.Join(outDir, "font", "_07_line"))
	assert.FileExists(t, filepath.Join(outDir, "font", "_09_full"))

	// Notifications that do not name a resource are skipped
	_, err = admin.Exec(ctx, `SELECT pg_notify('tms', 'detectors_old')`)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		observer.mu.Lock()
		defer observer.mu.Unlock()
		return len(observer.unknown) == 1
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("listener did not stop after cancellation")
	}
}
