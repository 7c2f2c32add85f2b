package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Emit("/out/a")
	q.Emit("/out/b")
	q.Emit("/out/c")
	assert.Equal(t, 3, q.Len())

	ctx := context.Background()
	for _, want := range []string{"/out/a", "/out/b", "/out/c"} {
		got, ok, err := q.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, q.Len())
}

func TestQueue_Drain(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	assert.Nil(t, q.Drain())

	q.Emit("/out/a")
	q.Emit("/out/a")
	q.Emit("/out/b")

	assert.Equal(t, []string{"/out/a", "/out/a", "/out/b"}, q.Drain())
	assert.Zero(t, q.Len())

	q.Emit("/out/c")
	assert.Equal(t, []string{"/out/c"}, q.Drain())
}

func TestQueue_NextBlocksUntilEmit(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	done := make(chan string, 1)

	go func() {
		path, ok, err := q.Next(context.Background())
		if err == nil && ok {
			done <- path
		}
	}()

	// Give the consumer time to block
	time.Sleep(10 * time.Millisecond)
	q.Emit("/out/incident")

	select {
	case path := <-done:
		assert.Equal(t, "/out/incident", path)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Emit")
	}
}

func TestQueue_Close(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	q.Emit("/out/a")
	q.Close()
	q.Close()

	// Emitting after close is dropped
	q.Emit("/out/b")

	ctx := context.Background()
	path, ok, err := q.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok, "queued items survive close")
	assert.Equal(t, "/out/a", path)

	_, ok, err = q.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_CloseWakesConsumer(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	done := make(chan bool, 1)

	go func() {
		_, ok, _ := q.Next(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestQueue_NextContextCancelled(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok, err := q.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
}

func TestQueue_EmitNeverBlocks(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	const total = 10000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range total {
			q.Emit(fmt.Sprintf("/out/%d", i))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked without a consumer")
	}
	assert.Equal(t, total, q.Len())
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	q := NewQueue()
	const total = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range total {
			q.Emit(fmt.Sprintf("/out/%d", i))
		}
		q.Close()
	}()

	var got []string
	ctx := context.Background()
	for {
		path, ok, err := q.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, path)
		got = append(got, q.Drain()...)
	}
	wg.Wait()

	require.Len(t, got, total)
	for i, path := range got {
		assert.Equal(t, fmt.Sprintf("/out/%d", i), path)
	}
}
