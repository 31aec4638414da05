//go:build integration

package jslog

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/natsclient"
)

var sharedNATS *natsclient.TestClient

func TestMain(m *testing.M) {
	tc, err := natsclient.NewSharedTestClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot start NATS: %v\n", err)
		os.Exit(1)
	}
	sharedNATS = tc
	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

func newLog(t *testing.T, prefix string) *Log {
	t.Helper()
	l, err := New(sharedNATS.Client, Config{Prefix: prefix, Storage: "memory"}, nil)
	require.NoError(t, err)
	return l
}

func TestIntegration_AppendReadCommit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	l := newLog(t, "arc")

	require.NoError(t, l.CreateStream(ctx, "input", 2))
	require.NoError(t, l.CreateStream(ctx, "input", 2))
	assert.True(t, errors.IsConfigError(l.CreateStream(ctx, "input", 3)))

	n, err := l.Partitions(ctx, "input")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for i := 0; i < 5; i++ {
		off, err := l.Append(ctx, "input", 1, []byte(fmt.Sprintf("m%d", i)))
		require.NoError(t, err)
		assert.Equal(t, int64(i), off.Position)
	}

	entries, err := l.Read(ctx, "input", 1, 2, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "m2", string(entries[0].Data))
	assert.Equal(t, int64(4), entries[2].Offset.Position)

	entries, err = l.Read(ctx, "input", 0, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	pos, err := l.Committed(ctx, "g", "input", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	require.NoError(t, l.Commit(ctx, "g", "input", 1, 5))
	pos, err = l.Committed(ctx, "g", "input", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos)
}

func TestIntegration_UnknownStream(t *testing.T) {
	ctx := context.Background()
	l := newLog(t, "unk")

	_, err := l.Append(ctx, "nope", 0, []byte("x"))
	assert.True(t, errors.Is(err, errors.ErrUndeclaredStream))
	_, err = l.Partitions(ctx, "nope")
	assert.True(t, errors.Is(err, errors.ErrUndeclaredStream))
}

func TestIntegration_ObjectBlobStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewObjectBlobStore(ctx, sharedNATS.Client, "blobs")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "record-1", []byte("large payload")))
	data, err := store.Get(ctx, "record-1")
	require.NoError(t, err)
	assert.Equal(t, "large payload", string(data))

	_, err = store.Get(ctx, "record-missing")
	assert.True(t, errors.Is(err, errors.ErrKeyNotFound))
}

func TestIntegration_ReadSkipsRemovedMessages(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	l := newLog(t, "gap")
	require.NoError(t, l.CreateStream(ctx, "events", 1))

	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, "events", 0, []byte(fmt.Sprintf("old%d", i)))
		require.NoError(t, err)
	}
	s, err := l.partitionStream(ctx, "events", 0)
	require.NoError(t, err)
	require.NoError(t, s.Purge(ctx))

	for i := 0; i < 2; i++ {
		_, err := l.Append(ctx, "events", 0, []byte(fmt.Sprintf("new%d", i)))
		require.NoError(t, err)
	}

	entries, err := l.Read(ctx, "events", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new0", string(entries[0].Data))
	assert.Equal(t, int64(5), entries[0].Offset.Position)
	assert.Equal(t, int64(6), entries[1].Offset.Position)

	entries, err = l.Read(ctx, "events", 0, 7, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIntegration_ReadAfterMaxAge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	l, err := New(sharedNATS.Client, Config{Prefix: "aged", Storage: "memory", MaxAge: time.Second}, nil)
	require.NoError(t, err)
	require.NoError(t, l.CreateStream(ctx, "events", 1))

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, "events", 0, []byte("expiring"))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		entries, err := l.Read(ctx, "events", 0, 0, 10)
		return err == nil && len(entries) == 0
	}, 10*time.Second, 200*time.Millisecond)

	off, err := l.Append(ctx, "events", 0, []byte("fresh"))
	require.NoError(t, err)
	entries, err := l.Read(ctx, "events", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, off.Position, entries[0].Offset.Position)
}
