package computation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/record"
)

func newContext() *ExecutionContext {
	md := NewMetadata("comp", []string{"in"}, []string{"out"}).
		WithMapping(map[string]string{"out": "physical-out"})
	return NewExecutionContext(md, nil)
}

func TestExecutionContext_ProduceRecord(t *testing.T) {
	ctx := newContext()
	r := record.Of("k", []byte("v"))

	require.NoError(t, ctx.ProduceRecord("out", r))

	got := ctx.Records("out")
	require.Len(t, got, 1)
	assert.True(t, r.Equal(got[0]))
	assert.Equal(t, got, ctx.Records("physical-out"))
	assert.Equal(t, []string{"physical-out"}, ctx.Streams())

	unused := ctx.Records("unused")
	assert.NotNil(t, unused)
	assert.Empty(t, unused)

	err := ctx.ProduceRecord("bogus", r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUndeclaredStream))
	assert.True(t, errors.IsConfigError(err))
	assert.True(t, errors.IsFatal(err))
	assert.Len(t, ctx.Records("out"), 1)
}

func TestExecutionContext_PreservesOrderAndClears(t *testing.T) {
	ctx := newContext()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, ctx.ProduceRecord("out", record.Of(k, nil)))
	}
	got := ctx.Records("out")
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Key)
	assert.Equal(t, "c", got[2].Key)

	ctx.ClearRecords()
	assert.Empty(t, ctx.Records("out"))
	assert.Empty(t, ctx.Streams())
}

func TestExecutionContext_RecordsDoNotAliasBuffer(t *testing.T) {
	ctx := newContext()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, ctx.ProduceRecord("out", record.Of(k, nil)))
	}

	got := ctx.Records("out")
	got = append(got, record.Of("caller", nil))
	require.NoError(t, ctx.ProduceRecord("out", record.Of("d", nil)))

	assert.Equal(t, "caller", got[3].Key)
	buffered := ctx.Records("out")
	require.Len(t, buffered, 4)
	assert.Equal(t, "d", buffered[3].Key)
}

func TestExecutionContext_DropRecords(t *testing.T) {
	ctx := newContext()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, ctx.ProduceRecord("out", record.Of(k, nil)))
	}

	ctx.DropRecords("physical-out", 0)
	assert.Len(t, ctx.Records("out"), 3)

	ctx.DropRecords("physical-out", 2)
	got := ctx.Records("out")
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Key)

	ctx.DropRecords("physical-out", 5)
	assert.Empty(t, ctx.Records("out"))
	assert.Empty(t, ctx.Streams())
}

func TestExecutionContext_Timers(t *testing.T) {
	ctx := newContext()

	err := ctx.SetTimer("", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmptyTimerKey))

	require.NoError(t, ctx.SetTimer("a", 30))
	require.NoError(t, ctx.SetTimer("b", 10))
	require.NoError(t, ctx.SetTimer("c", 20))
	require.NoError(t, ctx.SetTimer("a", 5))

	assert.Equal(t, map[string]int64{"a": 5, "b": 10, "c": 20}, ctx.Timers())
	assert.Equal(t, []string{"a", "b"}, ctx.DueTimers(15))

	ctx.RemoveTimer("a")
	timers := ctx.Timers()
	assert.NotContains(t, timers, "a")

	timers["z"] = 1
	assert.NotContains(t, ctx.Timers(), "z")
}

func TestExecutionContext_CheckpointFlag(t *testing.T) {
	ctx := newContext()
	assert.False(t, ctx.RequireCheckpoint())

	ctx.AskForCheckpoint()
	ctx.ClearRecords()
	assert.True(t, ctx.RequireCheckpoint())

	ctx.RemoveCheckpointFlag()
	assert.False(t, ctx.RequireCheckpoint())
}

func TestExecutionContext_SourceLowWatermark(t *testing.T) {
	ctx := newContext()
	assert.Equal(t, int64(0), ctx.SourceLowWatermark())
	ctx.SetSourceLowWatermark(1234)
	assert.Equal(t, int64(1234), ctx.SourceLowWatermark())
}
