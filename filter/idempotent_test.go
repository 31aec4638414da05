package filter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotentPolicy_SkipsRepeatedKey(t *testing.T) {
	p := NewIdempotentPolicy(0)
	assert.Equal(t, DefaultIdempotentCapacity, p.Capacity())

	assert.False(t, p.ShouldSkip("key", nil))
	assert.True(t, p.ShouldSkip("key", nil))
}

func TestIdempotentPolicy_EvictsOldestKey(t *testing.T) {
	p := NewIdempotentPolicy(DefaultIdempotentCapacity)

	assert.False(t, p.ShouldSkip("key-0", nil))
	for i := 1; i <= DefaultIdempotentCapacity; i++ {
		assert.False(t, p.ShouldSkip(fmt.Sprintf("key-%d", i), nil))
	}

	// key-0 was pushed out by the 100 later keys.
	assert.False(t, p.ShouldSkip("key-0", nil))
	// key-100 is still in the window.
	assert.True(t, p.ShouldSkip(fmt.Sprintf("key-%d", DefaultIdempotentCapacity), nil))
}

func TestIdempotentFilter_VetoesDuplicates(t *testing.T) {
	f := NewIdempotent(NewIdempotentPolicy(2), nil)
	c, err := NewChain(f)
	require.NoError(t, err)
	ctx := context.Background()

	out, err := c.BeforeAppend(ctx, newRecord("a", "1"))
	require.NoError(t, err)
	assert.NotNil(t, out)

	out, err = c.BeforeAppend(ctx, newRecord("a", "2"))
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = c.BeforeAppend(ctx, newRecord("b", "3"))
	require.NoError(t, err)
	assert.NotNil(t, out)
}
