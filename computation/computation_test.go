package computation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/pkg/options"
	"github.com/c360/streamcompute/record"
)

func TestMetadata_Resolve(t *testing.T) {
	md := NewMetadata("c", []string{"in"}, []string{"out", "audit"}).
		WithMapping(map[string]string{"out": "physical-out", "in": "physical-in"})

	assert.Equal(t, "physical-out", md.Resolve("out"))
	assert.Equal(t, "audit", md.Resolve("audit"))
	assert.True(t, md.IsOutput("physical-out"))
	assert.True(t, md.IsOutput("audit"))
	assert.False(t, md.IsOutput("out"))
	assert.Equal(t, []string{"physical-in"}, md.PhysicalInputs())
	assert.NoError(t, md.Validate())
}

func TestMetadata_Validate(t *testing.T) {
	tests := []struct {
		name string
		md   Metadata
	}{
		{"no name", NewMetadata("", []string{"in"}, nil)},
		{"empty input", NewMetadata("c", []string{""}, nil)},
		{"loop", NewMetadata("c", []string{"s"}, []string{"s"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.md.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err))
		})
	}
}

func TestForward(t *testing.T) {
	md := NewMetadata("fwd", []string{"in"}, []string{"a", "b"})
	f := NewForward(md, 2)
	ctx := NewExecutionContext(md, nil)

	require.NoError(t, f.Init(ctx))
	require.NoError(t, f.ProcessRecord(ctx, "in", record.Of("k1", []byte("1"))))
	assert.False(t, ctx.RequireCheckpoint())
	require.NoError(t, f.ProcessRecord(ctx, "in", record.Of("k2", []byte("2"))))
	assert.True(t, ctx.RequireCheckpoint())

	assert.Len(t, ctx.Records("a"), 2)
	assert.Len(t, ctx.Records("b"), 2)
	assert.NoError(t, f.ProcessTimer(ctx, "t", 0))
	f.Destroy()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"forward"}, r.Kinds())

	md := NewMetadata("fwd", []string{"in"}, []string{"out"})
	c, err := r.Create("forward", md, map[string]string{"checkpoint-every": "10"})
	require.NoError(t, err)
	assert.Equal(t, "fwd", c.Metadata().Name)

	_, err = r.Create("forward", md, map[string]string{"checkpoint-every": "x"})
	assert.True(t, errors.IsConfigError(err))

	_, err = r.Create("missing", md, nil)
	assert.True(t, errors.Is(err, errors.ErrUnknownFactory))

	_, err = r.Create("forward", NewMetadata("", nil, nil), nil)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	require.NoError(t, r.Register("upper", func(md Metadata, _ options.Map) (Computation, error) {
		return NewForward(md, 0), nil
	}))
	assert.Equal(t, []string{"forward", "upper"}, r.Kinds())
}
