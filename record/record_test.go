package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlag_String(t *testing.T) {
	tests := []struct {
		flag     Flag
		expected string
	}{
		{FlagNone, "NONE"},
		{FlagCommit, "COMMIT"},
		{FlagCommit | FlagExternalValue, "COMMIT|EXTERNAL_VALUE"},
		{FlagPoisonPill | FlagUserDefined, "POISON_PILL|USER_DEFINED"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.flag.String())
		})
	}
}

func TestFlag_Has(t *testing.T) {
	f := FlagCommit | FlagExternalValue
	assert.True(t, f.Has(FlagCommit))
	assert.True(t, f.Has(FlagExternalValue))
	assert.False(t, f.Has(FlagPoisonPill))
	assert.True(t, f.Has(FlagNone))
}

func TestRecord_WithHelpersCopy(t *testing.T) {
	r := Record{Key: "k", Data: []byte("v"), Watermark: 7}

	changed := r.WithKey("k2").WithFlags(FlagCommit).WithWatermark(9)

	assert.Equal(t, "k", r.Key)
	assert.Equal(t, FlagNone, r.Flags)
	assert.Equal(t, int64(7), r.Watermark)
	assert.Equal(t, "k2", changed.Key)
	assert.Equal(t, FlagCommit, changed.Flags)
	assert.Equal(t, int64(9), changed.Watermark)
}

func TestOf(t *testing.T) {
	r := Of("key", []byte("data"))

	assert.Equal(t, "key", r.Key)
	assert.Positive(t, r.Watermark)
	assert.Zero(t, r.Watermark&0xFFFF, "sequence and completed bits should be clear")
}

func TestRecord_Equal(t *testing.T) {
	a := Record{Key: "k", Data: []byte("v"), Watermark: 1}
	b := Record{Key: "k", Data: []byte("v"), Watermark: 1}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(b.WithData([]byte("w"))))
}

func TestLogOffset(t *testing.T) {
	off := LogOffset{Stream: "out", Partition: 1, Position: 41}

	assert.Equal(t, int64(42), off.Next().Position)
	assert.Equal(t, int64(41), off.Position)
	assert.Equal(t, "out:01:+41", off.String())
	assert.Equal(t, off, LogOffset{Stream: "out", Partition: 1, Position: 41})
}
