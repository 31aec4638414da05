// Package record holds the immutable unit of data that flows between
// computations, and the offset handle a log hands back after an append.
package record

import (
	"fmt"
	"strings"
	"time"
)

// Flag is a bit set carried by a record.
type Flag uint8

const (
	// FlagNone is the default, no flag set.
	FlagNone Flag = 0
	// FlagCommit asks the driving runtime to checkpoint after this record.
	FlagCommit Flag = 1 << iota
	// FlagPoisonPill marks the last record of a stream.
	FlagPoisonPill
	// FlagExternalValue marks a record whose data was moved to an external store;
	// Data then holds the store key.
	FlagExternalValue
	// FlagUserDefined is free for computations to use.
	FlagUserDefined
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagCommit, "COMMIT"},
	{FlagPoisonPill, "POISON_PILL"},
	{FlagExternalValue, "EXTERNAL_VALUE"},
	{FlagUserDefined, "USER_DEFINED"},
}

// Has reports whether every bit of other is set in f.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

// String returns the flag names joined with "|", or NONE.
func (f Flag) String() string {
	if f == FlagNone {
		return "NONE"
	}
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Record is an immutable unit of data. Identity for deduplication is Key.
// Once handed to a computation context the record belongs to the filter
// chain and the transport; use the With* helpers to derive a modified copy.
type Record struct {
	Key       string `json:"key"`
	Data      []byte `json:"data,omitempty"`
	Watermark int64  `json:"watermark"`
	Flags     Flag   `json:"flags"`
}

// Of builds a record stamped with a watermark for the current wall-clock time.
func Of(key string, data []byte) Record {
	return Record{
		Key:       key,
		Data:      data,
		Watermark: time.Now().UnixMilli() << 16,
	}
}

// WithKey returns a copy of r with a new key.
func (r Record) WithKey(key string) Record {
	r.Key = key
	return r
}

// WithData returns a copy of r with new data. The slice is not copied.
func (r Record) WithData(data []byte) Record {
	r.Data = data
	return r
}

// WithFlags returns a copy of r with flags replaced.
func (r Record) WithFlags(flags Flag) Record {
	r.Flags = flags
	return r
}

// WithWatermark returns a copy of r with a new watermark value.
func (r Record) WithWatermark(w int64) Record {
	r.Watermark = w
	return r
}

// Equal compares two records field by field.
func (r Record) Equal(o Record) bool {
	return r.Key == o.Key && r.Watermark == o.Watermark && r.Flags == o.Flags && string(r.Data) == string(o.Data)
}

// String is used in logs; data is summarized by length.
func (r Record) String() string {
	return fmt.Sprintf("Record{key=%s, watermark=%d, flags=%s, data.length=%d}", r.Key, r.Watermark, r.Flags, len(r.Data))
}

// LogOffset identifies a physically appended record. Offsets are produced
// only by a log append and are comparable values.
type LogOffset struct {
	Stream    string `json:"stream"`
	Partition int    `json:"partition"`
	Position  int64  `json:"position"`
}

// Next returns the offset of the following record in the same partition.
func (o LogOffset) Next() LogOffset {
	o.Position++
	return o
}

// String renders the offset as stream:partition:position.
func (o LogOffset) String() string {
	return fmt.Sprintf("%s:%02d:+%d", o.Stream, o.Partition, o.Position)
}
