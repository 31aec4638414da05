package computation

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/record"
)

// Context is what processing code sees of the runtime. Producing records,
// setting timers and asking for checkpoints only touch buffers that the
// runtime drains after the invocation returns.
type Context interface {
	// ProduceRecord buffers r for the logical output stream.
	ProduceRecord(stream string, r record.Record) error
	// SetTimer requests a callback at time t, in milliseconds. The last
	// call for a key wins.
	SetTimer(key string, t int64) error
	// SetSourceLowWatermark declares a lower bound on future input.
	SetSourceLowWatermark(w int64)
	// AskForCheckpoint requests a durability checkpoint after this batch.
	AskForCheckpoint()
	Logger() *slog.Logger
}

// ExecutionContext is the runtime-side Context. It is owned by the single
// goroutine driving one computation instance and is not safe for
// concurrent use.
type ExecutionContext struct {
	metadata Metadata
	logger   *slog.Logger

	records            map[string][]record.Record
	timers             map[string]int64
	sourceLowWatermark int64
	checkpoint         bool
}

var _ Context = (*ExecutionContext)(nil)

// NewExecutionContext returns an empty context for metadata.
func NewExecutionContext(metadata Metadata, logger *slog.Logger) *ExecutionContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionContext{
		metadata: metadata,
		logger:   logger.With("computation", metadata.Name),
		records:  make(map[string][]record.Record),
		timers:   make(map[string]int64),
	}
}

// Metadata returns the computation metadata.
func (c *ExecutionContext) Metadata() Metadata { return c.metadata }

// Logger returns a logger tagged with the computation name.
func (c *ExecutionContext) Logger() *slog.Logger { return c.logger }

// ProduceRecord resolves stream through the mapping and buffers r. Producing
// to a stream that is not a declared output is a configuration error.
func (c *ExecutionContext) ProduceRecord(stream string, r record.Record) error {
	target := c.metadata.Resolve(stream)
	if !c.metadata.IsOutput(target) {
		return errors.Config(errors.ErrUndeclaredStream, "ComputationContext", "ProduceRecord",
			fmt.Sprintf("computation %s cannot produce to %s (resolved %s)", c.metadata.Name, stream, target))
	}
	c.records[target] = append(c.records[target], r)
	return nil
}

// Records returns the records buffered for stream, in production order.
// It never returns nil. The slice is clipped: appending to it never writes
// into the buffer.
func (c *ExecutionContext) Records(stream string) []record.Record {
	if rs, ok := c.records[c.metadata.Resolve(stream)]; ok {
		return rs[:len(rs):len(rs)]
	}
	return []record.Record{}
}

// Streams returns the physical streams with buffered records, sorted.
func (c *ExecutionContext) Streams() []string {
	streams := make([]string, 0, len(c.records))
	for s, rs := range c.records {
		if len(rs) > 0 {
			streams = append(streams, s)
		}
	}
	sort.Strings(streams)
	return streams
}

// Pending returns the buffered records keyed by physical stream. The
// slices are clipped views of the buffers.
func (c *ExecutionContext) Pending() map[string][]record.Record {
	out := make(map[string][]record.Record, len(c.records))
	for s, rs := range c.records {
		if len(rs) > 0 {
			out[s] = rs[:len(rs):len(rs)]
		}
	}
	return out
}

// DropRecords removes the first n records buffered for the physical stream,
// once the runtime appended them.
func (c *ExecutionContext) DropRecords(stream string, n int) {
	rs := c.records[stream]
	switch {
	case n <= 0:
	case n >= len(rs):
		delete(c.records, stream)
	default:
		c.records[stream] = append([]record.Record(nil), rs[n:]...)
	}
}

// ClearRecords drops every buffered record once the runtime appended them.
func (c *ExecutionContext) ClearRecords() {
	clear(c.records)
}

// SetTimer stores a timer. An empty key is a configuration error.
func (c *ExecutionContext) SetTimer(key string, t int64) error {
	if key == "" {
		return errors.Config(errors.ErrEmptyTimerKey, "ComputationContext", "SetTimer",
			fmt.Sprintf("computation %s", c.metadata.Name))
	}
	c.timers[key] = t
	return nil
}

// RemoveTimer deletes a timer, typically once it fired.
func (c *ExecutionContext) RemoveTimer(key string) {
	delete(c.timers, key)
}

// Timers returns a copy of the pending timers.
func (c *ExecutionContext) Timers() map[string]int64 {
	out := make(map[string]int64, len(c.timers))
	for k, v := range c.timers {
		out[k] = v
	}
	return out
}

// DueTimers returns the keys of timers at or before now, ordered by time
// then key.
func (c *ExecutionContext) DueTimers(now int64) []string {
	var due []string
	for k, t := range c.timers {
		if t <= now {
			due = append(due, k)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		ti, tj := c.timers[due[i]], c.timers[due[j]]
		if ti != tj {
			return ti < tj
		}
		return due[i] < due[j]
	})
	return due
}

// SetSourceLowWatermark records the declared lower bound.
func (c *ExecutionContext) SetSourceLowWatermark(w int64) {
	c.sourceLowWatermark = w
}

// SourceLowWatermark returns the last declared lower bound, 0 if none.
func (c *ExecutionContext) SourceLowWatermark() int64 { return c.sourceLowWatermark }

// AskForCheckpoint sets the sticky checkpoint flag.
func (c *ExecutionContext) AskForCheckpoint() { c.checkpoint = true }

// RequireCheckpoint reports whether a checkpoint was asked for.
func (c *ExecutionContext) RequireCheckpoint() bool { return c.checkpoint }

// RemoveCheckpointFlag clears the flag once the runtime checkpointed.
func (c *ExecutionContext) RemoveCheckpointFlag() { c.checkpoint = false }
