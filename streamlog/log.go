// Package streamlog defines the partitioned append-only log a runtime reads
// computation input from and appends output to. Adapters live in
// subpackages: memlog keeps everything in memory, jslog stores partitions in
// NATS JetStream.
package streamlog

import (
	"context"
	"hash/fnv"

	"github.com/c360/streamcompute/record"
)

// Entry is one encoded record read from a partition.
type Entry struct {
	Offset record.LogOffset
	Data   []byte
}

// Log is a set of named streams, each split in partitions. Positions within
// a partition start at 0 and grow by one per append.
type Log interface {
	// CreateStream declares a stream. Creating an existing stream with the
	// same partition count is a no-op.
	CreateStream(ctx context.Context, stream string, partitions int) error
	// Partitions returns the partition count of stream.
	Partitions(ctx context.Context, stream string) (int, error)
	// Append writes data at the end of a partition.
	Append(ctx context.Context, stream string, partition int, data []byte) (record.LogOffset, error)
	// Read returns up to max entries starting at position from. An empty
	// result means the reader is caught up.
	Read(ctx context.Context, stream string, partition int, from int64, max int) ([]Entry, error)
	// Commit stores next as the position group resumes from.
	Commit(ctx context.Context, group, stream string, partition int, next int64) error
	// Committed returns the stored position for group, 0 when none.
	Committed(ctx context.Context, group, stream string, partition int) (int64, error)
	Close() error
}

// PartitionFor picks the partition of a record key with FNV-1a. Records
// with the same key always land in the same partition.
func PartitionFor(key string, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(partitions))
}
