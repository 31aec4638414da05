// Package memlog is an in-memory streamlog.Log for tests and single process
// runs. Nothing survives the process.
package memlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/record"
	"github.com/c360/streamcompute/streamlog"
)

type stream struct {
	partitions [][][]byte
}

// Log keeps streams and committed positions in maps guarded by one mutex.
type Log struct {
	mu      sync.RWMutex
	streams map[string]*stream
	commits map[string]int64
	closed  bool
}

var _ streamlog.Log = (*Log)(nil)

// New returns an empty log.
func New() *Log {
	return &Log{
		streams: make(map[string]*stream),
		commits: make(map[string]int64),
	}
}

func commitKey(group, stream string, partition int) string {
	return fmt.Sprintf("%s/%s/%d", group, stream, partition)
}

// CreateStream declares a stream with the given partition count.
func (l *Log) CreateStream(_ context.Context, name string, partitions int) error {
	if name == "" || partitions < 1 {
		return errors.Config(errors.ErrInvalidConfig, "memlog", "CreateStream",
			fmt.Sprintf("stream %q with %d partitions", name, partitions))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.streams[name]; ok {
		if len(s.partitions) != partitions {
			return errors.Config(errors.ErrInvalidConfig, "memlog", "CreateStream",
				fmt.Sprintf("stream %s exists with %d partitions", name, len(s.partitions)))
		}
		return nil
	}
	l.streams[name] = &stream{partitions: make([][][]byte, partitions)}
	return nil
}

// Partitions returns the partition count of a stream.
func (l *Log) Partitions(_ context.Context, name string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.stream(name)
	if err != nil {
		return 0, err
	}
	return len(s.partitions), nil
}

func (l *Log) stream(name string) (*stream, error) {
	if l.closed {
		return nil, errors.WrapFatal(errors.ErrAlreadyStopped, "memlog", "stream", "access closed log")
	}
	s, ok := l.streams[name]
	if !ok {
		return nil, errors.Config(errors.ErrUndeclaredStream, "memlog", "stream", "unknown stream "+name)
	}
	return s, nil
}

func (l *Log) partition(name string, partition int) (*stream, error) {
	s, err := l.stream(name)
	if err != nil {
		return nil, err
	}
	if partition < 0 || partition >= len(s.partitions) {
		return nil, errors.Config(errors.ErrInvalidConfig, "memlog", "partition",
			fmt.Sprintf("stream %s has no partition %d", name, partition))
	}
	return s, nil
}

// Append copies data to the end of a partition.
func (l *Log) Append(_ context.Context, name string, partition int, data []byte) (record.LogOffset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.partition(name, partition)
	if err != nil {
		return record.LogOffset{}, err
	}
	pos := int64(len(s.partitions[partition]))
	s.partitions[partition] = append(s.partitions[partition], append([]byte(nil), data...))
	return record.LogOffset{Stream: name, Partition: partition, Position: pos}, nil
}

// Read returns up to max entries from position from.
func (l *Log) Read(_ context.Context, name string, partition int, from int64, max int) ([]streamlog.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.partition(name, partition)
	if err != nil {
		return nil, err
	}
	entries := s.partitions[partition]
	if from < 0 {
		from = 0
	}
	var out []streamlog.Entry
	for pos := from; pos < int64(len(entries)) && (max <= 0 || len(out) < max); pos++ {
		out = append(out, streamlog.Entry{
			Offset: record.LogOffset{Stream: name, Partition: partition, Position: pos},
			Data:   entries[pos],
		})
	}
	return out, nil
}

// Commit stores the next position for a group.
func (l *Log) Commit(_ context.Context, group, name string, partition int, next int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.partition(name, partition); err != nil {
		return err
	}
	l.commits[commitKey(group, name, partition)] = next
	return nil
}

// Committed returns the committed position, 0 when nothing was committed.
func (l *Log) Committed(_ context.Context, group, name string, partition int) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, err := l.partition(name, partition); err != nil {
		return 0, err
	}
	return l.commits[commitKey(group, name, partition)], nil
}

// Size returns the number of entries in a partition, for tests.
func (l *Log) Size(name string, partition int) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, err := l.partition(name, partition)
	if err != nil {
		return 0
	}
	return len(s.partitions[partition])
}

// Close makes every later call fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
