// Package jslog stores a streamlog.Log in NATS JetStream.
//
// Each partition of a stream is its own JetStream stream named
// <PREFIX>_<stream>_<partition> and bound to the single subject
// <prefix>.<stream>.<partition>. A partition position is the JetStream
// sequence minus one, so positions start at 0. Messages removed by MaxAge
// leave a gap that Read steps over. Partition counts and committed positions live
// in a key-value bucket named <PREFIX>_offsets.
package jslog

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/natsclient"
	"github.com/c360/streamcompute/record"
	"github.com/c360/streamcompute/streamlog"
)

var invalidName = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Config tunes the JetStream resources created by the log.
type Config struct {
	Prefix   string        `json:"prefix" yaml:"prefix"`
	Replicas int           `json:"replicas" yaml:"replicas"`
	MaxAge   time.Duration `json:"max_age" yaml:"max_age"`
	Storage  string        `json:"storage" yaml:"storage"` // file or memory
}

// DefaultConfig returns a single replica file-backed configuration.
func DefaultConfig() Config {
	return Config{Prefix: "streamcompute", Replicas: 1, Storage: "file"}
}

// Log is a streamlog.Log backed by JetStream.
type Log struct {
	client *natsclient.Client
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	offsets jetstream.KeyValue
	streams map[string]jetstream.Stream
}

var _ streamlog.Log = (*Log)(nil)

// New returns a log using a connected client.
func New(client *natsclient.Client, cfg Config, logger *slog.Logger) (*Log, error) {
	if client == nil {
		return nil, errors.Config(errors.ErrMissingConfig, "jslog", "New", "NATS client is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultConfig().Prefix
	}
	if cfg.Replicas < 1 {
		cfg.Replicas = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "jslog"),
		streams: make(map[string]jetstream.Stream),
	}, nil
}

func (l *Log) storage() jetstream.StorageType {
	if strings.EqualFold(l.cfg.Storage, "memory") {
		return jetstream.MemoryStorage
	}
	return jetstream.FileStorage
}

func sanitize(name string) string {
	return invalidName.ReplaceAllString(name, "_")
}

func (l *Log) streamName(stream string, partition int) string {
	return fmt.Sprintf("%s_%s_%d", strings.ToUpper(sanitize(l.cfg.Prefix)), sanitize(stream), partition)
}

func (l *Log) subject(stream string, partition int) string {
	return fmt.Sprintf("%s.%s.%d", sanitize(l.cfg.Prefix), sanitize(stream), partition)
}

func (l *Log) offsetBucket(ctx context.Context) (jetstream.KeyValue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.offsets != nil {
		return l.offsets, nil
	}
	kv, err := l.client.EnsureKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   strings.ToUpper(sanitize(l.cfg.Prefix)) + "_offsets",
		Replicas: l.cfg.Replicas,
		Storage:  l.storage(),
	})
	if err != nil {
		return nil, err
	}
	l.offsets = kv
	return kv, nil
}

func partitionsKey(stream string) string {
	return "partitions." + sanitize(stream)
}

func commitKey(group, stream string, partition int) string {
	return fmt.Sprintf("commit.%s.%s.%d", sanitize(group), sanitize(stream), partition)
}

// CreateStream creates one JetStream stream per partition and records the
// partition count.
func (l *Log) CreateStream(ctx context.Context, stream string, partitions int) error {
	if stream == "" || partitions < 1 {
		return errors.Config(errors.ErrInvalidConfig, "jslog", "CreateStream",
			fmt.Sprintf("stream %q with %d partitions", stream, partitions))
	}
	existing, err := l.Partitions(ctx, stream)
	switch {
	case err == nil && existing != partitions:
		return errors.Config(errors.ErrInvalidConfig, "jslog", "CreateStream",
			fmt.Sprintf("stream %s exists with %d partitions", stream, existing))
	case err != nil && !errors.Is(err, errors.ErrUndeclaredStream):
		return err
	}

	for p := 0; p < partitions; p++ {
		s, err := l.client.EnsureStream(ctx, jetstream.StreamConfig{
			Name:      l.streamName(stream, p),
			Subjects:  []string{l.subject(stream, p)},
			Storage:   l.storage(),
			Replicas:  l.cfg.Replicas,
			MaxAge:    l.cfg.MaxAge,
			Retention: jetstream.LimitsPolicy,
		})
		if err != nil {
			return err
		}
		l.mu.Lock()
		l.streams[l.streamName(stream, p)] = s
		l.mu.Unlock()
	}

	kv, err := l.offsetBucket(ctx)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, partitionsKey(stream), []byte(strconv.Itoa(partitions))); err != nil {
		return errors.WrapTransient(err, "jslog", "CreateStream", "store partition count")
	}
	l.logger.Info("stream created", "stream", stream, "partitions", partitions)
	return nil
}

// Partitions reads the partition count recorded by CreateStream.
func (l *Log) Partitions(ctx context.Context, stream string) (int, error) {
	kv, err := l.offsetBucket(ctx)
	if err != nil {
		return 0, err
	}
	entry, err := kv.Get(ctx, partitionsKey(stream))
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return 0, errors.Config(errors.ErrUndeclaredStream, "jslog", "Partitions", "unknown stream "+stream)
	}
	if err != nil {
		return 0, errors.WrapTransient(err, "jslog", "Partitions", "read partition count")
	}
	n, err := strconv.Atoi(string(entry.Value()))
	if err != nil {
		return 0, errors.WrapFatal(fmt.Errorf("%w: partition count %q", errors.ErrDataCorrupted, entry.Value()),
			"jslog", "Partitions", "parse partition count")
	}
	return n, nil
}

func (l *Log) partitionStream(ctx context.Context, stream string, partition int) (jetstream.Stream, error) {
	name := l.streamName(stream, partition)
	l.mu.Lock()
	s, ok := l.streams[name]
	l.mu.Unlock()
	if ok {
		return s, nil
	}
	err := l.client.Do(ctx, "get_stream", func(ctx context.Context, js jetstream.JetStream) error {
		var err error
		s, err = js.Stream(ctx, name)
		return err
	})
	if stderrors.Is(err, jetstream.ErrStreamNotFound) {
		return nil, errors.Config(errors.ErrUndeclaredStream, "jslog", "partitionStream",
			fmt.Sprintf("stream %s partition %d", stream, partition))
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "jslog", "partitionStream", "look up "+name)
	}
	l.mu.Lock()
	l.streams[name] = s
	l.mu.Unlock()
	return s, nil
}

// Append publishes data to the partition subject.
func (l *Log) Append(ctx context.Context, stream string, partition int, data []byte) (record.LogOffset, error) {
	if _, err := l.partitionStream(ctx, stream, partition); err != nil {
		return record.LogOffset{}, err
	}
	seq, err := l.client.Publish(ctx, l.subject(stream, partition), data)
	if err != nil {
		return record.LogOffset{}, err
	}
	return record.LogOffset{Stream: stream, Partition: partition, Position: int64(seq) - 1}, nil
}

// Read fetches messages by sequence, up to max or the end of the partition.
// Messages removed by MaxAge or a purge are skipped: reading starts at the
// first sequence the stream still holds.
func (l *Log) Read(ctx context.Context, stream string, partition int, from int64, max int) ([]streamlog.Entry, error) {
	s, err := l.partitionStream(ctx, stream, partition)
	if err != nil {
		return nil, err
	}
	var first, last uint64
	err = l.client.Do(ctx, "stream_info", func(ctx context.Context, _ jetstream.JetStream) error {
		info, err := s.Info(ctx)
		if err == nil {
			first, last = info.State.FirstSeq, info.State.LastSeq
		}
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "jslog", "Read", "stream info")
	}
	if from < 0 {
		from = 0
	}

	start := uint64(from) + 1
	if first > start && last >= first {
		l.logger.Warn("messages expired before they were read",
			"stream", stream, "partition", partition,
			"from", from, "first_available", int64(first)-1)
		start = first
	}

	var out []streamlog.Entry
	for seq := start; seq <= last && (max <= 0 || len(out) < max); seq++ {
		var msg *jetstream.RawStreamMsg
		err := l.client.Do(ctx, "get_msg", func(ctx context.Context, _ jetstream.JetStream) error {
			var err error
			msg, err = s.GetMsg(ctx, seq)
			return err
		})
		if stderrors.Is(err, jetstream.ErrMsgNotFound) {
			l.logger.Debug("message gone, skipping", "stream", stream, "partition", partition, "sequence", seq)
			continue
		}
		if err != nil {
			return out, errors.WrapTransient(err, "jslog", "Read", fmt.Sprintf("get message %d", seq))
		}
		out = append(out, streamlog.Entry{
			Offset: record.LogOffset{Stream: stream, Partition: partition, Position: int64(msg.Sequence) - 1},
			Data:   msg.Data,
		})
	}
	return out, nil
}

// Commit stores next for the group in the offsets bucket.
func (l *Log) Commit(ctx context.Context, group, stream string, partition int, next int64) error {
	kv, err := l.offsetBucket(ctx)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, commitKey(group, stream, partition), []byte(strconv.FormatInt(next, 10))); err != nil {
		return errors.WrapTransient(err, "jslog", "Commit", "store position")
	}
	return nil
}

// Committed returns the stored position, 0 when the group never committed.
func (l *Log) Committed(ctx context.Context, group, stream string, partition int) (int64, error) {
	kv, err := l.offsetBucket(ctx)
	if err != nil {
		return 0, err
	}
	entry, err := kv.Get(ctx, commitKey(group, stream, partition))
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.WrapTransient(err, "jslog", "Committed", "read position")
	}
	pos, err := strconv.ParseInt(string(entry.Value()), 10, 64)
	if err != nil {
		return 0, errors.WrapFatal(fmt.Errorf("%w: position %q", errors.ErrDataCorrupted, entry.Value()),
			"jslog", "Committed", "parse position")
	}
	return pos, nil
}

// Close forgets cached handles. The client is owned by the caller.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams = make(map[string]jetstream.Stream)
	l.offsets = nil
	return nil
}
