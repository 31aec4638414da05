package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360/streamcompute/codec"
	"github.com/c360/streamcompute/computation"
	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/filter"
	"github.com/c360/streamcompute/health"
	"github.com/c360/streamcompute/metric"
	"github.com/c360/streamcompute/pkg/retry"
	"github.com/c360/streamcompute/record"
	"github.com/c360/streamcompute/streamlog"
	"github.com/c360/streamcompute/watermark"
)

// DefaultBatchSize bounds the records read per partition in one RunOnce.
const DefaultBatchSize = 100

type position struct {
	input     string // logical name, as passed to ProcessRecord
	stream    string // physical name
	partition int
}

// Runner drives one computation instance. Every method except LowWatermark
// and ID must be called from the goroutine that owns the runner.
type Runner struct {
	id          string
	comp        computation.Computation
	metadata    computation.Metadata
	log         streamlog.Log
	codec       codec.Codec[record.Record]
	chain       filter.Chain
	group       string
	batchSize   int
	autoCommit  bool
	retryConfig retry.Config
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *metric.Metrics
	health      *health.Monitor

	execCtx     *computation.ExecutionContext
	interval    *watermark.MonotonicInterval
	positions   []position
	next        map[position]int64
	partitions  map[string]int
	uncommitted bool
	initialized bool
	activity    health.Activity
}

// Option configures a Runner.
type Option func(*Runner)

// WithFilterChain sets the filters applied around the log.
func WithFilterChain(chain filter.Chain) Option {
	return func(r *Runner) {
		if chain != nil {
			r.chain = chain
		}
	}
}

// WithGroup sets the consumer group positions are committed under. The
// default is the computation name.
func WithGroup(group string) Option {
	return func(r *Runner) { r.group = group }
}

// WithBatchSize sets the records read per partition per batch.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithAutoCommit makes the runner checkpoint after every batch that read
// records, not only when the computation asks for it. It defaults to true.
func WithAutoCommit(enabled bool) Option {
	return func(r *Runner) { r.autoCommit = enabled }
}

// WithRetry sets the retry policy for commits.
func WithRetry(cfg retry.Config) Option {
	return func(r *Runner) { r.retryConfig = cfg }
}

// WithClock sets the time source used for timers.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics reports to m instead of an unregistered metric set.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithHealth reports the outcome of every batch to m under the computation
// name.
func WithHealth(m *health.Monitor) Option {
	return func(r *Runner) { r.health = m }
}

// New builds a runner. The log and the record codec are required.
func New(comp computation.Computation, log streamlog.Log, c codec.Codec[record.Record], opts ...Option) (*Runner, error) {
	if comp == nil || log == nil || c == nil {
		return nil, errors.Config(errors.ErrMissingConfig, "Runner", "New", "computation, log and codec are required")
	}
	md := comp.Metadata()
	if err := md.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		id:          uuid.NewString(),
		comp:        comp,
		metadata:    md,
		log:         log,
		codec:       c,
		chain:       filter.NoFilterChain,
		group:       md.Name,
		batchSize:   DefaultBatchSize,
		autoCommit:  true,
		retryConfig: retry.DefaultConfig(),
		clock:       time.Now,
		logger:      slog.Default(),
		next:        make(map[position]int64),
		partitions:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metric.NewMetrics()
	}
	r.logger = r.logger.With("computation", md.Name, "instance", r.id)
	r.execCtx = computation.NewExecutionContext(md, r.logger)
	r.interval = watermark.NewMonotonicInterval(r.logger)
	return r, nil
}

// ID returns the instance id.
func (r *Runner) ID() string { return r.id }

// Context exposes the execution context, for tests and diagnostics.
func (r *Runner) Context() *computation.ExecutionContext { return r.execCtx }

// LowWatermark returns the low watermark. Safe from any goroutine.
func (r *Runner) LowWatermark() watermark.Watermark { return r.interval.Low() }

// Init loads committed positions, runs the computation Init and appends
// whatever it produced.
func (r *Runner) Init(ctx context.Context) error {
	if r.initialized {
		return nil
	}
	for _, input := range r.metadata.Inputs {
		stream := r.metadata.Resolve(input)
		n, err := r.partitionCount(ctx, stream)
		if err != nil {
			return err
		}
		for p := 0; p < n; p++ {
			pos := position{input: input, stream: stream, partition: p}
			next, err := r.log.Committed(ctx, r.group, stream, p)
			if err != nil {
				return errors.Wrap(err, "Runner", "Init", "load committed position")
			}
			r.positions = append(r.positions, pos)
			r.next[pos] = next
		}
	}
	if err := r.comp.Init(r.execCtx); err != nil {
		return errors.Wrap(err, "Runner", "Init", "initialize computation")
	}
	if err := r.flush(ctx); err != nil {
		return err
	}
	r.initialized = true
	r.logger.Info("computation initialized", "inputs", len(r.positions), "group", r.group)
	return nil
}

func (r *Runner) partitionCount(ctx context.Context, stream string) (int, error) {
	if n, ok := r.partitions[stream]; ok {
		return n, nil
	}
	n, err := r.log.Partitions(ctx, stream)
	if err != nil {
		return 0, err
	}
	r.partitions[stream] = n
	return n, nil
}

// RunOnce reads one batch from every input partition, fires due timers,
// appends produced records and checkpoints when needed. It returns the
// number of records processed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	if !r.initialized {
		return 0, errors.WrapFatal(errors.ErrNotStarted, "Runner", "RunOnce", "run before Init")
	}
	start := r.clock()
	n, err := r.runOnce(ctx)
	r.metrics.RecordBatchDuration(r.metadata.Name, r.clock().Sub(start))
	if err != nil {
		r.metrics.RecordError(r.metadata.Name, errors.Classify(err).String())
	}
	r.reportHealth(start, n, err)
	return n, err
}

func (r *Runner) reportHealth(start time.Time, n int, err error) {
	r.activity.Processed += int64(n)
	r.activity.LastBatch = start
	r.activity.LowWatermark = r.interval.Low().Value()
	if err != nil {
		r.activity.Errors++
	}
	if r.health != nil {
		r.health.Update(r.metadata.Name, health.FromError(r.metadata.Name, err).WithActivity(r.activity))
	}
}

// Activity returns the counters reported with the health status.
func (r *Runner) Activity() health.Activity { return r.activity }

func (r *Runner) runOnce(ctx context.Context) (int, error) {
	processed := 0
	for _, pos := range r.positions {
		n, err := r.readPartition(ctx, pos)
		processed += n
		if err != nil {
			return processed, err
		}
	}
	if err := r.fireTimers(); err != nil {
		return processed, err
	}
	if w := r.execCtx.SourceLowWatermark(); w > 0 {
		r.interval.MarkValue(w)
	}
	if err := r.flush(ctx); err != nil {
		return processed, err
	}
	if r.execCtx.RequireCheckpoint() || (r.autoCommit && r.uncommitted) {
		if err := r.checkpoint(ctx); err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// readPartition handles one batch of a partition. The read position moves
// past an entry only once it was processed, vetoed or skipped as
// undecodable, so an error leaves the failing entry to be read again.
func (r *Runner) readPartition(ctx context.Context, pos position) (int, error) {
	entries, err := r.log.Read(ctx, pos.stream, pos.partition, r.next[pos], r.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "Runner", "RunOnce", "read "+pos.stream)
	}
	processed := 0
	for _, entry := range entries {
		rec, err := r.codec.Decode(entry.Data)
		if err != nil {
			r.logger.Warn("skipping undecodable record", "offset", entry.Offset.String(), "error", err)
			r.metrics.RecordError(r.metadata.Name, errors.ErrorInvalid.String())
			r.advance(pos, entry.Offset)
			continue
		}
		out, err := r.chain.AfterRead(ctx, &rec, entry.Offset)
		if err != nil {
			return processed, errors.Wrap(err, "Runner", "RunOnce", "filter record "+entry.Offset.String())
		}
		if out == nil {
			r.metrics.RecordVetoed(r.metadata.Name, pos.stream, "after_read")
			r.advance(pos, entry.Offset)
			continue
		}
		r.metrics.RecordRead(r.metadata.Name, pos.stream)
		if out.Watermark > 0 {
			r.interval.MarkValue(out.Watermark)
		}
		if err := r.comp.ProcessRecord(r.execCtx, pos.input, *out); err != nil {
			return processed, errors.Wrap(err, "Runner", "RunOnce", "process record "+entry.Offset.String())
		}
		r.advance(pos, entry.Offset)
		processed++
	}
	return processed, nil
}

func (r *Runner) advance(pos position, off record.LogOffset) {
	r.next[pos] = off.Position + 1
	r.uncommitted = true
}

func (r *Runner) fireTimers() error {
	now := r.clock().UnixMilli()
	timers := r.execCtx.Timers()
	for _, key := range r.execCtx.DueTimers(now) {
		r.execCtx.RemoveTimer(key)
		if err := r.comp.ProcessTimer(r.execCtx, key, timers[key]); err != nil {
			return errors.Wrap(err, "Runner", "RunOnce", "process timer "+key)
		}
		r.metrics.RecordTimerFired(r.metadata.Name)
	}
	return nil
}

// flush appends buffered records. A record leaves the buffer once it
// reached the log, so after a failed append the next flush resumes with the
// record that failed.
func (r *Runner) flush(ctx context.Context) error {
	pending := r.execCtx.Pending()
	streams := make([]string, 0, len(pending))
	for s := range pending {
		streams = append(streams, s)
	}
	sort.Strings(streams)

	for _, stream := range streams {
		partitions, err := r.partitionCount(ctx, stream)
		if err != nil {
			return err
		}
		records := pending[stream]
		r.metrics.RecordProduced(r.metadata.Name, stream, len(records))
		for i := range records {
			appended, err := r.append(ctx, stream, partitions, records[i])
			if err != nil {
				done := i
				if appended {
					done++
				}
				r.execCtx.DropRecords(stream, done)
				return err
			}
		}
		r.execCtx.DropRecords(stream, len(records))
	}
	return nil
}

// append runs one record through the chain, the codec and the log. The
// returned flag reports whether the record is done with: appended or vetoed.
func (r *Runner) append(ctx context.Context, stream string, partitions int, rec record.Record) (bool, error) {
	out, err := r.chain.BeforeAppend(ctx, &rec)
	if err != nil {
		return false, err
	}
	if out == nil {
		r.metrics.RecordVetoed(r.metadata.Name, stream, "before_append")
		return true, nil
	}
	data, err := r.codec.Encode(*out)
	if err != nil {
		return false, err
	}
	off, err := r.log.Append(ctx, stream, streamlog.PartitionFor(out.Key, partitions), data)
	if err != nil {
		return false, errors.Wrap(err, "Runner", "flush", fmt.Sprintf("append to %s", stream))
	}
	r.metrics.RecordAppended(r.metadata.Name, stream)
	if _, err := r.chain.AfterAppend(ctx, out, off); err != nil {
		return true, err
	}
	return true, nil
}

// checkpoint commits every read position, then raises the watermark floor.
func (r *Runner) checkpoint(ctx context.Context) error {
	for _, pos := range r.positions {
		next := r.next[pos]
		err := retry.Do(ctx, r.retryConfig, func() error {
			return r.log.Commit(ctx, r.group, pos.stream, pos.partition, next)
		})
		if err != nil {
			r.metrics.RecordCheckpoint(r.metadata.Name, "failed")
			return errors.Wrap(err, "Runner", "checkpoint", "commit "+pos.stream)
		}
	}
	low := r.interval.Checkpoint()
	r.execCtx.RemoveCheckpointFlag()
	r.uncommitted = false
	r.metrics.RecordCheckpoint(r.metadata.Name, "ok")
	r.metrics.RecordLowWatermark(r.metadata.Name, watermark.OfValue(low).Timestamp())
	r.logger.Debug("checkpoint", "low", watermark.OfValue(low).String())
	return nil
}

// Run calls RunOnce until ctx is done, sleeping pollInterval whenever a
// batch found nothing to do. Fatal errors stop the loop; others are logged
// and the batch is retried after the poll interval.
func (r *Runner) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := r.Init(ctx); err != nil {
		return err
	}
	defer r.comp.Destroy()
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("computation stopped")
			return nil
		case <-timer.C:
		}

		n, err := r.RunOnce(ctx)
		switch {
		case err != nil && errors.IsFatal(err):
			r.logger.Error("computation failed", "error", err)
			return err
		case err != nil:
			r.logger.Warn("batch failed, retrying", "error", err, "class", errors.Classify(err).String())
			timer.Reset(pollInterval)
		case n == 0:
			timer.Reset(pollInterval)
		default:
			timer.Reset(0)
		}
	}
}
