// Package streamcompute is the core of a stream computation framework.
//
// Records flow between named, partitioned streams stored in a durable log.
// A computation reads records from its input streams, produces records to
// its output streams through a ComputationContext, and asks for
// checkpoints. The runtime drives computations batch by batch, passes every
// record through a filter chain and a codec, and commits consumer positions
// so a restarted computation resumes where it left off.
//
// Packages:
//
//   - record: the record value, its flags and log offsets
//   - watermark: event-time watermarks and the MonotonicInterval tracker
//   - filter: record filters, filter chains and the idempotent policy
//   - codec: typed codecs, codec factories and the codec service
//   - computation: metadata, the computation context and built-in kinds
//   - streamlog: the partitioned log, in memory (memlog) or on JetStream (jslog)
//   - runtime: the runner driving one computation instance
//   - config: layered JSON/YAML configuration
//   - metric, health: Prometheus metrics and health reporting
//   - natsclient: the NATS connection with its circuit breaker
//
// The streamcompute command in cmd/streamcompute wires these together from a
// configuration file.
package streamcompute
