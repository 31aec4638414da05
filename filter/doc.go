// Package filter provides the record filter chain applied around the log
// boundary: before a record is appended, after it was appended, and after it
// was read back.
//
// A hook returning a nil record stops the pass. In BeforeAppend this is a
// veto: the record never reaches the log. In AfterAppend and AfterRead it
// simply halts the remaining filters.
//
// Built-in filters:
//
//   - Idempotent drops records whose key was seen among the last N appends.
//   - ExternalStore moves large payloads to a BlobStore and restores them on read.
//   - Metrics counts records and bytes per hook.
//
// Chains are normally assembled from configuration through a Registry:
//
//	chain, err := filter.NewRegistry().BuildChain(specs, filter.Dependencies{
//		Logger:  logger,
//		Metrics: metricsRegistry,
//	})
package filter
