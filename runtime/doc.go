// Package runtime drives computations against a streamlog.Log.
//
// A Runner owns one computation instance and everything attached to it: its
// ExecutionContext, its watermark interval and its read positions. One
// RunOnce call is one batch:
//
//  1. read up to the batch size from every input partition, decode,
//     apply AfterRead filters, mark the watermark and call ProcessRecord
//  2. fire timers that came due
//  3. append produced records through BeforeAppend, the codec and
//     AfterAppend
//  4. checkpoint when the computation asked for it, or after any batch
//     that read records when auto commit is on: commit positions with
//     retries, then raise the watermark floor
//
// LowWatermark may be read from other goroutines while the runner works.
package runtime
