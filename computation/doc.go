// Package computation defines the processing side of a stream computation:
// its Metadata, the Context processing code talks to, and the Computation
// interface a runtime drives.
//
// A Context never performs I/O. Produced records, timers, the source low
// watermark and checkpoint requests are buffered in an ExecutionContext
// that the runtime reads and clears between invocations. Producing to a
// stream the computation did not declare as an output fails with a
// configuration error, as does a timer with an empty key.
package computation
