// Package retry provides exponential backoff around the few blocking
// operations the driving runtime performs against the log.
//
// Do retries a function while it returns transient errors (as classified by
// the errors package). Configuration and data errors stop the loop at once,
// so a misconfigured computation fails fast instead of spinning:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return log.Commit(ctx, group, stream, partition, next)
//	})
//
// Backoff doubles from InitialDelay up to MaxDelay with optional jitter, and
// sleeping honors ctx cancellation.
package retry
