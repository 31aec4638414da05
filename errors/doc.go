// Package errors provides the error classification shared by the
// computation core, the codec registry and the driving runtime.
//
// # Classes
//
// Errors fall into three classes:
//
//   - Transient: log or network trouble; the driving runtime may retry.
//   - Invalid: malformed bytes handed to a codec; the record is bad, not the system.
//   - Fatal: configuration errors and corruption; the invocation is aborted.
//
// Configuration errors are produced with Config, which wraps one of the
// configuration sentinels (ErrUndeclaredStream, ErrIncompatibleCodec,
// ErrEmptyTimerKey, ...) in a fatal ClassifiedError:
//
//	if !meta.IsOutput(target) {
//	    return errors.Config(errors.ErrUndeclaredStream, "ExecutionContext", "ProduceRecord", target)
//	}
//
// Callers test the outcome with IsConfigError, or with errors.Is against the
// sentinel:
//
//	if errors.IsConfigError(err) {
//	    // abort the batch, do not retry
//	}
//
// Conditions that are legitimately absent (an unregistered codec name, a
// stream with no buffered output, a late watermark) are not errors and never
// go through this package.
//
// # Wrapping
//
// Wrap, WrapTransient, WrapInvalid and WrapFatal follow the pattern
// "component.method: action failed: cause" and keep the cause reachable
// through errors.Is / errors.As.
package errors
