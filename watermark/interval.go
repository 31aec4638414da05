package watermark

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// LevelTrace is the slog level used for late watermark clamping.
const LevelTrace = slog.LevelDebug - 4

// MonotonicInterval turns out-of-order watermarks into a low watermark that
// never regresses below the last checkpoint.
//
// Mark and Checkpoint belong to the single worker that owns the computation
// instance. Low, High and Lowest may be called from any goroutine: values are
// published with atomic stores, so readers see a stale but consistent value.
type MonotonicInterval struct {
	low    atomic.Int64
	lowest atomic.Int64
	high   atomic.Int64
	marked bool
	logger *slog.Logger
}

// NewMonotonicInterval returns an interval with every marker at Lowest.
// A nil logger falls back to slog.Default.
func NewMonotonicInterval(logger *slog.Logger) *MonotonicInterval {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonotonicInterval{logger: logger}
}

// Mark registers the watermark of one input record and returns the low value.
func (m *MonotonicInterval) Mark(w Watermark) int64 {
	if !m.marked {
		m.marked = true
		m.low.Store(w.value)
		m.high.Store(w.value)
		return w.value
	}

	low := m.low.Load()
	if w.value < low {
		lowest := m.lowest.Load()
		if w.value < lowest {
			if m.logger.Enabled(context.Background(), LevelTrace) {
				m.logger.Log(context.Background(), LevelTrace, "late watermark clamped to checkpoint floor",
					"mark", OfValue(w.value).String(), "lowest", OfValue(lowest).String())
			}
			low = lowest
		} else {
			low = w.value
		}
		m.low.Store(low)
	}

	if w.value > m.high.Load() {
		m.high.Store(w.value)
	}
	return low
}

// MarkValue is Mark for a packed watermark value.
func (m *MonotonicInterval) MarkValue(v int64) int64 {
	return m.Mark(OfValue(v))
}

// Checkpoint raises the floor to the completed high watermark and returns
// the new low value. It is the only operation that raises the floor.
func (m *MonotonicInterval) Checkpoint() int64 {
	completed := CompletedOf(OfValue(m.high.Load())).value
	m.lowest.Store(completed)
	m.low.Store(completed)
	return completed
}

// Low returns the current low watermark.
func (m *MonotonicInterval) Low() Watermark {
	return Watermark{value: m.low.Load()}
}

// High returns the highest watermark marked so far.
func (m *MonotonicInterval) High() Watermark {
	return Watermark{value: m.high.Load()}
}

// Lowest returns the floor fixed by the last checkpoint.
func (m *MonotonicInterval) Lowest() Watermark {
	return Watermark{value: m.lowest.Load()}
}

// IsDone reports whether the low watermark guarantees that nothing at or
// before ts is still to come.
func (m *MonotonicInterval) IsDone(ts int64) bool {
	return m.Low().IsDone(ts)
}

func (m *MonotonicInterval) String() string {
	return "MonotonicInterval{low=" + m.Low().String() + ", lowest=" + m.Lowest().String() +
		", high=" + m.High().String() + "}"
}
