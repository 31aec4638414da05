// Package watermark tracks the progress of a computation.
//
// A Watermark packs a millisecond timestamp, a 15-bit sequence and a
// completed bit into one comparable int64:
//
//	value = timestamp<<16 | sequence<<1 | completed
//
// so the numeric order of values is the order by timestamp, then sequence,
// then completeness.
package watermark

import (
	"fmt"
	"time"
)

const (
	sequenceMask = 0x7FFF
	// MaxSequence is the largest sequence a watermark can carry.
	MaxSequence = sequenceMask
)

// Watermark is an immutable progress marker.
type Watermark struct {
	value int64
}

// Lowest is the minimum watermark and the identity for Min-style folds.
var Lowest = Watermark{}

// OfValue rebuilds a watermark from its packed value.
func OfValue(v int64) Watermark {
	if v < 0 {
		panic(fmt.Sprintf("watermark: negative value %d", v))
	}
	return Watermark{value: v}
}

// OfTimestamp returns the in-flight watermark for a millisecond timestamp.
func OfTimestamp(ts int64) Watermark {
	return OfTimestampSeq(ts, 0)
}

// OfTimestampSeq returns the in-flight watermark for a timestamp and a
// sequence that disambiguates records sharing the same millisecond.
func OfTimestampSeq(ts int64, seq int) Watermark {
	if ts < 0 {
		panic(fmt.Sprintf("watermark: negative timestamp %d", ts))
	}
	return Watermark{value: ts<<16 | int64(seq&sequenceMask)<<1}
}

// OfTime is OfTimestamp for a time.Time.
func OfTime(t time.Time) Watermark {
	return OfTimestamp(t.UnixMilli())
}

// CompletedOf marks w as fully processed.
func CompletedOf(w Watermark) Watermark {
	return Watermark{value: w.value | 1}
}

// Value returns the packed representation.
func (w Watermark) Value() int64 { return w.value }

// Timestamp returns the millisecond timestamp.
func (w Watermark) Timestamp() int64 { return w.value >> 16 }

// Sequence returns the sequence within the timestamp.
func (w Watermark) Sequence() int { return int(w.value>>1) & sequenceMask }

// Completed reports whether the watermark was marked as processed.
func (w Watermark) Completed() bool { return w.value&1 == 1 }

// Compare returns -1, 0 or +1.
func (w Watermark) Compare(o Watermark) int {
	switch {
	case w.value < o.value:
		return -1
	case w.value > o.value:
		return 1
	default:
		return 0
	}
}

// Less reports whether w sorts before o.
func (w Watermark) Less(o Watermark) bool { return w.value < o.value }

// IsDone reports whether no more records at or before ts can arrive, which
// holds once w is past ts or is the completed watermark of ts itself.
func (w Watermark) IsDone(ts int64) bool {
	return OfTimestamp(ts).Less(w)
}

func (w Watermark) String() string {
	if w == Lowest {
		return "Watermark{LOWEST}"
	}
	return fmt.Sprintf("Watermark{completed=%t, ts=%s, seq=%d, value=%d}",
		w.Completed(), time.UnixMilli(w.Timestamp()).UTC().Format(time.RFC3339Nano), w.Sequence(), w.value)
}
