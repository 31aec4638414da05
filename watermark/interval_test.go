package watermark

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonotonicInterval_FirstMark(t *testing.T) {
	m := NewMonotonicInterval(nil)
	assert.Equal(t, Lowest, m.Low())

	w := OfTimestamp(100)
	assert.Equal(t, w.Value(), m.Mark(w))
	assert.Equal(t, w, m.Low())
	assert.Equal(t, w, m.High())
}

func TestMonotonicInterval_LowDipsBetweenCheckpoints(t *testing.T) {
	m := NewMonotonicInterval(nil)

	m.Mark(OfTimestamp(100))
	m.Mark(OfTimestamp(120))
	low := m.Mark(OfTimestamp(90))

	assert.Equal(t, OfTimestamp(90).Value(), low)
	assert.Equal(t, OfTimestamp(120), m.High())

	// A mark above low does not raise it.
	assert.Equal(t, OfTimestamp(90).Value(), m.Mark(OfTimestamp(130)))
	assert.Equal(t, OfTimestamp(130), m.High())
}

func TestMonotonicInterval_Checkpoint(t *testing.T) {
	m := NewMonotonicInterval(nil)
	m.Mark(OfTimestamp(100))
	m.Mark(OfTimestamp(200))

	got := m.Checkpoint()

	want := CompletedOf(OfTimestamp(200))
	assert.Equal(t, want.Value(), got)
	assert.Equal(t, want, m.Low())
	assert.Equal(t, want, m.Lowest())
	assert.True(t, m.IsDone(200))
	assert.False(t, m.IsDone(201))
}

func TestMonotonicInterval_LateMarkClamped(t *testing.T) {
	m := NewMonotonicInterval(nil)
	m.Mark(OfTimestamp(200))
	floor := m.Checkpoint()

	low := m.Mark(OfTimestamp(50))

	assert.Equal(t, floor, low)
	assert.Equal(t, floor, m.Low().Value())
}

func TestMonotonicInterval_MarkBetweenFloorAndLow(t *testing.T) {
	m := NewMonotonicInterval(nil)
	m.Mark(OfTimestamp(100))
	m.Checkpoint()
	m.Mark(OfTimestamp(300))
	m.Checkpoint() // floor at 300

	m.Mark(OfTimestamp(400))
	assert.Equal(t, CompletedOf(OfTimestamp(300)), m.Low())
	low := m.Mark(OfTimestamp(350))
	assert.Equal(t, CompletedOf(OfTimestamp(300)).Value(), low, "350 is above the floor but not below low")
}

func TestMonotonicInterval_MonotonicAcrossCheckpoints(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := NewMonotonicInterval(nil)

	var previous int64
	for round := 0; round < 200; round++ {
		for i := 0; i < rng.Intn(10)+1; i++ {
			m.Mark(OfTimestampSeq(rng.Int63n(10_000), rng.Intn(8)))
		}
		if rng.Intn(3) == 0 {
			low := m.Checkpoint()
			require.GreaterOrEqual(t, low, previous, "round %d", round)
			require.Equal(t, low, m.Low().Value())
			previous = low
		}
		require.GreaterOrEqual(t, m.Low().Value(), m.Lowest().Value())
	}
}

func TestMonotonicInterval_ConcurrentReaders(t *testing.T) {
	m := NewMonotonicInterval(nil)

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = m.Low()
					_ = m.IsDone(10)
				}
			}
		}()
	}

	for i := int64(0); i < 1000; i++ {
		m.Mark(OfTimestamp(i))
		if i%100 == 0 {
			m.Checkpoint()
		}
	}
	close(done)
	wg.Wait()

	assert.Equal(t, OfTimestamp(999), m.High())
}
