package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
)

func testConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.ErrConnectionTimeout
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(3), func() error {
		attempts++
		return errors.ErrStorageUnavailable
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnConfigError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(5), func() error {
		attempts++
		return errors.Config(errors.ErrUndeclaredStream, "test", "Do", "bogus")
	})

	assert.True(t, errors.IsConfigError(err))
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		cancel()
		return fmt.Errorf("connection refused")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_InvalidConfig(t *testing.T) {
	err := Do(context.Background(), Config{InitialDelay: -1}, func() error { return nil })
	assert.True(t, errors.IsConfigError(err))

	err = Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, func() error {
		return nil
	})
	assert.True(t, errors.IsConfigError(err))
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), testConfig(3), func() (int64, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.ErrConnectionLost
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}
