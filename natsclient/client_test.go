package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/metric"
)

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, time.Second, c.Backoff())
	assert.Equal(t, int32(5), c.circuitThreshold)
}

func TestNewClient_InvalidOption(t *testing.T) {
	_, err := NewClient("nats://localhost:4222", WithCircuitBreakerThreshold(0))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewClient("nats://localhost:4222", WithTimeout(0))
	require.Error(t, err)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithCircuitBreakerThreshold(3), WithMaxBackoff(4*time.Second))
	require.NoError(t, err)

	c.recordFailure()
	c.recordFailure()
	assert.Equal(t, StatusDisconnected, c.Status())

	c.recordFailure()
	assert.Equal(t, StatusCircuitOpen, c.Status())
	assert.Equal(t, 2*time.Second, c.Backoff())
	assert.Equal(t, int32(3), c.Failures())

	_, err = c.JetStream()
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrCircuitOpen)

	c.halfOpen()
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClient_NotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	called := false
	err = c.Do(context.Background(), "noop", func(context.Context, jetstream.JetStream) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClient_Metrics(t *testing.T) {
	reg := metric.NewMetricsRegistry()
	c, err := NewClient("nats://localhost:4222", WithMetrics(reg))
	require.NoError(t, err)
	require.NotNil(t, c.metrics)

	c.metrics.recordError("publish")
	c.RefreshMetrics(context.Background())

	// A second client cannot register the same collectors.
	_, err = NewClient("nats://localhost:4222", WithMetrics(reg))
	assert.Error(t, err)
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}
