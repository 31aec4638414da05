package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
)

func TestFromError(t *testing.T) {
	assert.True(t, FromError("c", nil).Healthy)

	transient := errors.WrapTransient(fmt.Errorf("dial nats://10.0.0.1:4222 refused"), "Client", "Connect", "connect")
	s := FromError("c", transient)
	assert.True(t, s.IsDegraded())
	assert.NotContains(t, s.Message, "10.0.0.1")
	assert.Contains(t, s.Message, "[URL]")

	fatal := errors.Config(errors.ErrUndeclaredStream, "ComputationContext", "ProduceRecord", "bogus")
	assert.True(t, FromError("c", fatal).IsUnhealthy())
}

func TestSanitizeMessage(t *testing.T) {
	tests := map[string]string{
		"auth failed password=hunter2":     "auth failed [REDACTED]",
		"cannot reach 192.168.1.100:6379":  "cannot reach [IP]",
		"redis://user@cache:6379/0 closed": "[URL] closed",
		"plain message":                    "plain message",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeMessage(in), in)
	}
}

func TestAggregate(t *testing.T) {
	assert.True(t, Aggregate("sys", nil).Healthy)

	healthy := NewHealthy("a", "")
	degraded := NewDegraded("b", "slow")
	unhealthy := NewUnhealthy("c", "down")

	assert.Equal(t, StateDegraded, Aggregate("sys", []Status{healthy, degraded}).Status)
	agg := Aggregate("sys", []Status{degraded, unhealthy, healthy})
	assert.Equal(t, StateUnhealthy, agg.Status)
	assert.Len(t, agg.SubStatuses, 3)
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.Update("b", NewHealthy("ignored", "").WithActivity(Activity{Processed: 3}))
	m.Update("a", NewDegraded("", "retrying"))

	s, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, "b", s.Component)
	assert.Equal(t, int64(3), s.Activity.Processed)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Component)
	assert.Equal(t, StateDegraded, m.AggregateHealth("sys").Status)

	m.Remove("a")
	assert.True(t, m.AggregateHealth("sys").Healthy)
}

func TestMonitor_Concurrent(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i%5)
			m.Update(name, NewHealthy(name, ""))
			_ = m.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.Snapshot(), 5)
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.Update("a", NewHealthy("a", ""))

	rec := httptest.NewRecorder()
	m.Handler("sys").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "sys", got.Component)
	assert.True(t, got.Healthy)

	m.Update("b", NewUnhealthy("b", "failed"))
	rec = httptest.NewRecorder()
	m.Handler("sys").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
