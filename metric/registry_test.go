package metric

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"})

	require.NoError(t, registry.RegisterCounter("dedup", "counter", counter))
	counter.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(counter))
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "test"})

	require.NoError(t, registry.RegisterGauge("svc", "gauge", gauge))
	err := registry.RegisterGauge("svc", "gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()
	a := prometheus.NewCounter(prometheus.CounterOpts{Name: "conflict_total", Help: "test"})
	b := prometheus.NewCounter(prometheus.CounterOpts{Name: "conflict_total", Help: "test"})

	require.NoError(t, registry.RegisterCounter("svc", "a", a))
	err := registry.RegisterCounter("svc", "b", b)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "unreg_total", Help: "test"}, []string{"k"})

	require.NoError(t, registry.RegisterCounterVec("svc", "vec", vec))
	assert.True(t, registry.Unregister("svc", "vec"))
	assert.False(t, registry.Unregister("svc", "vec"))
	require.NoError(t, registry.RegisterCounterVec("svc", "vec", vec))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := prometheus.NewGauge(prometheus.GaugeOpts{
				Name:        "concurrent_gauge",
				Help:        "test",
				ConstLabels: prometheus.Labels{"i": string(rune('a' + i))},
			})
			assert.NoError(t, registry.RegisterGauge("svc", string(rune('a'+i)), g))
		}(i)
	}
	wg.Wait()
}

func TestMetrics_CoreRecorders(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordRead("c1", "in")
	m.RecordProduced("c1", "out", 3)
	m.RecordAppended("c1", "out")
	m.RecordVetoed("c1", "out", "before_append")
	m.RecordCheckpoint("c1", "ok")
	m.RecordLowWatermark("c1", 1234)
	m.RecordCodecCount(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRead.WithLabelValues("c1", "in")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsProduced.WithLabelValues("c1", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsVetoed.WithLabelValues("c1", "out", "before_append")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.LowWatermark.WithLabelValues("c1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodecRegistered))
}

func TestServer_ServesMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordAppended("c1", "out")

	srv := NewServer("127.0.0.1:0", "", registry)
	require.NoError(t, srv.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	}()

	assert.Error(t, srv.Start(), "second start must fail")

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "streamcompute_records_appended_total")
}

func TestServer_CustomHealthRoute(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "/m", NewMetricsRegistry())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())

	srv.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/m", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
