package natsclient

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamcompute/metric"
)

// jetstreamMetrics tracks the streams this client created and counts failed
// operations. A nil *jetstreamMetrics disables everything.
type jetstreamMetrics struct {
	streamMessages *prometheus.GaugeVec
	streamBytes    *prometheus.GaugeVec
	errors         *prometheus.CounterVec

	mu      sync.Mutex
	streams map[string]jetstream.Stream
}

func newJetStreamMetrics(registry *metric.MetricsRegistry) (*jetstreamMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &jetstreamMetrics{
		streamMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamcompute",
			Subsystem: "jetstream",
			Name:      "stream_messages",
			Help:      "Current number of messages in stream",
		}, []string{"stream"}),
		streamBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamcompute",
			Subsystem: "jetstream",
			Name:      "stream_bytes",
			Help:      "Storage bytes used by stream",
		}, []string{"stream"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamcompute",
			Subsystem: "jetstream",
			Name:      "errors_total",
			Help:      "Failed JetStream operations",
		}, []string{"operation"}),
		streams: make(map[string]jetstream.Stream),
	}
	if err := registry.RegisterGaugeVec("natsclient", "stream_messages", m.streamMessages); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("natsclient", "stream_bytes", m.streamBytes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsclient", "errors", m.errors); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *jetstreamMetrics) recordError(op string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(op).Inc()
}

func (m *jetstreamMetrics) trackStream(name string, s jetstream.Stream) {
	if m == nil || s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[name] = s
}

// RefreshMetrics polls the tracked streams and updates the gauges.
func (c *Client) RefreshMetrics(ctx context.Context) {
	m := c.metrics
	if m == nil {
		return
	}
	m.mu.Lock()
	streams := make(map[string]jetstream.Stream, len(m.streams))
	for k, v := range m.streams {
		streams[k] = v
	}
	m.mu.Unlock()

	for name, s := range streams {
		info, err := s.Info(ctx)
		if err != nil {
			m.recordError("stream_info")
			continue
		}
		m.streamMessages.WithLabelValues(name).Set(float64(info.State.Msgs))
		m.streamBytes.WithLabelValues(name).Set(float64(info.State.Bytes))
	}
}
