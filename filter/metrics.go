package filter

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamcompute/metric"
	"github.com/c360/streamcompute/record"
)

// Metrics counts records and bytes seen by each hook. Place it first in a
// chain to observe every record before any veto, or last to count what
// actually reaches the log.
type Metrics struct {
	owner   string
	records *prometheus.CounterVec
	bytes   *prometheus.CounterVec
}

// NewMetrics registers the filter counters under owner.
func NewMetrics(registrar metric.MetricsRegistrar, owner string) (*Metrics, error) {
	m := &Metrics{
		owner: owner,
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "streamcompute",
			Subsystem:   "filter",
			Name:        "records_total",
			ConstLabels: prometheus.Labels{"owner": owner},
			Help:        "Records seen by the metrics filter, by hook",
		}, []string{"hook"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "streamcompute",
			Subsystem:   "filter",
			Name:        "bytes_total",
			ConstLabels: prometheus.Labels{"owner": owner},
			Help:        "Record data bytes seen by the metrics filter, by hook",
		}, []string{"hook"}),
	}
	if registrar != nil {
		if err := registrar.RegisterCounterVec(owner, "filter_records", m.records); err != nil {
			return nil, err
		}
		if err := registrar.RegisterCounterVec(owner, "filter_bytes", m.bytes); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Name returns "metrics".
func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) observe(hook string, r *record.Record) {
	m.records.WithLabelValues(hook).Inc()
	m.bytes.WithLabelValues(hook).Add(float64(len(r.Data)))
}

// BeforeAppend counts and passes through.
func (m *Metrics) BeforeAppend(_ context.Context, r *record.Record) (*record.Record, error) {
	m.observe("before_append", r)
	return r, nil
}

// AfterAppend counts and passes through.
func (m *Metrics) AfterAppend(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	m.observe("after_append", r)
	return r, nil
}

// AfterRead counts and passes through.
func (m *Metrics) AfterRead(_ context.Context, r *record.Record, _ record.LogOffset) (*record.Record, error) {
	m.observe("after_read", r)
	return r, nil
}
