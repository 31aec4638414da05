package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamcompute"

// Metrics contains the metrics every computation runner reports.
type Metrics struct {
	RecordsRead     *prometheus.CounterVec
	RecordsProduced *prometheus.CounterVec
	RecordsAppended *prometheus.CounterVec
	RecordsVetoed   *prometheus.CounterVec
	TimersFired     *prometheus.CounterVec
	Checkpoints     *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	LowWatermark    *prometheus.GaugeVec
	BatchDuration   *prometheus.HistogramVec
	CodecRegistered prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RecordsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "read_total",
				Help:      "Records read from input streams after filtering",
			},
			[]string{"computation", "stream"},
		),
		RecordsProduced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "produced_total",
				Help:      "Records buffered by computations through ProduceRecord",
			},
			[]string{"computation", "stream"},
		),
		RecordsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "appended_total",
				Help:      "Records physically appended to the log",
			},
			[]string{"computation", "stream"},
		),
		RecordsVetoed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "records",
				Name:      "vetoed_total",
				Help:      "Records dropped by a filter before append or after read",
			},
			[]string{"computation", "stream", "hook"},
		),
		TimersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "timers",
				Name:      "fired_total",
				Help:      "Timer callbacks delivered to computations",
			},
			[]string{"computation"},
		),
		Checkpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkpoint",
				Name:      "total",
				Help:      "Checkpoints committed, by outcome",
			},
			[]string{"computation", "status"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Errors by class",
			},
			[]string{"computation", "class"},
		),
		LowWatermark: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "watermark",
				Name:      "low_timestamp_milliseconds",
				Help:      "Timestamp of the low watermark of a computation",
			},
			[]string{"computation"},
		),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "batch",
				Name:      "duration_seconds",
				Help:      "Duration of one runner batch",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"computation"},
		),
		CodecRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "codec",
				Name:      "registered",
				Help:      "Number of codecs registered in the codec service",
			},
		),
	}
}

func (c *Metrics) register(registry *prometheus.Registry) {
	registry.MustRegister(
		c.RecordsRead,
		c.RecordsProduced,
		c.RecordsAppended,
		c.RecordsVetoed,
		c.TimersFired,
		c.Checkpoints,
		c.Errors,
		c.LowWatermark,
		c.BatchDuration,
		c.CodecRegistered,
	)
}

// RecordRead increments the read counter
func (c *Metrics) RecordRead(computation, stream string) {
	c.RecordsRead.WithLabelValues(computation, stream).Inc()
}

// RecordProduced adds n produced records
func (c *Metrics) RecordProduced(computation, stream string, n int) {
	c.RecordsProduced.WithLabelValues(computation, stream).Add(float64(n))
}

// RecordAppended increments the append counter
func (c *Metrics) RecordAppended(computation, stream string) {
	c.RecordsAppended.WithLabelValues(computation, stream).Inc()
}

// RecordVetoed increments the veto counter for a filter hook
func (c *Metrics) RecordVetoed(computation, stream, hook string) {
	c.RecordsVetoed.WithLabelValues(computation, stream, hook).Inc()
}

// RecordTimerFired increments the timer counter
func (c *Metrics) RecordTimerFired(computation string) {
	c.TimersFired.WithLabelValues(computation).Inc()
}

// RecordCheckpoint counts a checkpoint attempt outcome ("ok" or "failed")
func (c *Metrics) RecordCheckpoint(computation, status string) {
	c.Checkpoints.WithLabelValues(computation, status).Inc()
}

// RecordError counts an error by class
func (c *Metrics) RecordError(computation, class string) {
	c.Errors.WithLabelValues(computation, class).Inc()
}

// RecordLowWatermark publishes the low watermark timestamp
func (c *Metrics) RecordLowWatermark(computation string, timestampMs int64) {
	c.LowWatermark.WithLabelValues(computation).Set(float64(timestampMs))
}

// RecordBatchDuration observes the duration of one batch
func (c *Metrics) RecordBatchDuration(computation string, d time.Duration) {
	c.BatchDuration.WithLabelValues(computation).Observe(d.Seconds())
}

// RecordCodecCount sets the number of registered codecs
func (c *Metrics) RecordCodecCount(n int) {
	c.CodecRegistered.Set(float64(n))
}
