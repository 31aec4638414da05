// Package metric provides the Prometheus registry shared by computation
// runners, filters and the codec service.
//
// NewMetricsRegistry registers the core stream metrics (records read,
// produced, appended and vetoed, timers fired, checkpoints, low watermark)
// plus the Go runtime collectors. Components that own extra metrics register
// them through the MetricsRegistrar surface, keyed by owner and metric name:
//
//	registry := metric.NewMetricsRegistry()
//	err := registry.RegisterCounterVec("dedup", "skipped", skipped)
//
// Server exposes the registry over HTTP:
//
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop(ctx)
package metric
