package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/streamcompute/codec"
	"github.com/c360/streamcompute/computation"
	"github.com/c360/streamcompute/config"
	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/filter"
	"github.com/c360/streamcompute/health"
	"github.com/c360/streamcompute/metric"
	"github.com/c360/streamcompute/natsclient"
	"github.com/c360/streamcompute/pkg/retry"
	"github.com/c360/streamcompute/record"
	"github.com/c360/streamcompute/runtime"
	"github.com/c360/streamcompute/streamlog"
	"github.com/c360/streamcompute/streamlog/jslog"
	"github.com/c360/streamcompute/streamlog/memlog"
)

// app holds everything built from one configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics      *metric.MetricsRegistry
	health       *health.Monitor
	codecs       *codec.Service
	filters      *filter.Registry
	computations *computation.Registry

	nats       *natsclient.Client
	redis      *redis.Client
	log        streamlog.Log
	blobStores map[string]filter.BlobStore
	runners    []*runtime.Runner
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	metrics := metric.NewMetricsRegistry()
	return &app{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		health:       health.NewMonitor(),
		codecs:       codec.NewService(codec.WithLogger(logger), codec.WithMetrics(metrics.CoreMetrics())),
		filters:      filter.NewRegistry(),
		computations: computation.NewRegistry(),
		blobStores:   make(map[string]filter.BlobStore),
	}
}

// registerCodecs contributes every configured codec.
func (a *app) registerCodecs() error {
	for _, d := range a.cfg.Codecs {
		if err := a.codecs.RegisterContribution(codec.ExtensionPoint, d); err != nil {
			return err
		}
	}
	return nil
}

// openLog selects the in-memory log or connects to JetStream.
func (a *app) openLog(ctx context.Context, inMemory bool) error {
	if inMemory {
		a.logger.Warn("using the in-memory log, nothing survives a restart")
		a.log = memlog.New()
		return nil
	}

	nc := a.cfg.NATS
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithMaxReconnects(nc.MaxReconnects),
		natsclient.WithReconnectWait(nc.ReconnectWait.Std()),
		natsclient.WithMetrics(a.metrics),
	}
	if nc.ConnectTimeout > 0 {
		opts = append(opts, natsclient.WithTimeout(nc.ConnectTimeout.Std()))
	}
	if nc.CircuitThreshold > 0 {
		opts = append(opts, natsclient.WithCircuitBreakerThreshold(nc.CircuitThreshold))
	}
	if nc.Username != "" {
		opts = append(opts, natsclient.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		opts = append(opts, natsclient.WithToken(nc.Token))
	}
	if nc.ClientName != "" {
		opts = append(opts, natsclient.WithClientName(nc.ClientName))
	}

	client, err := natsclient.NewClient(nc.URL, opts...)
	if err != nil {
		return err
	}
	a.logger.Info("connecting to NATS", "url", nc.URL)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	a.nats = client

	log, err := jslog.New(client, jslog.Config{
		Prefix:   nc.Prefix,
		Replicas: nc.Replicas,
		MaxAge:   nc.MaxAge.Std(),
		Storage:  nc.Storage,
	}, a.logger)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// openBlobStores builds the stores referenced by external-store filters.
func (a *app) openBlobStores(ctx context.Context) error {
	for name, bs := range a.cfg.BlobStores {
		switch bs.Type {
		case "memory":
			a.blobStores[name] = filter.NewMemoryBlobStore()
		case "redis":
			if a.redis == nil {
				a.redis = redis.NewClient(&redis.Options{
					Addr:     a.cfg.Redis.Addr,
					Password: a.cfg.Redis.Password,
					DB:       a.cfg.Redis.DB,
				})
				if err := a.redis.Ping(ctx).Err(); err != nil {
					return errors.WrapTransient(err, "app", "openBlobStores", "ping redis")
				}
			}
			a.blobStores[name] = filter.NewRedisBlobStore(a.redis, bs.TTL.Std())
		case "nats":
			if a.nats == nil {
				return errors.Config(errors.ErrInvalidConfig, "app", "openBlobStores",
					fmt.Sprintf("blob store %s needs the JetStream log", name))
			}
			bucket := bs.Bucket
			if bucket == "" {
				bucket = a.cfg.NATS.Prefix + "_blobs_" + name
			}
			store, err := jslog.NewObjectBlobStore(ctx, a.nats, bucket)
			if err != nil {
				return err
			}
			a.blobStores[name] = store
		default:
			return errors.Config(errors.ErrInvalidConfig, "app", "openBlobStores",
				fmt.Sprintf("blob store %s: unknown type %q", name, bs.Type))
		}
	}
	return nil
}

// createStreams declares every configured stream on the log.
func (a *app) createStreams(ctx context.Context) error {
	for _, s := range a.cfg.Streams {
		if err := a.log.CreateStream(ctx, s.Name, s.Partitions); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) retryConfig() retry.Config {
	rc := retry.DefaultConfig()
	r := a.cfg.Runtime.Retry
	if r.MaxAttempts > 0 {
		rc.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		rc.InitialDelay = r.InitialDelay.Std()
	}
	if r.MaxDelay > 0 {
		rc.MaxDelay = r.MaxDelay.Std()
	}
	return rc
}

// buildRunners creates one runner per configured computation.
func (a *app) buildRunners() error {
	for _, cc := range a.cfg.Computations {
		comp, err := a.computations.Create(cc.Kind, cc.Metadata(), cc.Options)
		if err != nil {
			return err
		}
		c, err := codec.GetCodec[record.Record](a.codecs, cc.Codec)
		if err != nil {
			return err
		}
		if c == nil {
			return errors.Config(errors.ErrMissingConfig, "app", "buildRunners",
				fmt.Sprintf("computation %s: codec %q is not registered", cc.Name, cc.Codec))
		}
		chain, err := a.filters.BuildChain(cc.Filters, filter.Dependencies{
			Owner:      cc.Name,
			Logger:     a.logger,
			Metrics:    a.metrics,
			BlobStores: a.blobStores,
		})
		if err != nil {
			return err
		}

		opts := []runtime.Option{
			runtime.WithFilterChain(chain),
			runtime.WithBatchSize(a.cfg.Runtime.BatchSize),
			runtime.WithRetry(a.retryConfig()),
			runtime.WithLogger(a.logger),
			runtime.WithMetrics(a.metrics.CoreMetrics()),
			runtime.WithHealth(a.health),
		}
		if cc.Group != "" {
			opts = append(opts, runtime.WithGroup(cc.Group))
		}
		if cc.AutoCommit != nil {
			opts = append(opts, runtime.WithAutoCommit(*cc.AutoCommit))
		}
		runner, err := runtime.New(comp, a.log, c, opts...)
		if err != nil {
			return err
		}
		a.runners = append(a.runners, runner)
	}
	return nil
}

// setup builds the whole application.
func (a *app) setup(ctx context.Context, inMemory bool) error {
	if err := a.registerCodecs(); err != nil {
		return err
	}
	if err := a.openLog(ctx, inMemory); err != nil {
		return err
	}
	if err := a.openBlobStores(ctx); err != nil {
		return err
	}
	if err := a.createStreams(ctx); err != nil {
		return err
	}
	return a.buildRunners()
}

// run drives every runner until ctx is done. The first fatal runner error
// cancels the others.
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, r := range a.runners {
		wg.Add(1)
		go func(r *runtime.Runner) {
			defer wg.Done()
			if err := r.Run(ctx, a.cfg.Runtime.PollInterval.Std()); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(r)
	}
	wg.Wait()
	return firstErr
}

// close releases connections. Errors are logged.
func (a *app) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.log != nil {
		if err := a.log.Close(); err != nil {
			a.logger.Warn("close log", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("close NATS", "error", err)
		}
	}
}

// dryRun builds codecs, computations and filter chains against an
// in-memory log and in-memory blob stores.
func (a *app) dryRun() error {
	if err := a.registerCodecs(); err != nil {
		return err
	}
	for name := range a.cfg.BlobStores {
		a.blobStores[name] = filter.NewMemoryBlobStore()
	}
	a.log = memlog.New()
	defer func() {
		_ = a.log.Close()
		a.log = nil
		a.runners = nil
	}()
	return a.buildRunners()
}
