package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/streamcompute/metric"
)

type runOptions struct {
	InMemory        bool
	ShutdownTimeout time.Duration
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the configured computations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runComputations(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.InMemory, "memory", false, "use the in-memory log instead of JetStream")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")

	return cmd
}

func runComputations(ctx context.Context, rootOpts *rootOptions, opts *runOptions) error {
	cfg, err := rootOpts.load()
	if err != nil {
		return err
	}
	logger := rootOpts.logger(cfg)
	logger.Info("starting "+appName,
		"build_time", BuildTime,
		"computations", len(cfg.Computations),
		"streams", len(cfg.Streams))

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	defer a.close(opts.ShutdownTimeout)

	if err := a.setup(ctx, opts.InMemory); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, a.metrics)
		server.Handle("/health", a.health.Handler(appName))
		if err := server.Start(); err != nil {
			return err
		}
		logger.Info("metrics server listening", "addr", server.Addr(), "path", cfg.Metrics.Path)
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	err = a.run(ctx)
	logger.Info("shutting down", "error", err)
	return err
}
