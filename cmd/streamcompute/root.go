package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360/streamcompute/config"
)

// rootOptions holds the global flags.
type rootOptions struct {
	ConfigPaths []string
	LogLevel    string
	LogFormat   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     appName,
		Short:   "Run stream computations over a partitioned log",
		Version: fmt.Sprintf("%s (build %s)", Version, BuildTime),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.LogFormat {
			case "", "json", "text":
				return nil
			default:
				return fmt.Errorf("invalid log format %q: must be json or text", opts.LogFormat)
			}
		},
	}

	cmd.PersistentFlags().StringSliceVarP(&opts.ConfigPaths, "config", "c",
		envList("STREAMCOMPUTE_CONFIG"), "configuration files, later files override earlier ones (env: STREAMCOMPUTE_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "override the configured log format (json|text)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newCodecsCommand(opts))

	return cmd
}

// load reads the configuration layers and applies the log flags.
func (o *rootOptions) load() (*config.Config, error) {
	if len(o.ConfigPaths) == 0 {
		return nil, fmt.Errorf("no configuration file given (use --config)")
	}
	loader := config.NewLoader()
	for _, path := range o.ConfigPaths {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) *slog.Logger {
	logger := setupLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return logger
}

func envList(key string) []string {
	if v := os.Getenv(key); v != "" {
		return []string{v}
	}
	return nil
}
