package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamcompute/errors"
)

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatJSON
	formatYAML
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatUnknown
	}
}

// DefaultEnvPrefix prefixes environment overrides.
const DefaultEnvPrefix = "STREAMCOMPUTE"

// Defaults returns the configuration used before any layer is applied.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		NATS: NATSConfig{
			URL:              "nats://localhost:4222",
			MaxReconnects:    -1,
			ReconnectWait:    Duration(2 * time.Second),
			ConnectTimeout:   Duration(5 * time.Second),
			CircuitThreshold: 5,
			Prefix:           "streamcompute",
			Replicas:         1,
			Storage:          "file",
		},
		Runtime: RuntimeConfig{
			PollInterval: Duration(100 * time.Millisecond),
			BatchSize:    100,
			Retry: RetryConfig{
				MaxAttempts:  5,
				InitialDelay: Duration(100 * time.Millisecond),
				MaxDelay:     Duration(5 * time.Second),
			},
		},
	}
}

// Loader merges configuration layers over the defaults, then applies
// environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  DefaultEnvPrefix,
		getenv:     os.Getenv,
	}
}

// AddLayer adds a JSON or YAML file. Later layers override earlier ones
// key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation after loading.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges every layer.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Defaults())
	if err != nil {
		return nil, err
	}
	for _, path := range l.layers {
		layer, err := loadRaw(path)
		if err != nil {
			return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Loader", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, layer)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "merge layers")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "Load", "decode configuration")
	}

	if err := l.applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(data, &m)
}

// loadRaw reads a layer into a generic map. YAML layers are converted so
// both formats merge the same way.
func loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	switch formatOf(path) {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence.
// Lists are replaced, not appended.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides applies <PREFIX>_* variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(name string) (string, error) {
		key := l.envPrefix + "_" + name
		val := l.getenv(key)
		return val, validateEnvVar(key, val)
	}
	strOverrides := map[string]*string{
		"LOG_LEVEL":      &cfg.Log.Level,
		"LOG_FORMAT":     &cfg.Log.Format,
		"METRICS_ADDR":   &cfg.Metrics.Addr,
		"NATS_URL":       &cfg.NATS.URL,
		"NATS_USERNAME":  &cfg.NATS.Username,
		"NATS_PASSWORD":  &cfg.NATS.Password,
		"NATS_TOKEN":     &cfg.NATS.Token,
		"NATS_PREFIX":    &cfg.NATS.Prefix,
		"REDIS_ADDR":     &cfg.Redis.Addr,
		"REDIS_PASSWORD": &cfg.Redis.Password,
	}
	for name, target := range strOverrides {
		val, err := lookup(name)
		if err != nil {
			return errors.Config(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides", err.Error())
		}
		if val != "" {
			*target = val
		}
	}

	val, err := lookup("METRICS_ENABLED")
	if err != nil {
		return errors.Config(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides", err.Error())
	}
	if val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return errors.Config(errors.ErrInvalidConfig, "Loader", "applyEnvOverrides",
				fmt.Sprintf("%s_METRICS_ENABLED=%q is not a boolean", l.envPrefix, val))
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML depending on the
// file extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if formatOf(path) == formatYAML {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Config", "SaveToFile", "encode configuration")
	}
	return safeWriteFile(path, data)
}
